package databases

import (
	"context"
	"errors"
	"sync"
	"time"

	"bioingest/internal/model"
	"bioingest/internal/persistence"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewWorkUnitStore returns a Postgres-backed persistence.WorkUnitStore, or
// an in-memory one if pool is nil.
func NewWorkUnitStore(pool *pgxpool.Pool) persistence.WorkUnitStore {
	if pool == nil {
		return &memoryWorkUnitStore{byID: make(map[uuid.UUID]model.WorkUnit)}
	}
	return &pgWorkUnitStore{pool: pool}
}

type pgWorkUnitStore struct {
	pool *pgxpool.Pool
}

func (s *pgWorkUnitStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS work_units (
	id uuid PRIMARY KEY,
	job uuid NOT NULL,
	sequence_number int NOT NULL,
	start_offset bigint NOT NULL,
	end_offset bigint NOT NULL,
	expected_count bigint NOT NULL DEFAULT 0,
	status text NOT NULL,
	worker_id text NOT NULL DEFAULT '',
	worker_hostname text NOT NULL DEFAULT '',
	claimed_at timestamptz,
	heartbeat_at timestamptz,
	retry_count int NOT NULL DEFAULT 0,
	max_retries int NOT NULL DEFAULT 3,
	last_error text NOT NULL DEFAULT '',
	processing_duration_ms bigint NOT NULL DEFAULT 0,
	UNIQUE (job, sequence_number)
)`)
	if err != nil {
		return err
	}
	// Load-bearing per spec.md §6.5: the Claim query's subselect filters
	// on (job, status='pending') every call, so without this partial
	// index a claim degrades to an O(N) scan of the Job's Work Units.
	if _, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_work_units_pending ON work_units(job, status) WHERE status = 'pending'`); err != nil {
		return err
	}
	// Backs ReclaimStale's scan for processing units whose heartbeat has
	// gone quiet; a separate index since its predicate (status =
	// 'processing', ordered by heartbeat_at) doesn't overlap the claim
	// query's.
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_work_units_heartbeat ON work_units(status, heartbeat_at) WHERE status = 'processing'`)
	return err
}

func (s *pgWorkUnitStore) CreateBatch(ctx context.Context, units []model.WorkUnit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, u := range units {
		if u.ID == uuid.Nil {
			u.ID = model.NewID()
		}
		if u.Status == "" {
			u.Status = model.WorkUnitPending
		}
		if u.MaxRetries == 0 {
			u.MaxRetries = 3
		}
		_, err := tx.Exec(ctx, `
INSERT INTO work_units (id, job, sequence_number, start_offset, end_offset, expected_count, status, max_retries)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			u.ID, u.Job, u.SequenceNumber, u.StartOffset, u.EndOffset, u.ExpectedCount, u.Status, u.MaxRetries)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Claim reserves one available Work Unit for job using SELECT ... FOR
// UPDATE SKIP LOCKED, so concurrently racing workers never block on each
// other and never double-claim the same row.
func (s *pgWorkUnitStore) Claim(ctx context.Context, job uuid.UUID, workerID, hostname string) (model.WorkUnit, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
UPDATE work_units SET status = $1, worker_id = $2, worker_hostname = $3, claimed_at = $4, heartbeat_at = $4
WHERE id = (
	SELECT id FROM work_units
	WHERE job = $5 AND status = $6
	ORDER BY sequence_number
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING id, job, sequence_number, start_offset, end_offset, expected_count, status, worker_id, worker_hostname,
	claimed_at, heartbeat_at, retry_count, max_retries, last_error, processing_duration_ms`,
		model.WorkUnitProcessing, workerID, hostname, now, job, model.WorkUnitPending)
	u, err := scanWorkUnit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkUnit{}, persistence.ErrNoWorkUnit
	}
	return u, err
}

func (s *pgWorkUnitStore) Heartbeat(ctx context.Context, id uuid.UUID, workerID string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE work_units SET heartbeat_at = $1 WHERE id = $2 AND worker_id = $3 AND status = $4`,
		time.Now().UTC(), id, workerID, model.WorkUnitProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrStaleClaim
	}
	return nil
}

func (s *pgWorkUnitStore) Complete(ctx context.Context, id uuid.UUID, durationMs int64) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE work_units SET status = $1, processing_duration_ms = $2 WHERE id = $3`,
		model.WorkUnitCompleted, durationMs, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgWorkUnitStore) Fail(ctx context.Context, id uuid.UUID, errMsg string, requeue bool) error {
	newStatus := model.WorkUnitFailed
	if requeue {
		newStatus = model.WorkUnitPending
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE work_units SET status = $1, last_error = $2, retry_count = retry_count + 1,
	worker_id = '', worker_hostname = '', claimed_at = NULL, heartbeat_at = NULL
WHERE id = $3`, newStatus, errMsg, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgWorkUnitStore) ReclaimStale(ctx context.Context, olderThan time.Time) (int, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	failTag, err := tx.Exec(ctx, `
UPDATE work_units SET status = $1, last_error = 'dead worker: heartbeat exceeded worker_timeout',
	worker_id = '', worker_hostname = '', claimed_at = NULL, heartbeat_at = NULL
WHERE status = $2 AND heartbeat_at < $3 AND retry_count >= max_retries`,
		model.WorkUnitFailed, model.WorkUnitProcessing, olderThan)
	if err != nil {
		return 0, 0, err
	}

	reclaimTag, err := tx.Exec(ctx, `
UPDATE work_units SET status = $1, retry_count = retry_count + 1,
	worker_id = '', worker_hostname = '', claimed_at = NULL, heartbeat_at = NULL
WHERE status = $2 AND heartbeat_at < $3 AND retry_count < max_retries`,
		model.WorkUnitPending, model.WorkUnitProcessing, olderThan)
	if err != nil {
		return 0, 0, err
	}

	return int(reclaimTag.RowsAffected()), int(failTag.RowsAffected()), tx.Commit(ctx)
}

func (s *pgWorkUnitStore) ListByJob(ctx context.Context, job uuid.UUID) ([]model.WorkUnit, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, job, sequence_number, start_offset, end_offset, expected_count, status, worker_id, worker_hostname,
	claimed_at, heartbeat_at, retry_count, max_retries, last_error, processing_duration_ms
FROM work_units WHERE job = $1 ORDER BY sequence_number`, job)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WorkUnit
	for rows.Next() {
		u, err := scanWorkUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanWorkUnit(row pgx.Row) (model.WorkUnit, error) {
	var u model.WorkUnit
	err := row.Scan(&u.ID, &u.Job, &u.SequenceNumber, &u.StartOffset, &u.EndOffset, &u.ExpectedCount, &u.Status,
		&u.WorkerID, &u.WorkerHostname, &u.ClaimedAt, &u.HeartbeatAt, &u.RetryCount, &u.MaxRetries,
		&u.LastError, &u.ProcessingDurationMs)
	return u, err
}

type memoryWorkUnitStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]model.WorkUnit
}

func (m *memoryWorkUnitStore) Init(ctx context.Context) error { return nil }

func (m *memoryWorkUnitStore) CreateBatch(ctx context.Context, units []model.WorkUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range units {
		if u.ID == uuid.Nil {
			u.ID = model.NewID()
		}
		if u.Status == "" {
			u.Status = model.WorkUnitPending
		}
		if u.MaxRetries == 0 {
			u.MaxRetries = 3
		}
		m.byID[u.ID] = u
	}
	return nil
}

func (m *memoryWorkUnitStore) Claim(ctx context.Context, job uuid.UUID, workerID, hostname string) (model.WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, u := range m.byID {
		if u.Job == job && u.Status == model.WorkUnitPending {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return model.WorkUnit{}, persistence.ErrNoWorkUnit
	}
	best := ids[0]
	for _, id := range ids {
		if m.byID[id].SequenceNumber < m.byID[best].SequenceNumber {
			best = id
		}
	}
	u := m.byID[best]
	now := time.Now().UTC()
	u.Status = model.WorkUnitProcessing
	u.WorkerID = workerID
	u.WorkerHostname = hostname
	u.ClaimedAt = &now
	u.HeartbeatAt = &now
	m.byID[best] = u
	return u, nil
}

func (m *memoryWorkUnitStore) Heartbeat(ctx context.Context, id uuid.UUID, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.WorkerID != workerID || u.Status != model.WorkUnitProcessing {
		return persistence.ErrStaleClaim
	}
	now := time.Now().UTC()
	u.HeartbeatAt = &now
	m.byID[id] = u
	return nil
}

func (m *memoryWorkUnitStore) Complete(ctx context.Context, id uuid.UUID, durationMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return persistence.ErrNotFound
	}
	u.Status = model.WorkUnitCompleted
	u.ProcessingDurationMs = durationMs
	m.byID[id] = u
	return nil
}

func (m *memoryWorkUnitStore) Fail(ctx context.Context, id uuid.UUID, errMsg string, requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return persistence.ErrNotFound
	}
	u.LastError = errMsg
	u.RetryCount++
	u.WorkerID, u.WorkerHostname = "", ""
	u.ClaimedAt, u.HeartbeatAt = nil, nil
	if requeue {
		u.Status = model.WorkUnitPending
	} else {
		u.Status = model.WorkUnitFailed
	}
	m.byID[id] = u
	return nil
}

func (m *memoryWorkUnitStore) ReclaimStale(ctx context.Context, olderThan time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reclaimed, failed := 0, 0
	for id, u := range m.byID {
		if u.Status != model.WorkUnitProcessing || u.HeartbeatAt == nil || !u.HeartbeatAt.Before(olderThan) {
			continue
		}
		u.WorkerID, u.WorkerHostname = "", ""
		u.ClaimedAt, u.HeartbeatAt = nil, nil
		if u.RetryCount >= u.MaxRetries {
			u.Status = model.WorkUnitFailed
			u.LastError = "dead worker: heartbeat exceeded worker_timeout"
			failed++
		} else {
			u.Status = model.WorkUnitPending
			u.RetryCount++
			reclaimed++
		}
		m.byID[id] = u
	}
	return reclaimed, failed, nil
}

func (m *memoryWorkUnitStore) ListByJob(ctx context.Context, job uuid.UUID) ([]model.WorkUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.WorkUnit
	for _, u := range m.byID {
		if u.Job == job {
			out = append(out, u)
		}
	}
	return out, nil
}
