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

// NewJobStore returns a Postgres-backed persistence.JobStore, or an
// in-memory one if pool is nil.
func NewJobStore(pool *pgxpool.Pool) persistence.JobStore {
	if pool == nil {
		return &memoryJobStore{byID: make(map[uuid.UUID]model.Job)}
	}
	return &pgJobStore{pool: pool}
}

type pgJobStore struct {
	pool *pgxpool.Pool
}

func (s *pgJobStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
	id uuid PRIMARY KEY,
	organization uuid NOT NULL,
	job_type text NOT NULL,
	external_version text NOT NULL,
	internal_version text NOT NULL DEFAULT '',
	source_url text NOT NULL DEFAULT '',
	status text NOT NULL,
	total_records bigint NOT NULL DEFAULT 0,
	records_processed bigint NOT NULL DEFAULT 0,
	records_stored bigint NOT NULL DEFAULT 0,
	records_failed bigint NOT NULL DEFAULT 0,
	is_current boolean NOT NULL DEFAULT false,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL,
	started_at timestamptz,
	finished_at timestamptz,
	last_error text NOT NULL DEFAULT ''
)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_jobs_current ON jobs(organization, job_type, is_current)`)
	return err
}

func (s *pgJobStore) Create(ctx context.Context, j model.Job) (model.Job, error) {
	if j.ID == uuid.Nil {
		j.ID = model.NewID()
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	if j.Status == "" {
		j.Status = model.JobStatusPending
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO jobs (id, organization, job_type, external_version, internal_version, source_url, status,
	total_records, records_processed, records_stored, records_failed, is_current, created_at, updated_at, started_at, finished_at, last_error)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
RETURNING id, organization, job_type, external_version, internal_version, source_url, status,
	total_records, records_processed, records_stored, records_failed, is_current, created_at, updated_at, started_at, finished_at, last_error`,
		j.ID, j.Organization, j.JobType, j.ExternalVersion, j.InternalVersion, j.SourceURL, j.Status,
		j.TotalRecords, j.RecordsProcessed, j.RecordsStored, j.RecordsFailed, j.IsCurrent,
		j.CreatedAt, j.UpdatedAt, j.StartedAt, j.FinishedAt, j.LastError)
	return scanJob(row)
}

func (s *pgJobStore) Get(ctx context.Context, id uuid.UUID) (model.Job, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, organization, job_type, external_version, internal_version, source_url, status,
	total_records, records_processed, records_stored, records_failed, is_current, created_at, updated_at, started_at, finished_at, last_error
FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, persistence.ErrNotFound
	}
	return j, err
}

func (s *pgJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, lastError string) error {
	now := time.Now().UTC()
	var startedAt, finishedAt any
	if status == model.JobStatusDownloading {
		startedAt = now
	}
	if status == model.JobStatusCompleted || status == model.JobStatusFailed {
		finishedAt = now
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET status = $1, last_error = $2, updated_at = $3,
	started_at = COALESCE(started_at, $4),
	finished_at = COALESCE($5, finished_at)
WHERE id = $6`, status, lastError, now, startedAt, finishedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, processed, stored, failed int64) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET records_processed = $1, records_stored = $2, records_failed = $3, updated_at = $4 WHERE id = $5`,
		processed, stored, failed, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgJobStore) IncrementProgress(ctx context.Context, id uuid.UUID, deltaProcessed, deltaStored, deltaFailed int64) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET records_processed = records_processed + $1, records_stored = records_stored + $2,
	records_failed = records_failed + $3, updated_at = $4 WHERE id = $5`,
		deltaProcessed, deltaStored, deltaFailed, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgJobStore) UpdateTotalRecords(ctx context.Context, id uuid.UUID, totalRecords int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET total_records = $1, updated_at = $2 WHERE id = $3`,
		totalRecords, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgJobStore) MarkCurrent(ctx context.Context, id uuid.UUID, organization uuid.UUID, jobType string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE jobs SET is_current = false WHERE organization = $1 AND job_type = $2 AND is_current`,
		organization, jobType); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE jobs SET is_current = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *pgJobStore) LatestCurrent(ctx context.Context, organization uuid.UUID, jobType string) (model.Job, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, organization, job_type, external_version, internal_version, source_url, status,
	total_records, records_processed, records_stored, records_failed, is_current, created_at, updated_at, started_at, finished_at, last_error
FROM jobs WHERE organization = $1 AND job_type = $2 AND is_current LIMIT 1`, organization, jobType)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, persistence.ErrNotFound
	}
	return j, err
}

func scanJob(row pgx.Row) (model.Job, error) {
	var j model.Job
	err := row.Scan(&j.ID, &j.Organization, &j.JobType, &j.ExternalVersion, &j.InternalVersion, &j.SourceURL, &j.Status,
		&j.TotalRecords, &j.RecordsProcessed, &j.RecordsStored, &j.RecordsFailed, &j.IsCurrent,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.FinishedAt, &j.LastError)
	return j, err
}

type memoryJobStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]model.Job
}

func (m *memoryJobStore) Init(ctx context.Context) error { return nil }

func (m *memoryJobStore) Create(ctx context.Context, j model.Job) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == uuid.Nil {
		j.ID = model.NewID()
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	if j.Status == "" {
		j.Status = model.JobStatusPending
	}
	m.byID[j.ID] = j
	return j, nil
}

func (m *memoryJobStore) Get(ctx context.Context, id uuid.UUID) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return model.Job{}, persistence.ErrNotFound
	}
	return j, nil
}

func (m *memoryJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return persistence.ErrNotFound
	}
	now := time.Now().UTC()
	j.Status = status
	j.LastError = lastError
	j.UpdatedAt = now
	if status == model.JobStatusDownloading && j.StartedAt == nil {
		j.StartedAt = &now
	}
	if status == model.JobStatusCompleted || status == model.JobStatusFailed {
		j.FinishedAt = &now
	}
	m.byID[id] = j
	return nil
}

func (m *memoryJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, processed, stored, failed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return persistence.ErrNotFound
	}
	j.RecordsProcessed, j.RecordsStored, j.RecordsFailed = processed, stored, failed
	j.UpdatedAt = time.Now().UTC()
	m.byID[id] = j
	return nil
}

func (m *memoryJobStore) IncrementProgress(ctx context.Context, id uuid.UUID, deltaProcessed, deltaStored, deltaFailed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return persistence.ErrNotFound
	}
	j.RecordsProcessed += deltaProcessed
	j.RecordsStored += deltaStored
	j.RecordsFailed += deltaFailed
	j.UpdatedAt = time.Now().UTC()
	m.byID[id] = j
	return nil
}

func (m *memoryJobStore) UpdateTotalRecords(ctx context.Context, id uuid.UUID, totalRecords int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok {
		return persistence.ErrNotFound
	}
	j.TotalRecords = totalRecords
	j.UpdatedAt = time.Now().UTC()
	m.byID[id] = j
	return nil
}

func (m *memoryJobStore) MarkCurrent(ctx context.Context, id uuid.UUID, organization uuid.UUID, jobType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.byID[id]
	if !ok {
		return persistence.ErrNotFound
	}
	for otherID, j := range m.byID {
		if j.Organization == organization && j.JobType == jobType && j.IsCurrent {
			j.IsCurrent = false
			m.byID[otherID] = j
		}
	}
	target.IsCurrent = true
	m.byID[id] = target
	return nil
}

func (m *memoryJobStore) LatestCurrent(ctx context.Context, organization uuid.UUID, jobType string) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.byID {
		if j.Organization == organization && j.JobType == jobType && j.IsCurrent {
			return j, nil
		}
	}
	return model.Job{}, persistence.ErrNotFound
}
