package databases

import (
	"context"
	"sync"

	"bioingest/internal/model"
	"bioingest/internal/persistence"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRawFileStore returns a Postgres-backed persistence.RawFileStore, or an
// in-memory one if pool is nil.
func NewRawFileStore(pool *pgxpool.Pool) persistence.RawFileStore {
	if pool == nil {
		return &memoryRawFileStore{byJob: make(map[uuid.UUID][]model.RawFile)}
	}
	return &pgRawFileStore{pool: pool}
}

type pgRawFileStore struct {
	pool *pgxpool.Pool
}

func (s *pgRawFileStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS raw_files (
	id uuid PRIMARY KEY,
	job uuid NOT NULL,
	purpose text NOT NULL DEFAULT '',
	object_key text NOT NULL,
	expected_checksum text NOT NULL DEFAULT '',
	computed_checksum text NOT NULL DEFAULT '',
	verified boolean NOT NULL DEFAULT false
)`)
	return err
}

func (s *pgRawFileStore) Create(ctx context.Context, f model.RawFile) (model.RawFile, error) {
	if f.ID == uuid.Nil {
		f.ID = model.NewID()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO raw_files (id, job, purpose, object_key, expected_checksum, computed_checksum, verified)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id, job, purpose, object_key, expected_checksum, computed_checksum, verified`,
		f.ID, f.Job, f.Purpose, f.ObjectKey, f.ExpectedChecksum, f.ComputedChecksum, f.Verified)
	var out model.RawFile
	err := row.Scan(&out.ID, &out.Job, &out.Purpose, &out.ObjectKey, &out.ExpectedChecksum, &out.ComputedChecksum, &out.Verified)
	return out, err
}

func (s *pgRawFileStore) MarkVerified(ctx context.Context, id uuid.UUID, computedChecksum string, verified bool) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE raw_files SET computed_checksum = $1, verified = $2 WHERE id = $3`, computedChecksum, verified, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgRawFileStore) ListByJob(ctx context.Context, job uuid.UUID) ([]model.RawFile, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, job, purpose, object_key, expected_checksum, computed_checksum, verified FROM raw_files WHERE job = $1`, job)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RawFile
	for rows.Next() {
		var f model.RawFile
		if err := rows.Scan(&f.ID, &f.Job, &f.Purpose, &f.ObjectKey, &f.ExpectedChecksum, &f.ComputedChecksum, &f.Verified); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type memoryRawFileStore struct {
	mu    sync.Mutex
	byJob map[uuid.UUID][]model.RawFile
}

func (m *memoryRawFileStore) Init(ctx context.Context) error { return nil }

func (m *memoryRawFileStore) Create(ctx context.Context, f model.RawFile) (model.RawFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == uuid.Nil {
		f.ID = model.NewID()
	}
	m.byJob[f.Job] = append(m.byJob[f.Job], f)
	return f, nil
}

func (m *memoryRawFileStore) MarkVerified(ctx context.Context, id uuid.UUID, computedChecksum string, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for job, files := range m.byJob {
		for i, f := range files {
			if f.ID == id {
				f.ComputedChecksum = computedChecksum
				f.Verified = verified
				files[i] = f
				m.byJob[job] = files
				return nil
			}
		}
	}
	return persistence.ErrNotFound
}

func (m *memoryRawFileStore) ListByJob(ctx context.Context, job uuid.UUID) ([]model.RawFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.RawFile(nil), m.byJob[job]...), nil
}
