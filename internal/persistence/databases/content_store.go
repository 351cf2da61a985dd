package databases

import (
	"context"
	"errors"
	"sync"

	"bioingest/internal/model"
	"bioingest/internal/persistence"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewContentPoolStore returns a Postgres-backed persistence.ContentPoolStore,
// or an in-memory one if pool is nil.
func NewContentPoolStore(pool *pgxpool.Pool) persistence.ContentPoolStore {
	if pool == nil {
		return &memoryContentStore{byHash: make(map[string]model.ContentRef)}
	}
	return &pgContentStore{pool: pool}
}

type pgContentStore struct {
	pool *pgxpool.Pool
}

func (s *pgContentStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS content_pool (
	id uuid PRIMARY KEY,
	sha256 text UNIQUE NOT NULL,
	md5 text NOT NULL DEFAULT '',
	length bigint NOT NULL
)`)
	return err
}

func (s *pgContentStore) GetOrCreate(ctx context.Context, c model.ContentRef) (uuid.UUID, bool, error) {
	if c.ID == uuid.Nil {
		c.ID = model.NewID()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO content_pool (id, sha256, md5, length)
VALUES ($1, $2, $3, $4)
ON CONFLICT (sha256) DO UPDATE SET sha256 = EXCLUDED.sha256
RETURNING id, (xmax = 0) AS inserted`,
		c.ID, c.SHA256, c.MD5, c.Length)
	var id uuid.UUID
	var inserted bool
	if err := row.Scan(&id, &inserted); err != nil {
		return uuid.Nil, false, err
	}
	return id, inserted, nil
}

func (s *pgContentStore) Get(ctx context.Context, sha256 string) (model.ContentRef, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, sha256, md5, length FROM content_pool WHERE sha256 = $1`, sha256)
	var c model.ContentRef
	err := row.Scan(&c.ID, &c.SHA256, &c.MD5, &c.Length)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ContentRef{}, persistence.ErrNotFound
	}
	return c, err
}

type memoryContentStore struct {
	mu     sync.Mutex
	byHash map[string]model.ContentRef
}

func (m *memoryContentStore) Init(ctx context.Context) error { return nil }

func (m *memoryContentStore) GetOrCreate(ctx context.Context, c model.ContentRef) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byHash[c.SHA256]; ok {
		return existing.ID, false, nil
	}
	if c.ID == uuid.Nil {
		c.ID = model.NewID()
	}
	m.byHash[c.SHA256] = c
	return c.ID, true, nil
}

func (m *memoryContentStore) Get(ctx context.Context, sha256 string) (model.ContentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byHash[sha256]
	if !ok {
		return model.ContentRef{}, persistence.ErrNotFound
	}
	return c, nil
}
