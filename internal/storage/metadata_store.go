package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MetadataStore holds the *latest* type-specific metadata blob for a
// Data Source, keyed by its id. History lives in the Versions table;
// this row is overwritten in place on every Upsert, exactly as
// spec.md §4.6 step 5 requires ("the metadata row always reflects the
// latest version").
type MetadataStore interface {
	Init(ctx context.Context) error
	// Get returns the stored JSON blob and true, or (nil, false) if this
	// Data Source has never been stored before.
	Get(ctx context.Context, dataSource uuid.UUID) ([]byte, bool, error)
	Put(ctx context.Context, dataSource uuid.UUID, blob []byte) error
}

// NewMetadataStore returns a Postgres-backed MetadataStore, or an
// in-memory one if pool is nil.
func NewMetadataStore(pool *pgxpool.Pool) MetadataStore {
	if pool == nil {
		return &memoryMetadataStore{byID: make(map[uuid.UUID][]byte)}
	}
	return &pgMetadataStore{pool: pool}
}

type pgMetadataStore struct {
	pool *pgxpool.Pool
}

func (s *pgMetadataStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS source_metadata (
	data_source uuid PRIMARY KEY,
	payload jsonb NOT NULL
)`)
	return err
}

func (s *pgMetadataStore) Get(ctx context.Context, dataSource uuid.UUID) ([]byte, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM source_metadata WHERE data_source = $1`, dataSource).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *pgMetadataStore) Put(ctx context.Context, dataSource uuid.UUID, blob []byte) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO source_metadata (data_source, payload) VALUES ($1, $2)
ON CONFLICT (data_source) DO UPDATE SET payload = EXCLUDED.payload`,
		dataSource, blob)
	return err
}

type memoryMetadataStore struct {
	mu   sync.RWMutex
	byID map[uuid.UUID][]byte
}

func (s *memoryMetadataStore) Init(ctx context.Context) error { return nil }

func (s *memoryMetadataStore) Get(ctx context.Context, dataSource uuid.UUID) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.byID[dataSource]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return cp, true, nil
}

func (s *memoryMetadataStore) Put(ctx context.Context, dataSource uuid.UUID, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.byID[dataSource] = cp
	return nil
}

// loadMetadata unmarshals the stored blob for dataSource into out,
// reporting firstSeen=true when no prior row exists (out is left at its
// zero value in that case).
func loadMetadata(ctx context.Context, store MetadataStore, dataSource uuid.UUID, out any) (firstSeen bool, err error) {
	raw, ok, err := store.Get(ctx, dataSource)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return false, nil
}

func saveMetadata(ctx context.Context, store MetadataStore, dataSource uuid.UUID, in any) error {
	blob, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return store.Put(ctx, dataSource, blob)
}
