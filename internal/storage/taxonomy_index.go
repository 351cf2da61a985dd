package storage

import (
	"context"
	"sync"

	"bioingest/internal/model"
	"bioingest/internal/organism"
	"bioingest/internal/persistence"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewTaxonomyIndex returns an organism.TaxonomyIndex backed by Postgres,
// or an in-memory one if pool is nil. It tracks the taxon-id <-> Data
// Source mapping that organism.Cache's refresh loop bulk-selects, a slice
// of state the generic RegistryStore contract doesn't model.
func NewTaxonomyIndex(pool *pgxpool.Pool, registry persistence.RegistryStore) organism.TaxonomyIndex {
	if pool == nil {
		return &memoryTaxonomyIndex{registry: registry, byTaxonID: make(map[int64]uuid.UUID)}
	}
	return &pgTaxonomyIndex{pool: pool, registry: registry}
}

type pgTaxonomyIndex struct {
	pool     *pgxpool.Pool
	registry persistence.RegistryStore
}

func (t *pgTaxonomyIndex) init(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS organism_metadata (
	taxon_id bigint PRIMARY KEY,
	data_source uuid NOT NULL UNIQUE
)`)
	return err
}

func (t *pgTaxonomyIndex) ListOrganismsByTaxonID(ctx context.Context) (map[int64]uuid.UUID, error) {
	if err := t.init(ctx); err != nil {
		return nil, err
	}
	rows, err := t.pool.Query(ctx, `SELECT taxon_id, data_source FROM organism_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]uuid.UUID)
	for rows.Next() {
		var taxonID int64
		var ds uuid.UUID
		if err := rows.Scan(&taxonID, &ds); err != nil {
			return nil, err
		}
		out[taxonID] = ds
	}
	return out, rows.Err()
}

func (t *pgTaxonomyIndex) InsertOrganismIfAbsent(ctx context.Context, taxonID int64, entry model.RegistryEntry, ds model.DataSource) (uuid.UUID, error) {
	if err := t.init(ctx); err != nil {
		return uuid.Nil, err
	}

	stored, err := t.registry.UpsertEntry(ctx, entry, ds)
	if err != nil {
		return uuid.Nil, err
	}

	row := t.pool.QueryRow(ctx, `
INSERT INTO organism_metadata (taxon_id, data_source) VALUES ($1, $2)
ON CONFLICT (taxon_id) DO UPDATE SET taxon_id = EXCLUDED.taxon_id
RETURNING data_source`, taxonID, stored.ID)
	var id uuid.UUID
	if err := row.Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

type memoryTaxonomyIndex struct {
	registry persistence.RegistryStore

	mu        sync.Mutex
	byTaxonID map[int64]uuid.UUID
}

func (t *memoryTaxonomyIndex) ListOrganismsByTaxonID(ctx context.Context) (map[int64]uuid.UUID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int64]uuid.UUID, len(t.byTaxonID))
	for k, v := range t.byTaxonID {
		out[k] = v
	}
	return out, nil
}

func (t *memoryTaxonomyIndex) InsertOrganismIfAbsent(ctx context.Context, taxonID int64, entry model.RegistryEntry, ds model.DataSource) (uuid.UUID, error) {
	t.mu.Lock()
	if id, ok := t.byTaxonID[taxonID]; ok {
		t.mu.Unlock()
		return id, nil
	}
	t.mu.Unlock()

	stored, err := t.registry.UpsertEntry(ctx, entry, ds)
	if err != nil {
		return uuid.Nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byTaxonID[taxonID]; ok {
		return id, nil
	}
	t.byTaxonID[taxonID] = stored.ID
	return stored.ID, nil
}
