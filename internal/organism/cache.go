// Package organism provides an in-process, TTL-refreshed cache mapping
// NCBI taxonomy ids to organism Data Source ids. Resolving the organism
// for every record in a batch against Postgres directly would turn a
// 1,000-record Work Unit into 1,000 round trips; this cache collapses
// that down to one bulk SELECT per refresh period.
package organism

import (
	"context"
	"strconv"
	"sync"
	"time"

	"bioingest/internal/model"
	"bioingest/internal/persistence"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Source resolves and creates organism Data Sources, and bulk-lists the
// current organism_metadata rows for a cache refresh.
type Source interface {
	ListOrganisms(ctx context.Context) (map[int64]uuid.UUID, error)
	// GetOrCreate inserts an organism Data Source for taxonID if absent
	// (INSERT ... ON CONFLICT DO NOTHING RETURNING id), re-selecting on
	// conflict, and returns its id either way.
	GetOrCreate(ctx context.Context, taxonID int64, scientificName string) (uuid.UUID, error)
}

// Cache is a TTL-refreshed, taxonomy-id-keyed lookup of organism Data
// Source ids. Safe for concurrent use by multiple worker goroutines.
//
// Refreshes are deduplicated with singleflight: if N worker goroutines
// all observe a miss or an expired cache in the same instant, only one
// of them issues the bulk SELECT; the rest wait on its result.
type Cache struct {
	source Source
	ttl    time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	byTaxonID map[int64]uuid.UUID
	loadedAt  time.Time
}

// New constructs a Cache. The cache is empty and unrefreshed until the
// first Resolve call.
func New(source Source, ttl time.Duration) *Cache {
	return &Cache{source: source, ttl: ttl, byTaxonID: make(map[int64]uuid.UUID)}
}

// Resolve returns the organism Data Source id for taxonID, refreshing the
// cache first if it is stale or empty. On a miss after refresh it falls
// through to GetOrCreate.
func (c *Cache) Resolve(ctx context.Context, taxonID int64, scientificName string) (uuid.UUID, error) {
	c.ensureFresh(ctx)

	c.mu.RLock()
	id, ok := c.byTaxonID[taxonID]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := c.source.GetOrCreate(ctx, taxonID, scientificName)
	if err != nil {
		return uuid.Nil, err
	}

	c.mu.Lock()
	c.byTaxonID[taxonID] = id
	c.mu.Unlock()
	return id, nil
}

func (c *Cache) ensureFresh(ctx context.Context) {
	c.mu.RLock()
	stale := time.Since(c.loadedAt) >= c.ttl
	c.mu.RUnlock()
	if !stale {
		return
	}

	// singleflight.Do collapses a refresh storm across goroutines into a
	// single bulk SELECT; errors from the underlying call are swallowed
	// here deliberately, the same way a stale-but-present cache is
	// preferred over blocking every caller on a transient DB error.
	_, _, _ = c.group.Do("refresh", func() (any, error) {
		rows, err := c.source.ListOrganisms(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.byTaxonID = rows
		c.loadedAt = time.Now()
		c.mu.Unlock()
		return nil, nil
	})
}

// postgresSource adapts a RegistryStore plus a raw taxonomy-id lookup
// table into the Source interface. The taxonomy-id <-> Data Source
// mapping lives in the organism_metadata table maintained by the storage
// engine, outside the generic RegistryStore contract, so this adapter
// owns a thin slice of SQL directly rather than routing everything
// through RegistryStore.
type postgresSource struct {
	registry     persistence.RegistryStore
	organization uuid.UUID
	taxonomy     TaxonomyIndex
}

// TaxonomyIndex is the narrow persistence surface the organism cache
// needs beyond the generic RegistryStore: a taxon-id keyed table of
// already-resolved organism Data Sources.
type TaxonomyIndex interface {
	ListOrganismsByTaxonID(ctx context.Context) (map[int64]uuid.UUID, error)
	InsertOrganismIfAbsent(ctx context.Context, taxonID int64, entry model.RegistryEntry, ds model.DataSource) (uuid.UUID, error)
}

// NewPostgresSource builds a Source backed by the registry store and a
// TaxonomyIndex for organism-specific lookups.
func NewPostgresSource(registry persistence.RegistryStore, taxonomy TaxonomyIndex, organization uuid.UUID) Source {
	return &postgresSource{registry: registry, organization: organization, taxonomy: taxonomy}
}

func (p *postgresSource) ListOrganisms(ctx context.Context) (map[int64]uuid.UUID, error) {
	return p.taxonomy.ListOrganismsByTaxonID(ctx)
}

func (p *postgresSource) GetOrCreate(ctx context.Context, taxonID int64, scientificName string) (uuid.UUID, error) {
	entry := model.RegistryEntry{
		Organization: p.organization,
		Slug:         organismSlug(taxonID),
		DisplayName:  scientificName,
		Kind:         model.EntryKindDataSource,
	}
	ds := model.DataSource{SourceType: model.SourceTypeOrganism}
	return p.taxonomy.InsertOrganismIfAbsent(ctx, taxonID, entry, ds)
}

func organismSlug(taxonID int64) string {
	return "taxon-" + strconv.FormatInt(taxonID, 10)
}
