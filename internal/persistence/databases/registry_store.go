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

// NewRegistryStore returns a Postgres-backed persistence.RegistryStore, or
// an in-memory one if pool is nil (local dry runs, unit tests).
func NewRegistryStore(pool *pgxpool.Pool) persistence.RegistryStore {
	if pool == nil {
		return newMemoryRegistryStore()
	}
	return &pgRegistryStore{pool: pool}
}

type pgRegistryStore struct {
	pool *pgxpool.Pool
}

func (s *pgRegistryStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id uuid PRIMARY KEY,
			slug text UNIQUE NOT NULL,
			display_name text NOT NULL,
			versioning_rules text NOT NULL DEFAULT '',
			default_license uuid,
			created_at timestamptz NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS licenses (
			id uuid PRIMARY KEY,
			identifier text UNIQUE NOT NULL,
			spdx_code text NOT NULL DEFAULT '',
			commercial_use boolean NOT NULL DEFAULT true,
			derivative_work boolean NOT NULL DEFAULT true
		)`,
		`CREATE TABLE IF NOT EXISTS registry_entries (
			id uuid PRIMARY KEY,
			organization uuid NOT NULL REFERENCES organizations(id),
			slug text NOT NULL,
			display_name text NOT NULL,
			description text NOT NULL DEFAULT '',
			kind text NOT NULL,
			deprecated boolean NOT NULL DEFAULT false,
			superseded_by uuid,
			license uuid,
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL,
			UNIQUE (organization, slug)
		)`,
		`CREATE TABLE IF NOT EXISTS data_sources (
			id uuid PRIMARY KEY REFERENCES registry_entries(id),
			source_type text NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS aliases (
			id uuid PRIMARY KEY,
			alias text NOT NULL,
			kind text NOT NULL DEFAULT '',
			valid_from timestamptz NOT NULL,
			valid_until timestamptz,
			target uuid NOT NULL REFERENCES registry_entries(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_aliases_alias ON aliases(alias)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *pgRegistryStore) UpsertOrganization(ctx context.Context, o model.Organization) (model.Organization, error) {
	if o.ID == uuid.Nil {
		o.ID = model.NewID()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO organizations (id, slug, display_name, versioning_rules, default_license, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (slug) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	versioning_rules = EXCLUDED.versioning_rules,
	default_license = EXCLUDED.default_license
RETURNING id, slug, display_name, versioning_rules, default_license, created_at`,
		o.ID, o.Slug, o.DisplayName, o.VersioningRules, nullUUID(o.DefaultLicense), o.CreatedAt)
	return scanOrganization(row)
}

func (s *pgRegistryStore) GetOrganization(ctx context.Context, slug string) (model.Organization, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, slug, display_name, versioning_rules, default_license, created_at
FROM organizations WHERE slug = $1`, slug)
	o, err := scanOrganization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Organization{}, persistence.ErrNotFound
	}
	return o, err
}

func (s *pgRegistryStore) GetOrganizationByID(ctx context.Context, id uuid.UUID) (model.Organization, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, slug, display_name, versioning_rules, default_license, created_at
FROM organizations WHERE id = $1`, id)
	o, err := scanOrganization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Organization{}, persistence.ErrNotFound
	}
	return o, err
}

func (s *pgRegistryStore) UpsertLicense(ctx context.Context, l model.License) (model.License, error) {
	if l.ID == uuid.Nil {
		l.ID = model.NewID()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO licenses (id, identifier, spdx_code, commercial_use, derivative_work)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (identifier) DO UPDATE SET
	spdx_code = EXCLUDED.spdx_code,
	commercial_use = EXCLUDED.commercial_use,
	derivative_work = EXCLUDED.derivative_work
RETURNING id, identifier, spdx_code, commercial_use, derivative_work`,
		l.ID, l.Identifier, l.SPDXCode, l.CommercialUse, l.DerivativeWork)
	var out model.License
	err := row.Scan(&out.ID, &out.Identifier, &out.SPDXCode, &out.CommercialUse, &out.DerivativeWork)
	return out, err
}

func (s *pgRegistryStore) UpsertEntry(ctx context.Context, e model.RegistryEntry, ds model.DataSource) (model.RegistryEntry, error) {
	if e.ID == uuid.Nil {
		e.ID = model.NewID()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.RegistryEntry{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
INSERT INTO registry_entries (id, organization, slug, display_name, description, kind, deprecated, superseded_by, license, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (organization, slug) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	description = EXCLUDED.description,
	deprecated = EXCLUDED.deprecated,
	superseded_by = EXCLUDED.superseded_by,
	license = EXCLUDED.license,
	updated_at = EXCLUDED.updated_at
RETURNING id, organization, slug, display_name, description, kind, deprecated, superseded_by, license, created_at, updated_at`,
		e.ID, e.Organization, e.Slug, e.DisplayName, e.Description, e.Kind, e.Deprecated,
		nullUUID(derefUUID(e.SupersededBy)), nullUUID(e.License), e.CreatedAt, e.UpdatedAt)

	out, err := scanRegistryEntry(row)
	if err != nil {
		return model.RegistryEntry{}, err
	}

	ds.ID = out.ID
	_, err = tx.Exec(ctx, `
INSERT INTO data_sources (id, source_type) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET source_type = EXCLUDED.source_type`,
		ds.ID, string(ds.SourceType))
	if err != nil {
		return model.RegistryEntry{}, err
	}

	return out, tx.Commit(ctx)
}

func (s *pgRegistryStore) GetEntryBySlug(ctx context.Context, orgSlug, entrySlug string) (model.RegistryEntry, model.DataSource, error) {
	row := s.pool.QueryRow(ctx, `
SELECT re.id, re.organization, re.slug, re.display_name, re.description, re.kind, re.deprecated,
       re.superseded_by, re.license, re.created_at, re.updated_at, ds.source_type
FROM registry_entries re
JOIN organizations o ON o.id = re.organization
LEFT JOIN data_sources ds ON ds.id = re.id
WHERE o.slug = $1 AND re.slug = $2`, orgSlug, entrySlug)
	return scanEntryWithSource(row)
}

func (s *pgRegistryStore) GetEntryByID(ctx context.Context, id uuid.UUID) (model.RegistryEntry, model.DataSource, error) {
	row := s.pool.QueryRow(ctx, `
SELECT re.id, re.organization, re.slug, re.display_name, re.description, re.kind, re.deprecated,
       re.superseded_by, re.license, re.created_at, re.updated_at, ds.source_type
FROM registry_entries re
LEFT JOIN data_sources ds ON ds.id = re.id
WHERE re.id = $1`, id)
	return scanEntryWithSource(row)
}

func (s *pgRegistryStore) UpsertAlias(ctx context.Context, a model.Alias) (model.Alias, error) {
	if a.ID == uuid.Nil {
		a.ID = model.NewID()
	}
	if a.ValidFrom.IsZero() {
		a.ValidFrom = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO aliases (id, alias, kind, valid_from, valid_until, target)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, alias, kind, valid_from, valid_until, target`,
		a.ID, a.Alias, a.Kind, a.ValidFrom, a.ValidUntil, a.Target)
	var out model.Alias
	err := row.Scan(&out.ID, &out.Alias, &out.Kind, &out.ValidFrom, &out.ValidUntil, &out.Target)
	return out, err
}

func (s *pgRegistryStore) ResolveAlias(ctx context.Context, alias string, at time.Time) (uuid.UUID, error) {
	row := s.pool.QueryRow(ctx, `
SELECT target FROM aliases
WHERE alias = $1 AND valid_from <= $2 AND (valid_until IS NULL OR valid_until > $2)
ORDER BY valid_from DESC LIMIT 1`, alias, at)
	var target uuid.UUID
	if err := row.Scan(&target); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, persistence.ErrNotFound
		}
		return uuid.Nil, err
	}
	return target, nil
}

func scanOrganization(row pgx.Row) (model.Organization, error) {
	var o model.Organization
	var defaultLicense *uuid.UUID
	err := row.Scan(&o.ID, &o.Slug, &o.DisplayName, &o.VersioningRules, &defaultLicense, &o.CreatedAt)
	if err != nil {
		return model.Organization{}, err
	}
	if defaultLicense != nil {
		o.DefaultLicense = *defaultLicense
	}
	return o, nil
}

func scanRegistryEntry(row pgx.Row) (model.RegistryEntry, error) {
	var e model.RegistryEntry
	var supersededBy *uuid.UUID
	var license *uuid.UUID
	err := row.Scan(&e.ID, &e.Organization, &e.Slug, &e.DisplayName, &e.Description, &e.Kind,
		&e.Deprecated, &supersededBy, &license, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return model.RegistryEntry{}, err
	}
	e.SupersededBy = supersededBy
	if license != nil {
		e.License = *license
	}
	return e, nil
}

func scanEntryWithSource(row pgx.Row) (model.RegistryEntry, model.DataSource, error) {
	var e model.RegistryEntry
	var supersededBy *uuid.UUID
	var license *uuid.UUID
	var sourceType *string
	err := row.Scan(&e.ID, &e.Organization, &e.Slug, &e.DisplayName, &e.Description, &e.Kind,
		&e.Deprecated, &supersededBy, &license, &e.CreatedAt, &e.UpdatedAt, &sourceType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RegistryEntry{}, model.DataSource{}, persistence.ErrNotFound
		}
		return model.RegistryEntry{}, model.DataSource{}, err
	}
	e.SupersededBy = supersededBy
	if license != nil {
		e.License = *license
	}
	ds := model.DataSource{ID: e.ID}
	if sourceType != nil {
		ds.SourceType = model.SourceType(*sourceType)
	}
	return e, ds, nil
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// --- in-memory fallback ---

type memoryRegistryStore struct {
	mu      sync.Mutex
	orgs    map[string]model.Organization
	lics    map[string]model.License
	entries map[uuid.UUID]model.RegistryEntry
	sources map[uuid.UUID]model.DataSource
	slugIdx map[string]uuid.UUID // "orgSlug/entrySlug" -> entry id
	aliases []model.Alias
}

func newMemoryRegistryStore() *memoryRegistryStore {
	return &memoryRegistryStore{
		orgs:    make(map[string]model.Organization),
		lics:    make(map[string]model.License),
		entries: make(map[uuid.UUID]model.RegistryEntry),
		sources: make(map[uuid.UUID]model.DataSource),
		slugIdx: make(map[string]uuid.UUID),
	}
}

func (m *memoryRegistryStore) Init(ctx context.Context) error { return nil }

func (m *memoryRegistryStore) UpsertOrganization(ctx context.Context, o model.Organization) (model.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.orgs[o.Slug]; ok {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
	} else {
		if o.ID == uuid.Nil {
			o.ID = model.NewID()
		}
		o.CreatedAt = time.Now().UTC()
	}
	m.orgs[o.Slug] = o
	return o, nil
}

func (m *memoryRegistryStore) GetOrganization(ctx context.Context, slug string) (model.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[slug]
	if !ok {
		return model.Organization{}, persistence.ErrNotFound
	}
	return o, nil
}

func (m *memoryRegistryStore) GetOrganizationByID(ctx context.Context, id uuid.UUID) (model.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.ID == id {
			return o, nil
		}
	}
	return model.Organization{}, persistence.ErrNotFound
}

func (m *memoryRegistryStore) UpsertLicense(ctx context.Context, l model.License) (model.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = model.NewID()
	}
	m.lics[l.Identifier] = l
	return l, nil
}

func (m *memoryRegistryStore) UpsertEntry(ctx context.Context, e model.RegistryEntry, ds model.DataSource) (model.RegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := e.Organization.String() + "/" + e.Slug
	now := time.Now().UTC()
	if id, ok := m.slugIdx[key]; ok {
		e.ID = id
		e.CreatedAt = m.entries[id].CreatedAt
	} else {
		if e.ID == uuid.Nil {
			e.ID = model.NewID()
		}
		e.CreatedAt = now
		m.slugIdx[key] = e.ID
	}
	e.UpdatedAt = now
	m.entries[e.ID] = e
	ds.ID = e.ID
	m.sources[e.ID] = ds
	return e, nil
}

func (m *memoryRegistryStore) GetEntryBySlug(ctx context.Context, orgSlug, entrySlug string) (model.RegistryEntry, model.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[orgSlug]
	if !ok {
		return model.RegistryEntry{}, model.DataSource{}, persistence.ErrNotFound
	}
	id, ok := m.slugIdx[org.ID.String()+"/"+entrySlug]
	if !ok {
		return model.RegistryEntry{}, model.DataSource{}, persistence.ErrNotFound
	}
	return m.entries[id], m.sources[id], nil
}

func (m *memoryRegistryStore) GetEntryByID(ctx context.Context, id uuid.UUID) (model.RegistryEntry, model.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return model.RegistryEntry{}, model.DataSource{}, persistence.ErrNotFound
	}
	return e, m.sources[id], nil
}

func (m *memoryRegistryStore) UpsertAlias(ctx context.Context, a model.Alias) (model.Alias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = model.NewID()
	}
	if a.ValidFrom.IsZero() {
		a.ValidFrom = time.Now().UTC()
	}
	m.aliases = append(m.aliases, a)
	return a, nil
}

func (m *memoryRegistryStore) ResolveAlias(ctx context.Context, alias string, at time.Time) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best model.Alias
	found := false
	for _, a := range m.aliases {
		if a.Alias != alias {
			continue
		}
		if a.ValidFrom.After(at) {
			continue
		}
		if a.ValidUntil != nil && !a.ValidUntil.After(at) {
			continue
		}
		if !found || a.ValidFrom.After(best.ValidFrom) {
			best = a
			found = true
		}
	}
	if !found {
		return uuid.Nil, persistence.ErrNotFound
	}
	return best.Target, nil
}
