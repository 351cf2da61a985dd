package databases

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"bioingest/internal/model"
	"bioingest/internal/persistence"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewVersionStore returns a Postgres-backed persistence.VersionStore, or an
// in-memory one if pool is nil.
func NewVersionStore(pool *pgxpool.Pool) persistence.VersionStore {
	if pool == nil {
		return &memoryVersionStore{byDataSource: make(map[uuid.UUID][]model.Version)}
	}
	return &pgVersionStore{pool: pool}
}

type pgVersionStore struct {
	pool *pgxpool.Pool
}

func (s *pgVersionStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS versions (
	id uuid PRIMARY KEY,
	data_source uuid NOT NULL,
	major int NOT NULL,
	minor int NOT NULL,
	patch int NOT NULL,
	external_version text NOT NULL DEFAULT '',
	release_date timestamptz NOT NULL,
	status text NOT NULL,
	size_bytes bigint NOT NULL DEFAULT 0,
	changelog jsonb NOT NULL DEFAULT '[]',
	created_at timestamptz NOT NULL,
	UNIQUE (data_source, major, minor, patch)
)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_versions_ds ON versions(data_source, major DESC, minor DESC, patch DESC)`)
	return err
}

func (s *pgVersionStore) Insert(ctx context.Context, v model.Version) (model.Version, error) {
	if v.ID == uuid.Nil {
		v.ID = model.NewID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO versions (id, data_source, major, minor, patch, external_version, release_date, status, size_bytes, changelog, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, data_source, major, minor, patch, external_version, release_date, status, size_bytes, changelog, created_at`,
		v.ID, v.DataSource, v.SemVer.Major, v.SemVer.Minor, v.SemVer.Patch, v.ExternalVersion,
		v.ReleaseDate, v.Status, v.SizeBytes, changelogJSON(v.Changelog), v.CreatedAt)
	return scanVersion(row)
}

func (s *pgVersionStore) Latest(ctx context.Context, dataSource uuid.UUID) (model.Version, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, data_source, major, minor, patch, external_version, release_date, status, size_bytes, changelog, created_at
FROM versions WHERE data_source = $1
ORDER BY major DESC, minor DESC, patch DESC LIMIT 1`, dataSource)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Version{}, persistence.ErrNotFound
	}
	return v, err
}

func (s *pgVersionStore) ListByDataSource(ctx context.Context, dataSource uuid.UUID) ([]model.Version, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, data_source, major, minor, patch, external_version, release_date, status, size_bytes, changelog, created_at
FROM versions WHERE data_source = $1 ORDER BY major DESC, minor DESC, patch DESC`, dataSource)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *pgVersionStore) Get(ctx context.Context, id uuid.UUID) (model.Version, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, data_source, major, minor, patch, external_version, release_date, status, size_bytes, changelog, created_at
FROM versions WHERE id = $1`, id)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Version{}, persistence.ErrNotFound
	}
	return v, err
}

func scanVersion(row pgx.Row) (model.Version, error) {
	var v model.Version
	var changelog []byte
	err := row.Scan(&v.ID, &v.DataSource, &v.SemVer.Major, &v.SemVer.Minor, &v.SemVer.Patch,
		&v.ExternalVersion, &v.ReleaseDate, &v.Status, &v.SizeBytes, &changelog, &v.CreatedAt)
	if err != nil {
		return model.Version{}, err
	}
	v.Changelog = decodeChangelog(changelog)
	return v, nil
}

// --- Version Files ---

// NewVersionFileStore returns a Postgres-backed persistence.VersionFileStore,
// or an in-memory one if pool is nil.
func NewVersionFileStore(pool *pgxpool.Pool) persistence.VersionFileStore {
	if pool == nil {
		return &memoryVersionFileStore{byVersion: make(map[uuid.UUID][]model.VersionFile)}
	}
	return &pgVersionFileStore{pool: pool}
}

type pgVersionFileStore struct {
	pool *pgxpool.Pool
}

func (s *pgVersionFileStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS version_files (
	id uuid PRIMARY KEY,
	version uuid NOT NULL,
	format text NOT NULL,
	object_key text NOT NULL,
	size_bytes bigint NOT NULL DEFAULT 0,
	sha256 text NOT NULL DEFAULT '',
	compression text NOT NULL DEFAULT '',
	UNIQUE (version, format)
)`)
	return err
}

func (s *pgVersionFileStore) Upsert(ctx context.Context, f model.VersionFile) (model.VersionFile, error) {
	if f.ID == uuid.Nil {
		f.ID = model.NewID()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO version_files (id, version, format, object_key, size_bytes, sha256, compression)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (version, format) DO UPDATE SET
	object_key = EXCLUDED.object_key,
	size_bytes = EXCLUDED.size_bytes,
	sha256 = EXCLUDED.sha256,
	compression = EXCLUDED.compression
RETURNING id, version, format, object_key, size_bytes, sha256, compression`,
		f.ID, f.Version, f.Format, f.ObjectKey, f.SizeBytes, f.SHA256, f.Compression)
	var out model.VersionFile
	err := row.Scan(&out.ID, &out.Version, &out.Format, &out.ObjectKey, &out.SizeBytes, &out.SHA256, &out.Compression)
	return out, err
}

func (s *pgVersionFileStore) ListByVersion(ctx context.Context, version uuid.UUID) ([]model.VersionFile, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, version, format, object_key, size_bytes, sha256, compression
FROM version_files WHERE version = $1`, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.VersionFile
	for rows.Next() {
		var f model.VersionFile
		if err := rows.Scan(&f.ID, &f.Version, &f.Format, &f.ObjectKey, &f.SizeBytes, &f.SHA256, &f.Compression); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Dependencies ---

// NewDependencyStore returns a Postgres-backed persistence.DependencyStore,
// or an in-memory one if pool is nil. Both enforce acyclicity of the
// Dependent->DependsOn graph on insert.
func NewDependencyStore(pool *pgxpool.Pool) persistence.DependencyStore {
	if pool == nil {
		return &memoryDependencyStore{}
	}
	return &pgDependencyStore{pool: pool}
}

type pgDependencyStore struct {
	pool *pgxpool.Pool
}

func (s *pgDependencyStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dependencies (
	id uuid PRIMARY KEY,
	dependent uuid NOT NULL,
	depends_on uuid NOT NULL,
	pinned_version uuid NOT NULL
)`)
	return err
}

func (s *pgDependencyStore) Insert(ctx context.Context, d model.Dependency) (model.Dependency, error) {
	if d.ID == uuid.Nil {
		d.ID = model.NewID()
	}

	existing, err := s.allEdges(ctx)
	if err != nil {
		return model.Dependency{}, err
	}
	if wouldCycle(existing, d.Dependent, d.DependsOn) {
		return model.Dependency{}, persistence.ErrDependencyLoop
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO dependencies (id, dependent, depends_on, pinned_version) VALUES ($1, $2, $3, $4)`,
		d.ID, d.Dependent, d.DependsOn, d.PinnedVersion)
	return d, err
}

func (s *pgDependencyStore) allEdges(ctx context.Context) ([]model.Dependency, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, dependent, depends_on, pinned_version FROM dependencies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Dependency
	for rows.Next() {
		var d model.Dependency
		if err := rows.Scan(&d.ID, &d.Dependent, &d.DependsOn, &d.PinnedVersion); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *pgDependencyStore) ListDependents(ctx context.Context, dependsOn uuid.UUID) ([]model.Dependency, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, dependent, depends_on, pinned_version FROM dependencies WHERE depends_on = $1`, dependsOn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Dependency
	for rows.Next() {
		var d model.Dependency
		if err := rows.Scan(&d.ID, &d.Dependent, &d.DependsOn, &d.PinnedVersion); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *pgDependencyStore) ListDependencies(ctx context.Context, dependent uuid.UUID) ([]model.Dependency, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, dependent, depends_on, pinned_version FROM dependencies WHERE dependent = $1`, dependent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Dependency
	for rows.Next() {
		var d model.Dependency
		if err := rows.Scan(&d.ID, &d.Dependent, &d.DependsOn, &d.PinnedVersion); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// wouldCycle reports whether adding the edge from->to would create a cycle,
// i.e. whether to can already reach from.
func wouldCycle(edges []model.Dependency, from, to uuid.UUID) bool {
	if from == to {
		return true
	}
	adj := make(map[uuid.UUID][]uuid.UUID)
	for _, e := range edges {
		adj[e.Dependent] = append(adj[e.Dependent], e.DependsOn)
	}
	visited := make(map[uuid.UUID]bool)
	var dfs func(n uuid.UUID) bool
	dfs = func(n uuid.UUID) bool {
		if n == from {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for _, next := range adj[n] {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(to)
}

type memoryVersionStore struct {
	mu           sync.Mutex
	byDataSource map[uuid.UUID][]model.Version
	byID         map[uuid.UUID]model.Version
}

func (m *memoryVersionStore) Init(ctx context.Context) error { return nil }

func (m *memoryVersionStore) Insert(ctx context.Context, v model.Version) (model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = model.NewID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if m.byID == nil {
		m.byID = make(map[uuid.UUID]model.Version)
	}
	m.byDataSource[v.DataSource] = append(m.byDataSource[v.DataSource], v)
	m.byID[v.ID] = v
	return v, nil
}

func (m *memoryVersionStore) Latest(ctx context.Context, dataSource uuid.UUID) (model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := append([]model.Version(nil), m.byDataSource[dataSource]...)
	if len(versions) == 0 {
		return model.Version{}, persistence.ErrNotFound
	}
	sort.Slice(versions, func(i, j int) bool { return versions[j].SemVer.Less(versions[i].SemVer) })
	return versions[0], nil
}

func (m *memoryVersionStore) ListByDataSource(ctx context.Context, dataSource uuid.UUID) ([]model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := append([]model.Version(nil), m.byDataSource[dataSource]...)
	sort.Slice(versions, func(i, j int) bool { return versions[j].SemVer.Less(versions[i].SemVer) })
	return versions, nil
}

func (m *memoryVersionStore) Get(ctx context.Context, id uuid.UUID) (model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return model.Version{}, persistence.ErrNotFound
	}
	return v, nil
}

type memoryVersionFileStore struct {
	mu        sync.Mutex
	byVersion map[uuid.UUID][]model.VersionFile
}

func (m *memoryVersionFileStore) Init(ctx context.Context) error { return nil }

func (m *memoryVersionFileStore) Upsert(ctx context.Context, f model.VersionFile) (model.VersionFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == uuid.Nil {
		f.ID = model.NewID()
	}
	files := m.byVersion[f.Version]
	for i, existing := range files {
		if existing.Format == f.Format {
			f.ID = existing.ID
			files[i] = f
			m.byVersion[f.Version] = files
			return f, nil
		}
	}
	m.byVersion[f.Version] = append(files, f)
	return f, nil
}

func (m *memoryVersionFileStore) ListByVersion(ctx context.Context, version uuid.UUID) ([]model.VersionFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.VersionFile(nil), m.byVersion[version]...), nil
}

type memoryDependencyStore struct {
	mu    sync.Mutex
	edges []model.Dependency
}

func (m *memoryDependencyStore) Init(ctx context.Context) error { return nil }

func (m *memoryDependencyStore) Insert(ctx context.Context, d model.Dependency) (model.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = model.NewID()
	}
	if wouldCycle(m.edges, d.Dependent, d.DependsOn) {
		return model.Dependency{}, persistence.ErrDependencyLoop
	}
	m.edges = append(m.edges, d)
	return d, nil
}

func (m *memoryDependencyStore) ListDependents(ctx context.Context, dependsOn uuid.UUID) ([]model.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Dependency
	for _, e := range m.edges {
		if e.DependsOn == dependsOn {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryDependencyStore) ListDependencies(ctx context.Context, dependent uuid.UUID) ([]model.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Dependency
	for _, e := range m.edges {
		if e.Dependent == dependent {
			out = append(out, e)
		}
	}
	return out, nil
}
