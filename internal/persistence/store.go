// Package persistence declares the storage contracts the ingestion core
// depends on. Concrete implementations live in persistence/databases: a
// Postgres-backed store for production, and an in-memory fallback used
// when no pool is configured (tests, local dry runs).
package persistence

import (
	"context"
	"errors"
	"time"

	"bioingest/internal/model"

	"github.com/google/uuid"
)

// Sentinel errors translated from backend-specific conditions so callers
// never branch on driver error types.
var (
	ErrNotFound       = errors.New("persistence: not found")
	ErrAlreadyExists  = errors.New("persistence: already exists")
	ErrDependencyLoop = errors.New("persistence: dependency cycle")
	ErrNoWorkUnit     = errors.New("persistence: no work unit available to claim")
	ErrStaleClaim     = errors.New("persistence: claim no longer held by this worker")
)

// RegistryStore owns Organizations, Licenses, Registry Entries, Data
// Sources and Aliases: the mostly-static identity graph every Version and
// Job hangs off of.
type RegistryStore interface {
	Init(ctx context.Context) error

	UpsertOrganization(ctx context.Context, o model.Organization) (model.Organization, error)
	GetOrganization(ctx context.Context, slug string) (model.Organization, error)
	// GetOrganizationByID resolves an Organization from a Job's
	// Organization field, for callers (the worker pool) that only carry
	// the id forward.
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (model.Organization, error)

	UpsertLicense(ctx context.Context, l model.License) (model.License, error)

	UpsertEntry(ctx context.Context, e model.RegistryEntry, ds model.DataSource) (model.RegistryEntry, error)
	GetEntryBySlug(ctx context.Context, orgSlug, entrySlug string) (model.RegistryEntry, model.DataSource, error)
	GetEntryByID(ctx context.Context, id uuid.UUID) (model.RegistryEntry, model.DataSource, error)

	UpsertAlias(ctx context.Context, a model.Alias) (model.Alias, error)
	ResolveAlias(ctx context.Context, alias string, at time.Time) (uuid.UUID, error)
}

// ContentPoolStore deduplicates immutable payloads by content hash.
type ContentPoolStore interface {
	Init(ctx context.Context) error

	// GetOrCreate inserts c if no row with the same SHA256 exists, and
	// returns the (possibly pre-existing) row's ID plus whether it was
	// newly inserted.
	GetOrCreate(ctx context.Context, c model.ContentRef) (id uuid.UUID, created bool, err error)
	Get(ctx context.Context, sha256 string) (model.ContentRef, error)
}

// VersionStore owns the immutable Version history of a Data Source.
type VersionStore interface {
	Init(ctx context.Context) error

	Insert(ctx context.Context, v model.Version) (model.Version, error)
	// Latest returns the highest SemVer Version recorded for a Data
	// Source, or ErrNotFound if none exists yet.
	Latest(ctx context.Context, dataSource uuid.UUID) (model.Version, error)
	ListByDataSource(ctx context.Context, dataSource uuid.UUID) ([]model.Version, error)
	Get(ctx context.Context, id uuid.UUID) (model.Version, error)
}

// VersionFileStore owns the serialized artifacts attached to a Version.
type VersionFileStore interface {
	Init(ctx context.Context) error

	// Upsert is idempotent on (Version, Format): re-running a job that
	// produces byte-identical output must not create a duplicate row.
	Upsert(ctx context.Context, f model.VersionFile) (model.VersionFile, error)
	ListByVersion(ctx context.Context, version uuid.UUID) ([]model.VersionFile, error)
}

// DependencyStore owns the version-pinned dependency DAG between Data
// Sources, e.g. a bundle pinning a specific Version of a constituent.
type DependencyStore interface {
	Init(ctx context.Context) error

	// Insert adds an edge. It MUST reject an insert that would close a
	// cycle in the Dependent->DependsOn graph, returning
	// ErrDependencyLoop.
	Insert(ctx context.Context, d model.Dependency) (model.Dependency, error)
	ListDependents(ctx context.Context, dependsOn uuid.UUID) ([]model.Dependency, error)
	ListDependencies(ctx context.Context, dependent uuid.UUID) ([]model.Dependency, error)
}

// JobStore owns Ingestion Job coordination records and their state
// machine transitions.
type JobStore interface {
	Init(ctx context.Context) error

	Create(ctx context.Context, j model.Job) (model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (model.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, lastError string) error
	UpdateProgress(ctx context.Context, id uuid.UUID, processed, stored, failed int64) error
	// IncrementProgress adds deltas to the Job's running counters. Workers
	// report per-batch deltas rather than absolutes here, since many
	// workers update the same Job concurrently and a read-modify-write on
	// absolute values would lose updates under that race.
	IncrementProgress(ctx context.Context, id uuid.UUID, deltaProcessed, deltaStored, deltaFailed int64) error
	// UpdateTotalRecords sets the Job's authoritative total_records count,
	// written once when the parser finishes counting (download_verified ->
	// parsing), ahead of Work-Unit partitioning.
	UpdateTotalRecords(ctx context.Context, id uuid.UUID, totalRecords int64) error
	MarkCurrent(ctx context.Context, id uuid.UUID, organization uuid.UUID, jobType string) error
	// LatestCurrent returns the Job currently flagged IsCurrent for an
	// organization/job-type pair, used by migration detection.
	LatestCurrent(ctx context.Context, organization uuid.UUID, jobType string) (model.Job, error)
}

// WorkUnitStore owns the claim/heartbeat/completion lifecycle of a Job's
// parallel record ranges.
type WorkUnitStore interface {
	Init(ctx context.Context) error

	CreateBatch(ctx context.Context, units []model.WorkUnit) error
	// Claim atomically reserves one pending-or-reclaimable Work Unit for
	// job, using row-level locking so concurrent workers never claim the
	// same unit. Returns ErrNoWorkUnit if none is available.
	Claim(ctx context.Context, job uuid.UUID, workerID, hostname string) (model.WorkUnit, error)
	Heartbeat(ctx context.Context, id uuid.UUID, workerID string) error
	Complete(ctx context.Context, id uuid.UUID, durationMs int64) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string, requeue bool) error
	// ReclaimStale resets Work Units whose heartbeat is older than
	// olderThan back to pending (or failed, past MaxRetries), for dead
	// worker detection.
	ReclaimStale(ctx context.Context, olderThan time.Time) (reclaimed int, failed int, err error)
	ListByJob(ctx context.Context, job uuid.UUID) ([]model.WorkUnit, error)
}

// RawFileStore tracks downloaded upstream artifacts for audit and re-use.
type RawFileStore interface {
	Init(ctx context.Context) error

	Create(ctx context.Context, f model.RawFile) (model.RawFile, error)
	MarkVerified(ctx context.Context, id uuid.UUID, computedChecksum string, verified bool) error
	ListByJob(ctx context.Context, job uuid.UUID) ([]model.RawFile, error)
}
