package storage

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"bioingest/internal/logging"
	"bioingest/internal/model"
	"bioingest/internal/objectstore"
	"bioingest/internal/organism"
	"bioingest/internal/persistence"
	"bioingest/internal/versioning"

	"github.com/google/uuid"
)

// UpsertResult is the Storage Engine's per-record return value, per
// spec.md §4.6: Upsert(record, job_context) -> (data_source_id,
// version_id, version_string, bump_kind).
type UpsertResult struct {
	DataSourceID uuid.UUID
	VersionID    uuid.UUID
	VersionStr   string
	BumpKind     model.BumpKind
}

// Engine implements the Storage Engine component: organism resolution,
// registry upsert, content dedup, change detection, version bump, version
// file upload, and MAJOR/MINOR dependency cascade, wired to Postgres (or
// in-memory stores for tests) behind the persistence interfaces.
type Engine struct {
	Registry  persistence.RegistryStore
	Content   persistence.ContentPoolStore
	Versions  persistence.VersionStore
	Files     persistence.VersionFileStore
	Deps      persistence.DependencyStore
	Metadata  MetadataStore
	Organisms *organism.Cache
	Objects   objectstore.ObjectStore
}

// recordContext is the shared identity the five per-source-type Upsert
// methods all need: who owns the entry, what it's called, and where its
// artifacts land in the object store.
type recordContext struct {
	Organization uuid.UUID
	OrgSlug      string
	License      uuid.UUID
	Rec          NormalizedRecord
}

func (e *Engine) resolveOrganism(ctx context.Context, rc recordContext) error {
	if rc.Rec.TaxonID == 0 || e.Organisms == nil {
		return nil
	}
	_, err := e.Organisms.Resolve(ctx, rc.Rec.TaxonID, rc.Rec.ScientificName)
	if err != nil {
		return fmt.Errorf("storage: resolve organism for taxon %d: %w", rc.Rec.TaxonID, err)
	}
	return nil
}

// upsertRegistry writes the Registry Entry and Data Source rows, sharing
// one UUID across both per spec.md §4.6 step 3.
func (e *Engine) upsertRegistry(ctx context.Context, rc recordContext) (uuid.UUID, error) {
	entry := model.RegistryEntry{
		Organization: rc.Organization,
		Slug:         rc.Rec.Slug,
		DisplayName:  rc.Rec.DisplayName,
		Description:  rc.Rec.Description,
		Kind:         model.EntryKindDataSource,
		License:      rc.License,
	}
	ds := model.DataSource{SourceType: rc.Rec.SourceType}
	stored, err := e.Registry.UpsertEntry(ctx, entry, ds)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: upsert registry entry %s: %w", rc.Rec.Slug, err)
	}
	return stored.ID, nil
}

// dedupeContent hashes and pool-inserts an immutable payload. Returns
// uuid.Nil if the record carries none (not every source type has one).
func (e *Engine) dedupeContent(ctx context.Context, payload []byte) (uuid.UUID, error) {
	if len(payload) == 0 || e.Content == nil {
		return uuid.Nil, nil
	}
	sum := sha256.Sum256(payload)
	md := md5.Sum(payload)
	id, _, err := e.Content.GetOrCreate(ctx, model.ContentRef{
		SHA256: hex.EncodeToString(sum[:]),
		MD5:    hex.EncodeToString(md[:]),
		Length: int64(len(payload)),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: content dedup: %w", err)
	}
	return id, nil
}

// bumpAndInsertVersion loads the Data Source's latest Version, applies
// the bump the changelog classified, and inserts the new row. When the
// detector found nothing to record (an idempotent re-ingest) it writes
// nothing and returns the existing latest Version with bump == BumpNone.
func (e *Engine) bumpAndInsertVersion(ctx context.Context, dataSource uuid.UUID, strategy versioning.Strategy, changelog model.Changelog, externalVersion string, rc recordContext) (model.Version, model.BumpKind, error) {
	bump := strategy.Classify(changelog)

	prev, err := e.Versions.Latest(ctx, dataSource)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return model.Version{}, "", fmt.Errorf("storage: load latest version: %w", err)
	}
	if bump == model.BumpNone {
		return prev, model.BumpNone, nil
	}

	next := bump.Apply(prev.SemVer)
	v := model.Version{
		ID:              model.NewID(),
		DataSource:      dataSource,
		SemVer:          next,
		ExternalVersion: externalVersion,
		ReleaseDate:     rc.Rec.ReleaseDate,
		Status:          model.VersionStatusPublished,
		Changelog:       changelog,
	}
	stored, err := e.Versions.Insert(ctx, v)
	if err != nil {
		return model.Version{}, "", fmt.Errorf("storage: insert version: %w", err)
	}

	logging.Log.WithFields(logging.JobFields(dataSource.String(), string(rc.Rec.SourceType), rc.OrgSlug)).
		WithField("bump", bump).WithField("version", stored.SemVer.String()).Info("version bump recorded")

	return stored, bump, nil
}

// maybeCascade implements spec.md §4.6.2: a MAJOR bump (or MINOR, when
// the strategy opts in) propagates to every Data Source that currently
// pins an older Version of this one. The cascade visits one dependent at
// a time so each transaction stays short, and never revisits a node
// already bumped in this pass, since the dependency graph is guaranteed
// acyclic by DependencyStore.Insert's cycle check.
func (e *Engine) maybeCascade(ctx context.Context, dataSource uuid.UUID, bumped model.Version, bump model.BumpKind, strategy versioning.Strategy) error {
	cascade := (bump == model.BumpMajor && strategy.CascadeOnMajor) || (bump == model.BumpMinor && strategy.CascadeOnMinor)
	if !cascade || e.Deps == nil {
		return nil
	}

	visited := map[uuid.UUID]bool{dataSource: true}
	queue := []uuid.UUID{dataSource}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		dependents, err := e.Deps.ListDependents(ctx, current)
		if err != nil {
			return fmt.Errorf("storage: list dependents of %s: %w", current, err)
		}
		for _, dep := range dependents {
			if visited[dep.Dependent] {
				continue
			}
			visited[dep.Dependent] = true

			cascadeBump := model.BumpMajor
			if bump == model.BumpMinor {
				cascadeBump = model.BumpMinor
			}
			if err := e.cascadeDependent(ctx, dep, bumped, cascadeBump); err != nil {
				return err
			}
			queue = append(queue, dep.Dependent)
		}
	}
	return nil
}

// cascadeDependent bumps a single dependent Data Source in response to
// one of its pinned dependencies moving to a new Version, and inserts a
// Dependency edge pinned to the new Version. The edge pinned to the
// earlier Version is left in place.
func (e *Engine) cascadeDependent(ctx context.Context, dep model.Dependency, newDependencyVersion model.Version, bump model.BumpKind) error {
	prev, err := e.Versions.Latest(ctx, dep.Dependent)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("storage: cascade: load latest version of %s: %w", dep.Dependent, err)
	}

	next := bump.Apply(prev.SemVer)
	changelog := model.Changelog{{
		Kind:     model.ChangeModified,
		Category: model.CategoryDependency,
		Field:    dep.DependsOn.String(),
		Summary:  fmt.Sprintf("dependency upgraded to %s@%s", dep.DependsOn, newDependencyVersion.SemVer),
	}}

	v := model.Version{
		ID:          model.NewID(),
		DataSource:  dep.Dependent,
		SemVer:      next,
		ReleaseDate: newDependencyVersion.ReleaseDate,
		Status:      model.VersionStatusPublished,
		Changelog:   changelog,
	}
	stored, err := e.Versions.Insert(ctx, v)
	if err != nil {
		return fmt.Errorf("storage: cascade: insert version for %s: %w", dep.Dependent, err)
	}

	if _, err := e.Deps.Insert(ctx, model.Dependency{
		Dependent:     dep.Dependent,
		DependsOn:     dep.DependsOn,
		PinnedVersion: newDependencyVersion.ID,
	}); err != nil {
		return fmt.Errorf("storage: cascade: repin dependency for %s: %w", dep.Dependent, err)
	}

	logging.Log.WithField("dependent", dep.Dependent).WithField("version", stored.SemVer.String()).
		Info("dependency cascade bumped dependent")
	return nil
}
