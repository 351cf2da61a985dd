package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bioingest/internal/model"
	"bioingest/internal/persistence"

	"github.com/google/uuid"
)

// goOrganizationSlug is the organization a GO term Data Source is
// registered under, matching the "go" slug cmd/ingestd configures for
// the Gene Ontology organization source.
const goOrganizationSlug = "go"

// resolveDependency looks up a Dependency target by its owning
// organization and entry slug, returning its Data Source id and current
// published Version id. ok is false (with a nil error) when the target
// hasn't been ingested yet, since a forward reference to a not-yet-seen
// Data Source is common on first ingest and must not fail the caller's
// Upsert.
func (e *Engine) resolveDependency(ctx context.Context, orgSlug, entrySlug string) (dataSource, version uuid.UUID, ok bool, err error) {
	_, ds, err := e.Registry.GetEntryBySlug(ctx, orgSlug, entrySlug)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return uuid.Nil, uuid.Nil, false, nil
		}
		return uuid.Nil, uuid.Nil, false, fmt.Errorf("storage: resolve dependency %s/%s: %w", orgSlug, entrySlug, err)
	}
	v, err := e.Versions.Latest(ctx, ds.ID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return uuid.Nil, uuid.Nil, false, nil
		}
		return uuid.Nil, uuid.Nil, false, fmt.Errorf("storage: latest version of dependency %s/%s: %w", orgSlug, entrySlug, err)
	}
	return ds.ID, v.ID, true, nil
}

// wireGOXrefDependencies implements spec.md §8.4 scenario 4's
// prerequisite: pinning a Dependency edge from a record (a protein's DR
// cross-references, or a bundle's InterPro GO cross-references) to every
// GO term it names, so that a later MAJOR bump on the GO term (e.g.
// being marked obsolete) can cascade back via
// maybeCascade/DependencyStore.ListDependents. Xrefs that don't name a
// GO term, or name one not yet ingested, are skipped rather than failing
// the caller's own Upsert.
func (e *Engine) wireGOXrefDependencies(ctx context.Context, dependent uuid.UUID, xrefs []string) error {
	if e.Deps == nil {
		return nil
	}
	for _, xref := range xrefs {
		slug := strings.ToLower(xref)
		if !strings.HasPrefix(slug, "go:") {
			continue
		}
		// A protein xref is "<database>:<id>", and a GO id carries its
		// own "GO:" prefix, so "GO:GO:0005737" names term go:0005737.
		if strings.HasPrefix(slug, "go:go:") {
			slug = strings.TrimPrefix(slug, "go:")
		}
		dependsOn, pinned, ok, err := e.resolveDependency(ctx, goOrganizationSlug, slug)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := e.Deps.Insert(ctx, model.Dependency{Dependent: dependent, DependsOn: dependsOn, PinnedVersion: pinned}); err != nil {
			return fmt.Errorf("storage: pin GO xref dependency %s: %w", xref, err)
		}
	}
	return nil
}

// wireBundleDependencies implements spec.md §4.6 step 9's other half: a
// bundle's Dependencies map (dependency Data Source id -> pinned version
// string, supplied by the caller; the InterPro bundle record leaves it
// empty) becomes real
// Dependency rows so a member database's MAJOR bump cascades to the
// bundle that pins it.
func (e *Engine) wireBundleDependencies(ctx context.Context, dependent uuid.UUID, deps map[string]string) error {
	if e.Deps == nil {
		return nil
	}
	for depIDStr, pinnedVersion := range deps {
		dependsOn, err := uuid.Parse(depIDStr)
		if err != nil {
			return fmt.Errorf("storage: parse bundle dependency id %q: %w", depIDStr, err)
		}
		versions, err := e.Versions.ListByDataSource(ctx, dependsOn)
		if err != nil {
			return fmt.Errorf("storage: list versions of bundle dependency %s: %w", dependsOn, err)
		}
		var pinned uuid.UUID
		for _, v := range versions {
			if v.SemVer.String() == pinnedVersion {
				pinned = v.ID
				break
			}
		}
		if pinned == uuid.Nil {
			continue // the pinned version string doesn't match anything recorded yet
		}
		if _, err := e.Deps.Insert(ctx, model.Dependency{Dependent: dependent, DependsOn: dependsOn, PinnedVersion: pinned}); err != nil {
			return fmt.Errorf("storage: pin bundle dependency %s: %w", dependsOn, err)
		}
	}
	return nil
}
