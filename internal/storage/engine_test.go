package storage_test

import (
	"context"
	"testing"
	"time"

	"bioingest/internal/model"
	"bioingest/internal/objectstore"
	"bioingest/internal/organism"
	"bioingest/internal/persistence/databases"
	"bioingest/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	ctx := context.Background()

	registry := databases.NewRegistryStore(nil)
	content := databases.NewContentPoolStore(nil)
	versions := databases.NewVersionStore(nil)
	files := databases.NewVersionFileStore(nil)
	deps := databases.NewDependencyStore(nil)
	metadata := storage.NewMetadataStore(nil)
	objects := objectstore.NewMemoryStore()

	require.NoError(t, registry.Init(ctx))
	require.NoError(t, content.Init(ctx))
	require.NoError(t, versions.Init(ctx))
	require.NoError(t, files.Init(ctx))
	require.NoError(t, deps.Init(ctx))
	require.NoError(t, metadata.Init(ctx))

	taxIndex := storage.NewTaxonomyIndex(nil, registry)
	cache := organism.New(organism.NewPostgresSource(registry, taxIndex, uuid.New()), time.Minute)

	return &storage.Engine{
		Registry:  registry,
		Content:   content,
		Versions:  versions,
		Files:     files,
		Deps:      deps,
		Metadata:  metadata,
		Organisms: cache,
		Objects:   objects,
	}
}

func proteinRecord(slug, sequence string) storage.NormalizedRecord {
	return storage.NormalizedRecord{
		Slug:            slug,
		DisplayName:     slug,
		SourceType:      model.SourceTypeProtein,
		TaxonID:         9606,
		ScientificName:  "Homo sapiens",
		Sequence:        []byte(sequence),
		ExternalVersion: "2024_01",
		ReleaseDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEngine_UpsertProtein_FirstIngestIsInitialBump(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	org := uuid.New()

	result, err := e.UpsertProtein(ctx, org, "uniprot", uuid.Nil, proteinRecord("p12345", "MKV"), storage.ProteinMetadata{
		ProteinName: "Test protein",
		GeneName:    "TP1",
	})
	require.NoError(t, err)
	require.Equal(t, model.BumpInitial, result.BumpKind)
	require.Equal(t, "1.0.0", result.VersionStr)
}

func TestEngine_UpsertProtein_IdenticalReingestIsBumpNone(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	org := uuid.New()

	meta := storage.ProteinMetadata{ProteinName: "Test protein", GeneName: "TP1"}
	rec := proteinRecord("p12345", "MKV")

	first, err := e.UpsertProtein(ctx, org, "uniprot", uuid.Nil, rec, meta)
	require.NoError(t, err)
	require.Equal(t, model.BumpInitial, first.BumpKind)

	second, err := e.UpsertProtein(ctx, org, "uniprot", uuid.Nil, rec, meta)
	require.NoError(t, err)
	require.Equal(t, model.BumpNone, second.BumpKind)
	require.Equal(t, first.VersionID, second.VersionID, "a no-op re-ingest must not mint a new Version row")
}

func TestEngine_UpsertProtein_SequenceChangeIsMajorBump(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	org := uuid.New()

	meta := storage.ProteinMetadata{ProteinName: "Test protein"}
	first, err := e.UpsertProtein(ctx, org, "uniprot", uuid.Nil, proteinRecord("p12345", "MKV"), meta)
	require.NoError(t, err)
	require.Equal(t, model.BumpInitial, first.BumpKind)

	second, err := e.UpsertProtein(ctx, org, "uniprot", uuid.Nil, proteinRecord("p12345", "MKVX"), meta)
	require.NoError(t, err)
	require.Equal(t, model.BumpMajor, second.BumpKind)
	require.Equal(t, "2.0.0", second.VersionStr)
}

func TestEngine_UpsertProtein_GeneNameChangeIsMinorBump(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	org := uuid.New()

	rec := proteinRecord("p12345", "MKV")
	_, err := e.UpsertProtein(ctx, org, "uniprot", uuid.Nil, rec, storage.ProteinMetadata{GeneName: "TP1"})
	require.NoError(t, err)

	second, err := e.UpsertProtein(ctx, org, "uniprot", uuid.Nil, rec, storage.ProteinMetadata{GeneName: "TP2"})
	require.NoError(t, err)
	require.Equal(t, model.BumpMinor, second.BumpKind)
	require.Equal(t, "1.1.0", second.VersionStr)
}

func TestEngine_DependencyCascade_MajorBumpPropagates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	org := uuid.New()

	depRec := storage.NormalizedRecord{Slug: "dep-source", DisplayName: "dep-source", SourceType: model.SourceTypeTaxon, ExternalVersion: "v1"}
	depResult, err := e.UpsertTaxon(ctx, org, "ncbi", uuid.Nil, depRec, storage.TaxonMetadata{ScientificName: "Escherichia coli"})
	require.NoError(t, err)

	bundleRec := storage.NormalizedRecord{Slug: "bundle-a", DisplayName: "bundle-a", SourceType: model.SourceTypeBundle, ExternalVersion: "v1"}
	bundleResult, err := e.UpsertBundle(ctx, org, "bundles", uuid.Nil, bundleRec, storage.BundleMetadata{
		Dependencies: map[string]string{depResult.DataSourceID.String(): "1.0.0"},
	})
	require.NoError(t, err)
	require.Equal(t, model.BumpInitial, bundleResult.BumpKind, "UpsertBundle must wire the Dependencies map into a real Dependency row itself")

	depRec2 := depRec
	depResult2, err := e.UpsertTaxon(ctx, org, "ncbi", uuid.Nil, depRec2, storage.TaxonMetadata{ScientificName: "Escherichia coli K-12"})
	require.NoError(t, err)
	require.Equal(t, model.BumpMajor, depResult2.BumpKind)

	versions, err := e.Versions.ListByDataSource(ctx, bundleResult.DataSourceID)
	require.NoError(t, err)
	require.Len(t, versions, 2, "cascade must have inserted a new bundle version")

	deps, err := e.Deps.ListDependencies(ctx, bundleResult.DataSourceID)
	require.NoError(t, err)
	found := false
	for _, d := range deps {
		if d.DependsOn == depResult.DataSourceID && d.PinnedVersion == depResult2.VersionID {
			found = true
		}
	}
	require.True(t, found, "cascade must repin the dependency edge to the new dependency version")
}

// TestEngine_GOTermObsoletedCascadesToBundle exercises spec.md §8.4
// scenario 4: a bundle that cites a GO term in its cross-references
// picks up a new version once that term is obsoleted, without any
// caller manually seeding the Dependency edge.
func TestEngine_GOTermObsoletedCascadesToBundle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	org := uuid.New()

	// wireGOXrefDependencies resolves a GO term by (organization slug,
	// entry slug), so the organization needs a registered slug, unlike
	// the direct-DataSourceID Dependencies map the sibling cascade test
	// above exercises.
	_, err := e.Registry.UpsertOrganization(ctx, model.Organization{ID: org, Slug: "go", DisplayName: "Gene Ontology"})
	require.NoError(t, err)

	goRec := storage.NormalizedRecord{Slug: "go:0008150", DisplayName: "biological_process", SourceType: model.SourceTypeGOTerm, ExternalVersion: "2024-01-01"}
	goResult, err := e.UpsertGOTerm(ctx, org, "go", uuid.Nil, goRec, storage.GOTermMetadata{Name: "biological_process"})
	require.NoError(t, err)

	bundleRec := storage.NormalizedRecord{Slug: "ipr000001", DisplayName: "ipr000001", SourceType: model.SourceTypeBundle, ExternalVersion: "v1"}
	bundleResult, err := e.UpsertBundle(ctx, org, "interpro", uuid.Nil, bundleRec, storage.BundleMetadata{
		GOCrossReferences: []string{"GO:0008150"},
	})
	require.NoError(t, err)
	require.Equal(t, model.BumpInitial, bundleResult.BumpKind)

	goRec2 := goRec
	goResult2, err := e.UpsertGOTerm(ctx, org, "go", uuid.Nil, goRec2, storage.GOTermMetadata{Name: "biological_process", Obsolete: true})
	require.NoError(t, err)
	require.Equal(t, model.BumpMajor, goResult2.BumpKind)

	versions, err := e.Versions.ListByDataSource(ctx, bundleResult.DataSourceID)
	require.NoError(t, err)
	require.Len(t, versions, 2, "bundle must pick up a new version once its GO xref is obsoleted")

	deps, err := e.Deps.ListDependencies(ctx, bundleResult.DataSourceID)
	require.NoError(t, err)
	found := false
	for _, d := range deps {
		if d.DependsOn == goResult.DataSourceID && d.PinnedVersion == goResult2.VersionID {
			found = true
		}
	}
	require.True(t, found, "cascade must repin the bundle's GO xref dependency to the obsoleted term's new version")
}
