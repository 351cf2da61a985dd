package worker_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"bioingest/internal/coordinator"
	"bioingest/internal/fetcher"
	"bioingest/internal/model"
	"bioingest/internal/objectstore"
	"bioingest/internal/organism"
	"bioingest/internal/persistence"
	"bioingest/internal/persistence/databases"
	"bioingest/internal/storage"
	"bioingest/internal/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const sampleUniProt = `ID   ONE_HUMAN               Reviewed;
AC   P00001;
DE   RecName: Full=First test protein;
GN   Name=GENEONE;
OS   Homo sapiens (Human).
OX   NCBI_TaxID=9606;
SQ   SEQUENCE   3 AA;
     MKV
//
ID   TWO_HUMAN               Reviewed;
AC   P00002;
DE   RecName: Full=Second test protein;
GN   Name=GENETWO;
OS   Homo sapiens (Human).
OX   NCBI_TaxID=9606;
SQ   SEQUENCE   4 AA;
     MKVL
//
`

type testHarness struct {
	jobs        persistence.JobStore
	units       persistence.WorkUnitStore
	rawFiles    persistence.RawFileStore
	registry    persistence.RegistryStore
	coordinator *coordinator.Coordinator
	engine      *storage.Engine
	cache       *fetcher.DiskCache
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	ctx := context.Background()

	registry := databases.NewRegistryStore(nil)
	content := databases.NewContentPoolStore(nil)
	versions := databases.NewVersionStore(nil)
	files := databases.NewVersionFileStore(nil)
	deps := databases.NewDependencyStore(nil)
	metadata := storage.NewMetadataStore(nil)
	objects := objectstore.NewMemoryStore()
	jobs := databases.NewJobStore(nil)
	units := databases.NewWorkUnitStore(nil)
	rawFiles := databases.NewRawFileStore(nil)

	require.NoError(t, registry.Init(ctx))
	require.NoError(t, content.Init(ctx))
	require.NoError(t, versions.Init(ctx))
	require.NoError(t, files.Init(ctx))
	require.NoError(t, deps.Init(ctx))
	require.NoError(t, metadata.Init(ctx))
	require.NoError(t, jobs.Init(ctx))
	require.NoError(t, units.Init(ctx))
	require.NoError(t, rawFiles.Init(ctx))

	taxIndex := storage.NewTaxonomyIndex(nil, registry)
	orgCache := organism.New(organism.NewPostgresSource(registry, taxIndex, uuid.New()), time.Minute)

	engine := &storage.Engine{
		Registry: registry, Content: content, Versions: versions, Files: files,
		Deps: deps, Metadata: metadata, Organisms: orgCache, Objects: objects,
	}

	return &testHarness{
		jobs: jobs, units: units, rawFiles: rawFiles, registry: registry,
		coordinator: coordinator.New(jobs, units, 1, 3, time.Minute),
		engine:      engine,
		cache:       &fetcher.DiskCache{Root: t.TempDir()},
	}
}

func TestWorker_Run_IngestsProteinRangeAcrossWorkUnits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	org, err := h.registry.UpsertOrganization(ctx, model.Organization{Slug: "uniprot", DisplayName: "UniProt"})
	require.NoError(t, err)

	job, err := h.jobs.Create(ctx, model.Job{
		Organization:    org.ID,
		JobType:         "protein",
		ExternalVersion: "2024_01",
		Status:          model.JobStatusDownloadVerified,
	})
	require.NoError(t, err)

	_, err = h.cache.Store(org.Slug, job.ExternalVersion, "uniprot_sprot.dat", strings.NewReader(sampleUniProt))
	require.NoError(t, err)
	_, err = h.rawFiles.Create(ctx, model.RawFile{Job: job.ID, Purpose: "primary", ObjectKey: "uniprot_sprot.dat", Verified: true})
	require.NoError(t, err)

	require.NoError(t, h.coordinator.BeginParsing(ctx, job.ID, 2))
	require.NoError(t, h.coordinator.Partition(ctx, job.ID))

	w := worker.New("w1", "host-a", h.coordinator, h.jobs, h.rawFiles, h.registry, h.engine, h.cache, time.Minute, 1)
	require.NoError(t, w.Run(ctx, job.ID))

	done, err := h.coordinator.CheckCompletion(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, done, "both records parsed successfully: the job must reach completion")

	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.RecordsStored)
	require.Equal(t, int64(0), stored.RecordsFailed)

	_, _, err = h.registry.GetEntryBySlug(ctx, "uniprot", "p00001")
	require.NoError(t, err, "first protein must have been upserted into the registry")
	_, _, err = h.registry.GetEntryBySlug(ctx, "uniprot", "p00002")
	require.NoError(t, err, "second protein must have been upserted into the registry")
}

func TestWorker_Run_NoWorkUnitsReturnsImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	org, err := h.registry.UpsertOrganization(ctx, model.Organization{Slug: "uniprot", DisplayName: "UniProt"})
	require.NoError(t, err)
	job, err := h.jobs.Create(ctx, model.Job{Organization: org.ID, JobType: "protein", Status: model.JobStatusStoring})
	require.NoError(t, err)

	w := worker.New("w1", "host-a", h.coordinator, h.jobs, h.rawFiles, h.registry, h.engine, h.cache, time.Minute, 10)
	require.NoError(t, w.Run(ctx, job.ID))
}
