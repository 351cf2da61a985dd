// ingestd is the ingestion engine's worker daemon: per configured
// organization it discovers new upstream releases, downloads and
// verifies their primary artifact, and then runs the coordinator's
// partitioning together with a pool of worker goroutines that claim and
// store Work Units until every configured organization's current Job is
// complete. It also runs the coordinator's dead-worker reclamation loop
// for the whole process lifetime.
//
// Usage:
//
//	go run cmd/ingestd/main.go [flags]
//
// Flags:
//
//	-config string
//	    Path to the YAML configuration file (default "config.yaml", or via BIOINGEST_CONFIG)
//	-once
//	    Run a single discovery+ingest pass per configured source, then exit
//	-poll-interval duration
//	    Delay between discovery passes when not running -once (default 1h)
package main

import (
	"compress/gzip"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"bioingest/internal/config"
	"bioingest/internal/coordinator"
	"bioingest/internal/discovery"
	"bioingest/internal/fetcher"
	"bioingest/internal/logging"
	"bioingest/internal/model"
	"bioingest/internal/objectstore"
	"bioingest/internal/organism"
	"bioingest/internal/parser"
	"bioingest/internal/persistence"
	"bioingest/internal/persistence/databases"
	"bioingest/internal/storage"
	"bioingest/internal/worker"
)

func main() {
	configPath := flag.String("config", envOrDefault("BIOINGEST_CONFIG", "config.yaml"), "Path to YAML config (BIOINGEST_CONFIG env)")
	once := flag.Bool("once", false, "Run a single discovery+ingest pass per source, then exit")
	pollInterval := flag.Duration("poll-interval", time.Hour, "Delay between discovery passes")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logging.Log.WithError(err).Fatal("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg)
	if err != nil {
		logging.Log.WithError(err).Fatal("init daemon")
	}
	defer d.pool.Close()

	go d.coordinator.RunReclaimLoop(ctx, cfg.HeartbeatInterval(), cfg.WorkerTimeout())

	if *once {
		d.runPass(ctx)
		return
	}

	ticker := time.NewTicker(*pollInterval)
	defer ticker.Stop()
	d.runPass(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Log.Info("ingestd shutting down")
			return
		case <-ticker.C:
			d.runPass(ctx)
		}
	}
}

// daemon holds every long-lived collaborator the ingestion pipeline
// needs, wired once at startup and reused across discovery passes.
type daemon struct {
	cfg         config.Config
	pool        *pgxpool.Pool
	registry    persistence.RegistryStore
	jobs        persistence.JobStore
	rawFiles    persistence.RawFileStore
	cache       *fetcher.DiskCache
	objects     objectstore.ObjectStore
	engine      *storage.Engine
	coordinator *coordinator.Coordinator
}

func newDaemon(ctx context.Context, cfg config.Config) (*daemon, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	registry := databases.NewRegistryStore(pool)
	content := databases.NewContentPoolStore(pool)
	versions := databases.NewVersionStore(pool)
	files := databases.NewVersionFileStore(pool)
	deps := databases.NewDependencyStore(pool)
	metadata := storage.NewMetadataStore(pool)
	jobs := databases.NewJobStore(pool)
	units := databases.NewWorkUnitStore(pool)
	rawFiles := databases.NewRawFileStore(pool)

	for _, initer := range []interface{ Init(context.Context) error }{
		registry, content, versions, files, deps, metadata, jobs, units, rawFiles,
	} {
		if err := initer.Init(ctx); err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
	}

	objects, err := objectstore.NewS3Store(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}

	// The organism Data Sources that UniProt/GenBank records resolve
	// against all live under one dedicated, non-upstream organization,
	// since NCBI Taxonomy itself is ingested as its own Taxon Data
	// Source under its own organization.
	organismOrg, err := registry.UpsertOrganization(ctx, model.Organization{Slug: "organisms", DisplayName: "Resolved Organisms"})
	if err != nil {
		return nil, fmt.Errorf("upsert organisms organization: %w", err)
	}

	taxIndex := storage.NewTaxonomyIndex(pool, registry)
	organisms := organism.New(organism.NewPostgresSource(registry, taxIndex, organismOrg.ID), cfg.OrganismCacheTTL())

	engine := &storage.Engine{
		Registry: registry, Content: content, Versions: versions, Files: files,
		Deps: deps, Metadata: metadata, Organisms: organisms, Objects: objects,
	}

	return &daemon{
		cfg: cfg, pool: pool, registry: registry, jobs: jobs, rawFiles: rawFiles,
		cache:       &fetcher.DiskCache{Root: cfg.CacheDir},
		objects:     objects,
		engine:      engine,
		coordinator: coordinator.New(jobs, units, cfg.BatchSize, cfg.MaxRetries, cfg.WorkerTimeout()),
	}, nil
}

// runPass runs one discovery-and-ingest cycle over every configured
// organization source, logging and continuing past a single source's
// failure so one bad upstream never blocks the rest.
func (d *daemon) runPass(ctx context.Context) {
	for _, src := range d.cfg.Sources {
		if err := d.ingestSource(ctx, src); err != nil {
			logging.Log.WithError(err).WithField("source", src.Slug).Error("ingest source failed")
		}
	}
}

func (d *daemon) ingestSource(ctx context.Context, src config.OrganizationSource) error {
	org, err := d.registry.UpsertOrganization(ctx, model.Organization{Slug: src.Slug, DisplayName: src.Slug})
	if err != nil {
		return fmt.Errorf("upsert organization %s: %w", src.Slug, err)
	}

	jobType, kind, ok := sourceTypeFor(src.Slug)
	if !ok {
		return fmt.Errorf("no source-type mapping configured for %q", src.Slug)
	}

	transport := transportFor(src)
	f := fetcher.New(src.Slug, transport, d.cache, d.objects)

	strategy, err := strategyFor(src)
	if err != nil {
		return err
	}
	candidates, err := strategy.Discover(ctx, f)
	if err != nil {
		return fmt.Errorf("discover %s: %w", src.Slug, err)
	}

	var ingested []discovery.IngestedVersion
	if latest, err := d.jobs.LatestCurrent(ctx, org.ID, jobType); err == nil {
		ingested = append(ingested, discovery.IngestedVersion{ExternalVersion: latest.ExternalVersion, WasCurrent: true})
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("latest current job for %s: %w", src.Slug, err)
	}

	pending := (discovery.Filter{Ingested: ingested}).Apply(candidates)
	for _, dv := range pending {
		if err := d.ingestVersion(ctx, org, jobType, kind, src, f, dv); err != nil {
			logging.Log.WithError(err).WithFields(logging.JobFields("", jobType, org.Slug)).
				WithField("external_version", dv.ExternalVersion).Error("ingest version failed")
		}
	}
	return nil
}

func (d *daemon) ingestVersion(ctx context.Context, org model.Organization, jobType string, kind model.SourceType, src config.OrganizationSource, f *fetcher.Fetcher, dv discovery.DiscoveredVersion) error {
	job, err := d.jobs.Create(ctx, model.Job{
		Organization:    org.ID,
		JobType:         jobType,
		ExternalVersion: dv.ExternalVersion,
		SourceURL:       dv.Location,
		Status:          model.JobStatusPending,
	})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	log := logging.Log.WithFields(logging.JobFields(job.ID.String(), jobType, org.Slug))
	log.Info("job created")

	if err := d.coordinator.StartDownload(ctx, job.ID); err != nil {
		return fmt.Errorf("start download: %w", err)
	}

	dlCtx, cancel := context.WithTimeout(ctx, d.cfg.DownloadTimeout())
	defer cancel()

	remotePath, err := d.locatePrimaryFile(dlCtx, f, src.Slug, dv.Location)
	if err != nil {
		_ = d.coordinator.Fail(ctx, job.ID, err.Error())
		return fmt.Errorf("locate primary file: %w", err)
	}

	result, err := f.Download(dlCtx, remotePath, dv.ExternalVersion, job.ID.String(), fetcher.Checksum{})
	if err != nil {
		_ = d.coordinator.Fail(ctx, job.ID, err.Error())
		return fmt.Errorf("download: %w", err)
	}

	// The cache stores upstream bytes verbatim, including gzip framing;
	// the parsers and the Work Unit offset index both need to seek
	// plain text, so decompress once here rather than teach every
	// scanner about gzip.
	plainPath, err := ensureDecompressed(result.CachePath)
	if err != nil {
		_ = d.coordinator.Fail(ctx, job.ID, err.Error())
		return fmt.Errorf("decompress: %w", err)
	}

	if _, err := d.rawFiles.Create(ctx, model.RawFile{
		// "primary" is the Worker Pool's convention for the raw file a
		// Work Unit's record range partitions; see internal/worker.
		Job: job.ID, Purpose: "primary", ObjectKey: filepath.Base(plainPath),
		ComputedChecksum: result.Computed.SHA256, Verified: true,
	}); err != nil {
		_ = d.coordinator.Fail(ctx, job.ID, err.Error())
		return fmt.Errorf("record raw file: %w", err)
	}

	if auxName, purpose, ok := auxiliaryFileFor(src.Slug); ok {
		if err := d.downloadAuxiliary(dlCtx, f, job.ID, dv, auxName, purpose); err != nil {
			_ = d.coordinator.Fail(ctx, job.ID, err.Error())
			return fmt.Errorf("auxiliary file: %w", err)
		}
	}

	if err := d.coordinator.MarkDownloadVerified(ctx, job.ID); err != nil {
		return fmt.Errorf("mark download verified: %w", err)
	}

	total, err := countRecords(plainPath, kind)
	if err != nil {
		_ = d.coordinator.Fail(ctx, job.ID, err.Error())
		return fmt.Errorf("count records: %w", err)
	}
	if err := d.coordinator.BeginParsing(ctx, job.ID, total); err != nil {
		return fmt.Errorf("begin parsing: %w", err)
	}
	if err := d.coordinator.Partition(ctx, job.ID); err != nil {
		return fmt.Errorf("partition: %w", err)
	}

	if err := d.runWorkers(ctx, job.ID); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}

	done, err := d.coordinator.CheckCompletion(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("check completion: %w", err)
	}
	if done {
		if err := d.jobs.MarkCurrent(ctx, job.ID, org.ID, jobType); err != nil {
			return fmt.Errorf("mark current: %w", err)
		}
		log.Info("job completed")
	} else {
		log.Warn("job did not reach completion this pass; work units remain outstanding")
	}
	return nil
}

// runWorkers drives cfg.MaxWorkers worker goroutines against job until no
// more Work Units remain to claim. It uses an errgroup.Group rather than a
// bare sync.WaitGroup so the first worker failure is returned to the
// caller instead of only logged; a worker's own error doesn't cancel its
// siblings, since one Work Unit's failure shouldn't stop the rest of the
// partition from claiming and finishing theirs.
func (d *daemon) runWorkers(ctx context.Context, jobID uuid.UUID) error {
	var g errgroup.Group
	for i := 0; i < d.cfg.MaxWorkers; i++ {
		workerID := fmt.Sprintf("ingestd-%d", i)
		g.Go(func() error {
			hostname, _ := os.Hostname()
			w := worker.New(workerID, hostname, d.coordinator, d.jobs, d.rawFiles, d.registry, d.engine, d.cache,
				d.cfg.HeartbeatInterval(), d.cfg.StoreBatchSize)
			if err := w.Run(ctx, jobID); err != nil {
				logging.Log.WithError(err).WithField("worker_id", workerID).Error("worker run failed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// downloadAuxiliary fetches and decompresses a per-Job auxiliary file
// (names.dmp, interpro.xml) alongside the primary one, recording it
// under its own RawFile purpose so the worker pool's once-per-Job
// enrichment-map loaders (see internal/worker) can find it.
func (d *daemon) downloadAuxiliary(ctx context.Context, f *fetcher.Fetcher, jobID uuid.UUID, dv discovery.DiscoveredVersion, filename, purpose string) error {
	remotePath := dv.Location + "/" + filename
	result, err := f.Download(ctx, remotePath, dv.ExternalVersion, jobID.String(), fetcher.Checksum{})
	if err != nil {
		return fmt.Errorf("download %s: %w", filename, err)
	}
	plainPath, err := ensureDecompressed(result.CachePath)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", filename, err)
	}
	_, err = d.rawFiles.Create(ctx, model.RawFile{
		Job: jobID, Purpose: purpose, ObjectKey: filepath.Base(plainPath),
		ComputedChecksum: result.Computed.SHA256, Verified: true,
	})
	return err
}

// locatePrimaryFile lists the discovered release directory and returns
// the full remote path to the configured primary data file within it.
func (d *daemon) locatePrimaryFile(ctx context.Context, f *fetcher.Fetcher, slug, directory string) (string, error) {
	name, ok := primaryFileFor(slug)
	if !ok {
		return "", fmt.Errorf("no primary-file convention configured for %q", slug)
	}
	entries, err := f.List(ctx, directory)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", directory, err)
	}
	for _, e := range entries {
		if e.Name == name {
			return directory + "/" + name, nil
		}
	}
	return "", fmt.Errorf("primary file %q not found under %s", name, directory)
}

// primaryFileFor names the single data file each configured organization
// publishes per release, matching spec.md's worked examples.
func primaryFileFor(slug string) (string, bool) {
	switch slug {
	case "uniprot":
		return "uniprot_sprot.dat.gz", true
	case "go":
		return "go-basic.obo", true
	case "ncbi-taxonomy":
		return "nodes.dmp.gz", true
	case "genbank":
		return "gbbct1.seq.gz", true
	case "interpro":
		return "entry.list", true
	default:
		return "", false
	}
}

// auxiliaryFileFor names a second file some organizations publish
// alongside their primary one, which the Worker Pool loads once per Job
// to enrich every record in the primary range (names.dmp's scientific
// names for Taxon records, interpro.xml's member-database cross
// references for Bundle records). Returns ok=false for organizations
// with no such file.
func auxiliaryFileFor(slug string) (filename, purpose string, ok bool) {
	switch slug {
	case "ncbi-taxonomy":
		return "names.dmp.gz", "taxonomy_names", true
	case "interpro":
		return "interpro.xml", "interpro_xml", true
	default:
		return "", "", false
	}
}

// ensureDecompressed returns a plain-text copy of path, decompressing it
// first if it is gzip-compressed. A prior decompression for the same
// cached archive is reused rather than redone.
func ensureDecompressed(path string) (string, error) {
	if !strings.HasSuffix(path, ".gz") {
		return path, nil
	}
	dest := strings.TrimSuffix(path, ".gz")
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()
	gz, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer gz.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, gz); err != nil {
		out.Close()
		return "", err
	}
	return dest, out.Close()
}

// countRecords re-scans the just-downloaded primary file once to get the
// total record count BeginParsing needs before the coordinator can
// compute the ⌈N/B⌉ partition. This mirrors the offset-index build the
// worker pool repeats per Work Unit, which is an acceptable one-time
// sequential pass against what is otherwise an embarrassingly parallel
// pipeline.
func countRecords(cachePath string, kind model.SourceType) (int64, error) {
	f, err := os.Open(cachePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	switch kind {
	case model.SourceTypeProtein, model.SourceTypeGenome:
		idx, err := parser.BuildSentinelIndex(f, "//")
		if err != nil {
			return 0, err
		}
		return int64(len(idx)), nil
	case model.SourceTypeGOTerm:
		idx, err := parser.BuildSentinelIndex(f, "")
		if err != nil {
			return 0, err
		}
		return int64(len(idx)), nil
	default:
		idx, err := parser.BuildLineOffsetIndex(f)
		if err != nil {
			return 0, err
		}
		return int64(len(idx)), nil
	}
}

// strategyFor selects the discovery.Strategy each organization's upstream
// layout needs: UniProt's previous_releases/YYYY_MM directories, GO's and
// NCBI Taxonomy's YYYY-MM-DD archive snapshots, InterPro's NN.N release
// directories, and GenBank's monotonically increasing GB_Release_N.0
// directories (whose release dates are rarely exposed by upstream and so
// fall back to src.DateEstimation's configured linear formula).
func strategyFor(src config.OrganizationSource) (discovery.Strategy, error) {
	switch src.Slug {
	case "uniprot":
		return discovery.MonthlyStrategy{HistoricalPath: src.HistoricalPath}, nil
	case "go", "ncbi-taxonomy":
		return discovery.DailyStrategy{Path: src.HistoricalPath}, nil
	case "interpro":
		return discovery.MajorMinorStrategy{Path: src.HistoricalPath}, nil
	case "genbank":
		return discovery.MonotoneIntegerStrategy{
			Path:    src.HistoricalPath,
			Pattern: discovery.GenBankPattern,
			DateEstimation: discovery.LinearDateEstimation{
				EpochRelease: src.DateEstimation.EpochRelease,
				Epoch:        src.DateEstimation.Epoch,
				Period:       time.Duration(src.DateEstimation.PeriodDays * float64(24*time.Hour)),
			},
		}, nil
	default:
		return nil, fmt.Errorf("no version-discovery strategy configured for organization %q", src.Slug)
	}
}

// sourceTypeFor maps a configured organization slug to the Job type and
// Data Source SourceType it ingests. Real deployments configure one
// organization source per dataset; the slugs below match spec.md's
// worked examples (UniProt proteins, GO terms, NCBI Taxonomy, GenBank
// genomes, InterPro bundles).
func sourceTypeFor(slug string) (jobType string, kind model.SourceType, ok bool) {
	switch slug {
	case "uniprot":
		return "protein", model.SourceTypeProtein, true
	case "go":
		return "go_term", model.SourceTypeGOTerm, true
	case "ncbi-taxonomy":
		return "taxon", model.SourceTypeTaxon, true
	case "genbank":
		return "genome", model.SourceTypeGenome, true
	case "interpro":
		return "bundle", model.SourceTypeBundle, true
	default:
		return "", "", false
	}
}

func transportFor(src config.OrganizationSource) fetcher.Transport {
	if src.Protocol == "http" || src.Protocol == "https" {
		return fetcher.NewHTTPTransport(src.Host, src.Timeout)
	}
	return fetcher.NewFTPTransport(src.Host, src.Timeout)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
