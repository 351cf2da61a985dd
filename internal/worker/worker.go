// Package worker implements the Worker Pool: processes that claim a
// Work Unit, parse its record range, and drive it through the Storage
// Engine, reporting progress back to the Job coordination record.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bioingest/internal/coordinator"
	"bioingest/internal/fetcher"
	"bioingest/internal/logging"
	"bioingest/internal/model"
	"bioingest/internal/parser"
	"bioingest/internal/persistence"
	"bioingest/internal/storage"

	"github.com/google/uuid"
)

// ErrJobCanceled is returned by processUnit when the Job was observed
// failed mid-range: the worker stops at the next batch boundary rather
// than mid-record, per spec.md §5's cooperative cancellation.
var ErrJobCanceled = errors.New("worker: job canceled")

// rawFilePurposePrimary names the RawFile carrying the record range a
// Work Unit partitions. Auxiliary files (names.dmp, interpro.xml) are
// tracked under their own purposes and loaded whole, once per Job.
const (
	rawFilePurposePrimary   = "primary"
	rawFilePurposeTaxNames  = "taxonomy_names"
	rawFilePurposeInterProX = "interpro_xml"
)

var jobTypeToSourceType = map[string]model.SourceType{
	"protein": model.SourceTypeProtein,
	"go_term": model.SourceTypeGOTerm,
	"taxon":   model.SourceTypeTaxon,
	"genome":  model.SourceTypeGenome,
	"bundle":  model.SourceTypeBundle,
}

// Worker claims Work Units for one Job and drives each through parsing
// and storage. One Worker instance is one logical worker process;
// callers run several concurrently (spec.md's max_workers) each with a
// distinct ID.
type Worker struct {
	ID       string
	Hostname string

	Coordinator *coordinator.Coordinator
	Jobs        persistence.JobStore
	RawFiles    persistence.RawFileStore
	Registry    persistence.RegistryStore
	Engine      *storage.Engine
	Cache       *fetcher.DiskCache

	HeartbeatInterval time.Duration
	StoreBatchSize    int

	mu        sync.Mutex
	indexes   map[string]parser.OffsetIndex
	taxNames  map[uuid.UUID]map[int]string
	interpros map[uuid.UUID]map[string]parser.InterProEntry
}

// New constructs a Worker, falling back to spec.md's defaults for
// non-positive inputs.
func New(id, hostname string, c *coordinator.Coordinator, jobs persistence.JobStore, rawFiles persistence.RawFileStore,
	registry persistence.RegistryStore, engine *storage.Engine, cache *fetcher.DiskCache, heartbeatInterval time.Duration, storeBatchSize int) *Worker {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	if storeBatchSize <= 0 {
		storeBatchSize = 100
	}
	return &Worker{
		ID: id, Hostname: hostname,
		Coordinator: c, Jobs: jobs, RawFiles: rawFiles, Registry: registry, Engine: engine, Cache: cache,
		HeartbeatInterval: heartbeatInterval, StoreBatchSize: storeBatchSize,
		indexes: make(map[string]parser.OffsetIndex), taxNames: make(map[uuid.UUID]map[int]string),
		interpros: make(map[uuid.UUID]map[string]parser.InterProEntry),
	}
}

// Run claims and processes Work Units for jobID until none remain
// (persistence.ErrNoWorkUnit), or ctx is canceled.
func (w *Worker) Run(ctx context.Context, jobID uuid.UUID) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := w.Jobs.Get(ctx, jobID)
		if err != nil {
			return fmt.Errorf("worker: load job %s: %w", jobID, err)
		}

		unit, err := w.Coordinator.WorkUnits.Claim(ctx, jobID, w.ID, w.Hostname)
		if errors.Is(err, persistence.ErrNoWorkUnit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("worker: claim work unit for job %s: %w", jobID, err)
		}

		w.processClaimedUnit(ctx, job, unit)
	}
}

// processClaimedUnit drives one already-claimed Work Unit to completion
// or failure, never returning an error: a processing failure is
// reported through the Work Unit's own state, not propagated to Run's
// caller, so one bad range doesn't halt the rest of the Job.
func (w *Worker) processClaimedUnit(ctx context.Context, job model.Job, unit model.WorkUnit) {
	fields := logging.WorkUnitFields(job.ID.String(), unit.SequenceNumber, w.ID)
	stopHeartbeat := w.startHeartbeat(ctx, unit.ID)
	start := time.Now()

	ok, failed, err := w.processUnit(ctx, job, unit)
	stopHeartbeat()
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		requeue := unit.RetryCount < unit.MaxRetries && !errors.Is(err, ErrJobCanceled)
		if ferr := w.Coordinator.WorkUnits.Fail(ctx, unit.ID, err.Error(), requeue); ferr != nil {
			logging.Log.WithFields(fields).WithError(ferr).Error("failed to record work unit failure")
		}
		logging.Log.WithFields(fields).WithError(err).WithField("requeued", requeue).Warn("work unit failed")
		return
	}

	if cerr := w.Coordinator.WorkUnits.Complete(ctx, unit.ID, durationMs); cerr != nil {
		logging.Log.WithFields(fields).WithError(cerr).Error("failed to record work unit completion")
		return
	}
	if ierr := w.Jobs.IncrementProgress(ctx, job.ID, ok+failed, ok, failed); ierr != nil {
		logging.Log.WithFields(fields).WithError(ierr).Error("failed to report job progress")
	}
	logging.Log.WithFields(fields).WithField("records_stored", ok).WithField("records_failed", failed).
		Info("work unit completed")
}

// startHeartbeat runs a goroutine that renews the Work Unit's claim every
// HeartbeatInterval until the returned stop func is called.
func (w *Worker) startHeartbeat(ctx context.Context, unitID uuid.UUID) (stop func()) {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := w.Coordinator.WorkUnits.Heartbeat(ctx, unitID, w.ID); err != nil {
					logging.Log.WithField("work_unit", unitID.String()).WithError(err).Warn("heartbeat failed")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// processUnit parses and stores the record range a claimed Work Unit
// covers, checkpointing progress and polling for cancellation every
// StoreBatchSize records. A non-nil error means the range did not
// complete (IO failure, malformed file, or a canceled Job) and the unit
// should be retried or failed; per-record storage errors are counted in
// failed and do not abort the range, mirroring the parser's own
// skip-and-count policy.
func (w *Worker) processUnit(ctx context.Context, job model.Job, unit model.WorkUnit) (stored, failed int64, err error) {
	sourceType, ok := jobTypeToSourceType[job.JobType]
	if !ok {
		return 0, 0, fmt.Errorf("worker: unknown job type %q", job.JobType)
	}
	kind, ok := sourceKinds[sourceType]
	if !ok {
		return 0, 0, fmt.Errorf("worker: no record source for %q", sourceType)
	}

	org, err := w.Registry.GetOrganizationByID(ctx, job.Organization)
	if err != nil {
		return 0, 0, fmt.Errorf("worker: resolve organization %s: %w", job.Organization, err)
	}

	primary, err := w.findRawFile(ctx, job.ID, rawFilePurposePrimary)
	if err != nil {
		return 0, 0, err
	}
	path := w.Cache.Path(org.Slug, job.ExternalVersion, filepath.Base(primary.ObjectKey))

	index, err := w.offsetIndex(path, kind.buildIndex)
	if err != nil {
		return 0, 0, fmt.Errorf("worker: build offset index for %s: %w", path, err)
	}

	openRange := kind.openRange
	if sourceType == model.SourceTypeTaxon {
		names, nerr := w.taxonomyNames(ctx, job, org)
		if nerr != nil {
			return 0, 0, nerr
		}
		openRange = newTaxonRangeOpener(names)
	}
	if sourceType == model.SourceTypeBundle {
		entries, ierr := w.interproEntries(ctx, job, org)
		if ierr != nil {
			return 0, 0, ierr
		}
		openRange = newBundleRangeOpener(entries)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("worker: open %s: %w", path, err)
	}
	defer f.Close()

	src, err := openRange(f, index, int(unit.StartOffset), int(unit.EndOffset))
	if err != nil {
		return 0, 0, fmt.Errorf("worker: open record range: %w", err)
	}

	sinceCheckpoint := 0
	for {
		more, nerr := src.next()
		if nerr != nil {
			return stored, failed, fmt.Errorf("worker: %w", nerr)
		}
		if !more {
			break
		}

		norm, meta := src.record()
		if uerr := w.upsert(ctx, job, org, norm, meta); uerr != nil {
			failed++
			logging.Log.WithField("job_id", job.ID.String()).WithField("slug", norm.Slug).
				WithError(uerr).Warn("record failed to store")
		} else {
			stored++
		}

		sinceCheckpoint++
		if sinceCheckpoint >= w.StoreBatchSize {
			sinceCheckpoint = 0
			if cerr := w.checkpoint(ctx, job.ID); cerr != nil {
				return stored, failed, cerr
			}
		}
	}

	if parseStats := src.stats(); parseStats.RecordsSkipped > 0 {
		failed += int64(parseStats.RecordsSkipped)
		logging.Log.WithField("job_id", job.ID.String()).WithField("sequence_number", unit.SequenceNumber).
			WithField("records_skipped", parseStats.RecordsSkipped).Warn("range contained malformed records")
	}
	return stored, failed, nil
}

// checkpoint reports partial progress and checks for cooperative
// cancellation at a batch boundary: spec.md §5 requires workers to stop
// promptly once a Job is marked failed, but never mid-record.
func (w *Worker) checkpoint(ctx context.Context, jobID uuid.UUID) error {
	job, err := w.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("worker: checkpoint: reload job %s: %w", jobID, err)
	}
	if job.Status == model.JobStatusFailed {
		return ErrJobCanceled
	}
	return nil
}

func (w *Worker) upsert(ctx context.Context, job model.Job, org model.Organization, norm storage.NormalizedRecord, meta any) error {
	norm.ExternalVersion = job.ExternalVersion
	switch m := meta.(type) {
	case storage.ProteinMetadata:
		_, err := w.Engine.UpsertProtein(ctx, org.ID, org.Slug, org.DefaultLicense, norm, m)
		return err
	case storage.GOTermMetadata:
		_, err := w.Engine.UpsertGOTerm(ctx, org.ID, org.Slug, org.DefaultLicense, norm, m)
		return err
	case storage.TaxonMetadata:
		_, err := w.Engine.UpsertTaxon(ctx, org.ID, org.Slug, org.DefaultLicense, norm, m)
		return err
	case storage.GenomeMetadata:
		_, err := w.Engine.UpsertGenome(ctx, org.ID, org.Slug, org.DefaultLicense, norm, m)
		return err
	case storage.BundleMetadata:
		_, err := w.Engine.UpsertBundle(ctx, org.ID, org.Slug, org.DefaultLicense, norm, m)
		return err
	default:
		return fmt.Errorf("worker: unhandled metadata type %T", meta)
	}
}

func (w *Worker) findRawFile(ctx context.Context, jobID uuid.UUID, purpose string) (model.RawFile, error) {
	files, err := w.RawFiles.ListByJob(ctx, jobID)
	if err != nil {
		return model.RawFile{}, fmt.Errorf("worker: list raw files for job %s: %w", jobID, err)
	}
	for _, f := range files {
		if f.Purpose == purpose {
			return f, nil
		}
	}
	return model.RawFile{}, fmt.Errorf("worker: job %s has no raw file with purpose %q", jobID, purpose)
}

// offsetIndex returns the cached OffsetIndex for path, building it once
// per process: every Work Unit of the same Job re-reads the same file
// to seek into a different range, so the index is worth sharing.
func (w *Worker) offsetIndex(path string, build buildIndexFunc) (parser.OffsetIndex, error) {
	w.mu.Lock()
	if idx, ok := w.indexes[path]; ok {
		w.mu.Unlock()
		return idx, nil
	}
	w.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	idx, err := build(f)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.indexes[path] = idx
	w.mu.Unlock()
	return idx, nil
}

func (w *Worker) taxonomyNames(ctx context.Context, job model.Job, org model.Organization) (map[int]string, error) {
	w.mu.Lock()
	if names, ok := w.taxNames[job.ID]; ok {
		w.mu.Unlock()
		return names, nil
	}
	w.mu.Unlock()

	raw, err := w.findRawFile(ctx, job.ID, rawFilePurposeTaxNames)
	if err != nil {
		return nil, err
	}
	path := w.Cache.Path(org.Slug, job.ExternalVersion, filepath.Base(raw.ObjectKey))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("worker: open %s: %w", path, err)
	}
	defer f.Close()

	names := make(map[int]string)
	scanner := parser.NewTaxonomyNameScanner(f)
	for scanner.Scan() {
		n := scanner.Record()
		if n.NameClass == "scientific name" {
			names[n.TaxonID] = n.Name
		}
	}

	w.mu.Lock()
	w.taxNames[job.ID] = names
	w.mu.Unlock()
	return names, nil
}

func (w *Worker) interproEntries(ctx context.Context, job model.Job, org model.Organization) (map[string]parser.InterProEntry, error) {
	w.mu.Lock()
	if entries, ok := w.interpros[job.ID]; ok {
		w.mu.Unlock()
		return entries, nil
	}
	w.mu.Unlock()

	raw, err := w.findRawFile(ctx, job.ID, rawFilePurposeInterProX)
	if err != nil {
		return nil, err
	}
	path := w.Cache.Path(org.Slug, job.ExternalVersion, filepath.Base(raw.ObjectKey))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("worker: open %s: %w", path, err)
	}
	defer f.Close()

	list, err := parser.ParseInterProXML(f)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]parser.InterProEntry, len(list))
	for _, e := range list {
		entries[e.ID] = e
	}

	w.mu.Lock()
	w.interpros[job.ID] = entries
	w.mu.Unlock()
	return entries, nil
}
