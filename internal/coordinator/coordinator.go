// Package coordinator owns the Ingestion Job state machine and the
// Work-Unit partition: the single-writer decisions every worker process
// defers to rather than deciding for itself.
package coordinator

import (
	"context"
	"fmt"
	"math"
	"time"

	"bioingest/internal/logging"
	"bioingest/internal/model"
	"bioingest/internal/persistence"

	"github.com/google/uuid"
)

// Coordinator drives Job lifecycle transitions and Work-Unit
// partitioning. It holds no in-process state of its own: every decision
// is read from and written to the JobStore/WorkUnitStore, so any number
// of coordinator instances (one per process, or none at all — workers
// can call these methods directly) may run concurrently without
// stepping on each other.
type Coordinator struct {
	Jobs       persistence.JobStore
	WorkUnits  persistence.WorkUnitStore
	BatchSize  int // Work-Unit record width, spec.md §4.4 (default 1000)
	MaxRetries int // spec.md §4.4 (default 3)

	// WorkerTimeout is the dead-worker threshold (spec.md §4.4, default
	// 300s): a processing Work Unit whose heartbeat is older than this is
	// both reclaimed by ReclaimDeadWorkers and flagged stale by Progress.
	WorkerTimeout time.Duration
}

// New constructs a Coordinator with the given defaults, falling back to
// spec.md's recommended values for non-positive inputs.
func New(jobs persistence.JobStore, workUnits persistence.WorkUnitStore, batchSize, maxRetries int, workerTimeout time.Duration) *Coordinator {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if workerTimeout <= 0 {
		workerTimeout = 300 * time.Second
	}
	return &Coordinator{Jobs: jobs, WorkUnits: workUnits, BatchSize: batchSize, MaxRetries: maxRetries, WorkerTimeout: workerTimeout}
}

// StartDownload transitions a Job from pending to downloading. This is
// the entry point that kicks off the fetcher against the Job's
// SourceURL; the coordinator itself does no fetching.
func (c *Coordinator) StartDownload(ctx context.Context, jobID uuid.UUID) error {
	return c.transition(ctx, jobID, model.JobStatusPending, model.JobStatusDownloading)
}

// MarkDownloadVerified transitions downloading -> download_verified once
// every raw file for the Job is present and checksum-verified.
func (c *Coordinator) MarkDownloadVerified(ctx context.Context, jobID uuid.UUID) error {
	return c.transition(ctx, jobID, model.JobStatusDownloading, model.JobStatusDownloadVerified)
}

// BeginParsing transitions download_verified -> parsing and records the
// authoritative total_records count the parser counted up front; this
// count drives Work-Unit partitioning and must not change afterward.
func (c *Coordinator) BeginParsing(ctx context.Context, jobID uuid.UUID, totalRecords int64) error {
	job, err := c.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("coordinator: load job %s: %w", jobID, err)
	}
	if job.Status != model.JobStatusDownloadVerified {
		return fmt.Errorf("coordinator: job %s: expected status %s, got %s", jobID, model.JobStatusDownloadVerified, job.Status)
	}
	if err := c.Jobs.UpdateProgress(ctx, jobID, 0, 0, 0); err != nil {
		return fmt.Errorf("coordinator: reset job %s progress: %w", jobID, err)
	}
	if err := c.Jobs.UpdateTotalRecords(ctx, jobID, totalRecords); err != nil {
		return fmt.Errorf("coordinator: set total_records for job %s: %w", jobID, err)
	}
	if err := c.Jobs.UpdateStatus(ctx, jobID, model.JobStatusParsing, ""); err != nil {
		return fmt.Errorf("coordinator: transition job %s to parsing: %w", jobID, err)
	}
	return nil
}

// Partition creates ⌈N/B⌉ Work Units with disjoint, covering ranges
// [iB, min((i+1)B, N)) for a Job, and transitions it to storing once the
// batch is created. spec.md §4.4 requires this to run as a single
// transaction; WorkUnitStore.CreateBatch is the transactional boundary.
func (c *Coordinator) Partition(ctx context.Context, jobID uuid.UUID) error {
	job, err := c.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("coordinator: load job %s: %w", jobID, err)
	}
	if job.Status != model.JobStatusParsing {
		return fmt.Errorf("coordinator: job %s: expected status %s, got %s", jobID, model.JobStatusParsing, job.Status)
	}
	if job.TotalRecords <= 0 {
		return fmt.Errorf("coordinator: job %s: total_records must be set before partitioning", jobID)
	}

	count := int(math.Ceil(float64(job.TotalRecords) / float64(c.BatchSize)))
	units := make([]model.WorkUnit, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * int64(c.BatchSize)
		end := min64(int64(i+1)*int64(c.BatchSize), job.TotalRecords)
		units = append(units, model.WorkUnit{
			ID:             model.NewID(),
			Job:            jobID,
			SequenceNumber: i,
			StartOffset:    start,
			EndOffset:      end,
			ExpectedCount:  end - start,
			Status:         model.WorkUnitPending,
			MaxRetries:     c.MaxRetries,
		})
	}

	if err := c.WorkUnits.CreateBatch(ctx, units); err != nil {
		return fmt.Errorf("coordinator: create work units for job %s: %w", jobID, err)
	}

	logging.Log.WithFields(logging.JobFields(jobID.String(), job.JobType, job.Organization.String())).
		WithField("work_units", count).WithField("total_records", job.TotalRecords).Info("job partitioned into work units")

	return c.Jobs.UpdateStatus(ctx, jobID, model.JobStatusStoring, "")
}

// CheckCompletion reports whether every Work Unit of a Job has left the
// pending/processing states, per spec.md §4.4's completion query, and if
// so transitions the Job to completed. A Job with any failed units is
// still completed — partial success, reflected in records_failed.
func (c *Coordinator) CheckCompletion(ctx context.Context, jobID uuid.UUID) (bool, error) {
	units, err := c.WorkUnits.ListByJob(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("coordinator: list work units for job %s: %w", jobID, err)
	}

	var failed int64
	for _, u := range units {
		if u.Status != model.WorkUnitCompleted && u.Status != model.WorkUnitFailed {
			return false, nil
		}
		if u.Status == model.WorkUnitFailed {
			failed++
		}
	}
	if len(units) == 0 {
		return false, nil
	}

	job, err := c.Jobs.Get(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("coordinator: load job %s: %w", jobID, err)
	}
	if err := c.Jobs.UpdateProgress(ctx, jobID, job.RecordsProcessed, job.RecordsStored, failed); err != nil {
		return false, fmt.Errorf("coordinator: finalize job %s counters: %w", jobID, err)
	}
	if err := c.Jobs.UpdateStatus(ctx, jobID, model.JobStatusCompleted, ""); err != nil {
		return false, fmt.Errorf("coordinator: complete job %s: %w", jobID, err)
	}
	return true, nil
}

// Fail transitions a Job to failed from any phase, per spec.md §4.4's
// "any phase may transition to failed".
func (c *Coordinator) Fail(ctx context.Context, jobID uuid.UUID, reason string) error {
	if err := c.Jobs.UpdateStatus(ctx, jobID, model.JobStatusFailed, reason); err != nil {
		return fmt.Errorf("coordinator: fail job %s: %w", jobID, err)
	}
	return nil
}

// ReclaimDeadWorkers resets Work Units whose heartbeat is older than
// workerTimeout back to pending (incrementing retry_count), or to failed
// once max_retries is exhausted. Intended to run on a ticker at
// heartbeat_interval*2, per spec.md §4.4.
func (c *Coordinator) ReclaimDeadWorkers(ctx context.Context, workerTimeout time.Duration) (reclaimed, failedCount int, err error) {
	cutoff := time.Now().Add(-workerTimeout)
	reclaimed, failedCount, err = c.WorkUnits.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("coordinator: reclaim stale work units: %w", err)
	}
	if reclaimed > 0 || failedCount > 0 {
		logging.Log.WithField("reclaimed", reclaimed).WithField("failed", failedCount).Info("dead worker reclamation pass")
	}
	return reclaimed, failedCount, nil
}

// RunReclaimLoop blocks reclaiming dead workers every interval until ctx
// is canceled. Callers run this in its own goroutine, one per process.
func (c *Coordinator) RunReclaimLoop(ctx context.Context, interval, workerTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := c.ReclaimDeadWorkers(ctx, workerTimeout); err != nil {
				logging.Log.WithError(err).Error("dead worker reclamation pass failed")
			}
		}
	}
}

// WorkerActivity is one claiming worker's last-known position, for the
// active-worker list spec.md §6.3 requires.
type WorkerActivity struct {
	WorkerID       string
	Hostname       string
	WorkUnit       uuid.UUID
	SequenceNumber int
	LastHeartbeat  time.Time
	Stale          bool // heartbeat older than Coordinator.WorkerTimeout
}

// Progress is the read-only snapshot spec.md §6.3 exposes to callers
// polling job status.
type Progress struct {
	Job              model.Job
	WorkUnitsTotal   int
	WorkUnitsDone    int
	WorkUnitsFailed  int
	WorkUnitsPending int

	// StatusHistogram counts Work Units per status, spec.md §6.3's
	// "per-Work-Unit status histogram".
	StatusHistogram map[model.WorkUnitStatus]int

	// ActiveWorkers lists every worker currently claiming a processing
	// Work Unit, each flagged stale once its heartbeat exceeds
	// Coordinator.WorkerTimeout.
	ActiveWorkers []WorkerActivity
}

// Progress loads a Job's current counters plus a live tally over its
// Work Units, for the job-progress external interface.
func (c *Coordinator) Progress(ctx context.Context, jobID uuid.UUID) (Progress, error) {
	job, err := c.Jobs.Get(ctx, jobID)
	if err != nil {
		return Progress{}, fmt.Errorf("coordinator: load job %s: %w", jobID, err)
	}
	units, err := c.WorkUnits.ListByJob(ctx, jobID)
	if err != nil {
		return Progress{}, fmt.Errorf("coordinator: list work units for job %s: %w", jobID, err)
	}

	workerTimeout := c.WorkerTimeout
	if workerTimeout <= 0 {
		workerTimeout = 300 * time.Second
	}
	staleCutoff := time.Now().Add(-workerTimeout)

	p := Progress{
		Job:             job,
		WorkUnitsTotal:  len(units),
		StatusHistogram: make(map[model.WorkUnitStatus]int, 4),
	}
	for _, u := range units {
		p.StatusHistogram[u.Status]++
		switch u.Status {
		case model.WorkUnitCompleted:
			p.WorkUnitsDone++
		case model.WorkUnitFailed:
			p.WorkUnitsFailed++
		case model.WorkUnitPending:
			p.WorkUnitsPending++
		}

		if u.Status == model.WorkUnitProcessing && u.WorkerID != "" {
			activity := WorkerActivity{
				WorkerID:       u.WorkerID,
				Hostname:       u.WorkerHostname,
				WorkUnit:       u.ID,
				SequenceNumber: u.SequenceNumber,
			}
			if u.HeartbeatAt != nil {
				activity.LastHeartbeat = *u.HeartbeatAt
				activity.Stale = u.HeartbeatAt.Before(staleCutoff)
			} else {
				// Claimed but never heartbeated: treat as stale by
				// construction rather than reporting a zero time.
				activity.Stale = true
			}
			p.ActiveWorkers = append(p.ActiveWorkers, activity)
		}
	}
	return p, nil
}

func (c *Coordinator) transition(ctx context.Context, jobID uuid.UUID, from, to model.JobStatus) error {
	job, err := c.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("coordinator: load job %s: %w", jobID, err)
	}
	if job.Status != from {
		return fmt.Errorf("coordinator: job %s: expected status %s, got %s", jobID, from, job.Status)
	}
	if err := c.Jobs.UpdateStatus(ctx, jobID, to, ""); err != nil {
		return fmt.Errorf("coordinator: transition job %s %s->%s: %w", jobID, from, to, err)
	}
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
