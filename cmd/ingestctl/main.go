// ingestctl is the ingestion engine's operator CLI: the one collaborator
// surface this module owns directly (the HTTP API and web UI are out of
// scope), exposing job creation and job progress queries.
//
// Usage:
//
//	go run cmd/ingestctl/main.go <command> [flags]
//
// Commands:
//
//	create   Create a new Ingestion Job for an organization/job-type/external-version
//	status   Print a Job's progress (counters plus Work Unit tally)
//	current  Print the Job currently flagged current for an organization/job-type
//
// Flags (create):
//
//	-dsn string
//	    PostgreSQL connection string (required or via DATABASE_URL env)
//	-org string
//	    Organization slug (required)
//	-type string
//	    Job type: protein, go_term, taxon, genome, bundle (required)
//	-version string
//	    External version string, e.g. 2024_01 (required)
//	-source-url string
//	    Upstream location recorded on the Job (optional)
//
// Flags (status, current):
//
//	-dsn string
//	    PostgreSQL connection string (required or via DATABASE_URL env)
//	-job string
//	    Job UUID (status only)
//	-org string
//	    Organization slug (current only)
//	-type string
//	    Job type (current only)
//	-worker-timeout duration
//	    Dead-worker threshold for staleness flags (default 300s)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"bioingest/internal/coordinator"
	"bioingest/internal/model"
	"bioingest/internal/persistence/databases"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "create":
		err = runCreate(args)
	case "status":
		err = runStatus(args)
	case "current":
		err = runCurrent(args)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ingestctl <create|status|current> [flags]")
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	dsn := fs.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (DATABASE_URL env)")
	org := fs.String("org", "", "Organization slug (required)")
	jobType := fs.String("type", "", "Job type: protein, go_term, taxon, genome, bundle (required)")
	version := fs.String("version", "", "External version string (required)")
	sourceURL := fs.String("source-url", "", "Upstream location recorded on the Job")
	fs.Parse(args)

	if *dsn == "" {
		return fmt.Errorf("-dsn or DATABASE_URL env required")
	}
	if *org == "" {
		return fmt.Errorf("-org required")
	}
	if *jobType == "" {
		return fmt.Errorf("-type required")
	}
	if *version == "" {
		return fmt.Errorf("-version required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	registry := databases.NewRegistryStore(pool)
	jobs := databases.NewJobStore(pool)
	if err := jobs.Init(ctx); err != nil {
		return fmt.Errorf("init job store: %w", err)
	}

	organization, err := registry.GetOrganization(ctx, *org)
	if err != nil {
		return fmt.Errorf("lookup organization %q: %w", *org, err)
	}

	job, err := jobs.Create(ctx, model.Job{
		Organization:    organization.ID,
		JobType:         *jobType,
		ExternalVersion: *version,
		SourceURL:       *sourceURL,
		Status:          model.JobStatusPending,
	})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	fmt.Printf("job created: %s (organization=%s type=%s version=%s status=%s)\n",
		job.ID, *org, job.JobType, job.ExternalVersion, job.Status)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dsn := fs.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (DATABASE_URL env)")
	jobIDStr := fs.String("job", "", "Job UUID (required)")
	workerTimeout := fs.Duration("worker-timeout", 300*time.Second, "Dead-worker threshold for staleness flags")
	fs.Parse(args)

	if *dsn == "" {
		return fmt.Errorf("-dsn or DATABASE_URL env required")
	}
	if *jobIDStr == "" {
		return fmt.Errorf("-job required")
	}
	jobID, err := uuid.Parse(*jobIDStr)
	if err != nil {
		return fmt.Errorf("parse -job: %w", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	jobs := databases.NewJobStore(pool)
	units := databases.NewWorkUnitStore(pool)
	if err := jobs.Init(ctx); err != nil {
		return fmt.Errorf("init job store: %w", err)
	}
	if err := units.Init(ctx); err != nil {
		return fmt.Errorf("init work unit store: %w", err)
	}

	c := coordinator.New(jobs, units, 0, 0, *workerTimeout)
	p, err := c.Progress(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	printProgress(p)
	return nil
}

func runCurrent(args []string) error {
	fs := flag.NewFlagSet("current", flag.ExitOnError)
	dsn := fs.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (DATABASE_URL env)")
	org := fs.String("org", "", "Organization slug (required)")
	jobType := fs.String("type", "", "Job type (required)")
	workerTimeout := fs.Duration("worker-timeout", 300*time.Second, "Dead-worker threshold for staleness flags")
	fs.Parse(args)

	if *dsn == "" {
		return fmt.Errorf("-dsn or DATABASE_URL env required")
	}
	if *org == "" {
		return fmt.Errorf("-org required")
	}
	if *jobType == "" {
		return fmt.Errorf("-type required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	registry := databases.NewRegistryStore(pool)
	jobs := databases.NewJobStore(pool)
	units := databases.NewWorkUnitStore(pool)
	if err := jobs.Init(ctx); err != nil {
		return fmt.Errorf("init job store: %w", err)
	}
	if err := units.Init(ctx); err != nil {
		return fmt.Errorf("init work unit store: %w", err)
	}

	organization, err := registry.GetOrganization(ctx, *org)
	if err != nil {
		return fmt.Errorf("lookup organization %q: %w", *org, err)
	}
	job, err := jobs.LatestCurrent(ctx, organization.ID, *jobType)
	if err != nil {
		return fmt.Errorf("latest current job: %w", err)
	}

	c := coordinator.New(jobs, units, 0, 0, *workerTimeout)
	p, err := c.Progress(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	printProgress(p)
	return nil
}

func printProgress(p coordinator.Progress) {
	fmt.Printf("job:              %s\n", p.Job.ID)
	fmt.Printf("status:           %s\n", p.Job.Status)
	fmt.Printf("external_version: %s\n", p.Job.ExternalVersion)
	fmt.Printf("total_records:    %d\n", p.Job.TotalRecords)
	fmt.Printf("records_stored:   %d\n", p.Job.RecordsStored)
	fmt.Printf("records_failed:   %d\n", p.Job.RecordsFailed)
	fmt.Printf("work_units:       %d total, %d done, %d failed, %d pending\n",
		p.WorkUnitsTotal, p.WorkUnitsDone, p.WorkUnitsFailed, p.WorkUnitsPending)
	if len(p.StatusHistogram) > 0 {
		fmt.Printf("status histogram:\n")
		for _, status := range []model.WorkUnitStatus{model.WorkUnitPending, model.WorkUnitProcessing, model.WorkUnitCompleted, model.WorkUnitFailed} {
			if n := p.StatusHistogram[status]; n > 0 {
				fmt.Printf("  %-11s %d\n", status, n)
			}
		}
	}
	if len(p.ActiveWorkers) > 0 {
		fmt.Printf("active workers:\n")
		for _, w := range p.ActiveWorkers {
			stale := ""
			if w.Stale {
				stale = " STALE"
			}
			fmt.Printf("  %s@%s  unit %d (%s)  last heartbeat %s%s\n",
				w.WorkerID, w.Hostname, w.SequenceNumber, w.WorkUnit, w.LastHeartbeat.Format(time.RFC3339), stale)
		}
	}
	if p.Job.LastError != "" {
		fmt.Printf("last_error:       %s\n", p.Job.LastError)
	}
}
