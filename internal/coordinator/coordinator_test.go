package coordinator

import (
	"context"
	"testing"
	"time"

	"bioingest/internal/model"
	"bioingest/internal/persistence/databases"

	"github.com/stretchr/testify/require"
)

func newTestJob(t *testing.T, jobs interface {
	Create(ctx context.Context, j model.Job) (model.Job, error)
}) model.Job {
	t.Helper()
	j, err := jobs.Create(context.Background(), model.Job{
		Organization:    model.NewID(),
		JobType:         "protein",
		ExternalVersion: "2024_01",
		Status:          model.JobStatusDownloadVerified,
	})
	require.NoError(t, err)
	return j
}

func TestCoordinator_Partition_CoversAllRecordsDisjointly(t *testing.T) {
	ctx := context.Background()
	jobs := databases.NewJobStore(nil)
	units := databases.NewWorkUnitStore(nil)
	require.NoError(t, jobs.Init(ctx))
	require.NoError(t, units.Init(ctx))

	c := New(jobs, units, 100, 3, time.Minute)
	job := newTestJob(t, jobs)

	require.NoError(t, c.BeginParsing(ctx, job.ID, 250))
	require.NoError(t, c.Partition(ctx, job.ID))

	list, err := units.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	byIndex := map[int]model.WorkUnit{}
	for _, u := range list {
		byIndex[u.SequenceNumber] = u
	}
	require.Equal(t, int64(0), byIndex[0].StartOffset)
	require.Equal(t, int64(100), byIndex[0].EndOffset)
	require.Equal(t, int64(100), byIndex[1].StartOffset)
	require.Equal(t, int64(200), byIndex[1].EndOffset)
	require.Equal(t, int64(200), byIndex[2].StartOffset)
	require.Equal(t, int64(250), byIndex[2].EndOffset, "the last unit must not overrun total_records")

	stored, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusStoring, stored.Status)
}

func TestCoordinator_CheckCompletion_PartialFailureStillCompletes(t *testing.T) {
	ctx := context.Background()
	jobs := databases.NewJobStore(nil)
	units := databases.NewWorkUnitStore(nil)
	require.NoError(t, jobs.Init(ctx))
	require.NoError(t, units.Init(ctx))

	c := New(jobs, units, 100, 3, time.Minute)
	job := newTestJob(t, jobs)
	require.NoError(t, c.BeginParsing(ctx, job.ID, 150))
	require.NoError(t, c.Partition(ctx, job.ID))

	list, err := units.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	done, err := c.CheckCompletion(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, done, "completion must wait for every work unit to leave pending/processing")

	require.NoError(t, units.Complete(ctx, list[0].ID, 10))
	require.NoError(t, units.Fail(ctx, list[1].ID, "parse error", false))

	done, err = c.CheckCompletion(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, done)

	stored, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusCompleted, stored.Status)
	require.Equal(t, int64(1), stored.RecordsFailed)
}

func TestCoordinator_ReclaimDeadWorkers_RequeuesStaleClaim(t *testing.T) {
	ctx := context.Background()
	jobs := databases.NewJobStore(nil)
	units := databases.NewWorkUnitStore(nil)
	require.NoError(t, jobs.Init(ctx))
	require.NoError(t, units.Init(ctx))

	c := New(jobs, units, 100, 3, time.Minute)
	job := newTestJob(t, jobs)
	require.NoError(t, c.BeginParsing(ctx, job.ID, 100))
	require.NoError(t, c.Partition(ctx, job.ID))

	claimed, err := units.Claim(ctx, job.ID, "worker-a", "host-a")
	require.NoError(t, err)

	reclaimed, failed, err := c.ReclaimDeadWorkers(ctx, -time.Second) // every claim looks stale
	require.NoError(t, err)
	require.Equal(t, 1, reclaimed)
	require.Equal(t, 0, failed)

	list, err := units.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	for _, u := range list {
		if u.ID == claimed.ID {
			require.Equal(t, model.WorkUnitPending, u.Status)
			require.Equal(t, 1, u.RetryCount)
		}
	}
}

func TestCoordinator_Progress_TalliesWorkUnitStatuses(t *testing.T) {
	ctx := context.Background()
	jobs := databases.NewJobStore(nil)
	units := databases.NewWorkUnitStore(nil)
	require.NoError(t, jobs.Init(ctx))
	require.NoError(t, units.Init(ctx))

	c := New(jobs, units, 50, 3, time.Minute)
	job := newTestJob(t, jobs)
	require.NoError(t, c.BeginParsing(ctx, job.ID, 100))
	require.NoError(t, c.Partition(ctx, job.ID))

	list, err := units.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, units.Complete(ctx, list[0].ID, 5))

	claimed, err := units.Claim(ctx, job.ID, "worker-1", "host-1")
	require.NoError(t, err)

	p, err := c.Progress(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, 2, p.WorkUnitsTotal)
	require.Equal(t, 1, p.WorkUnitsDone)
	require.Equal(t, 0, p.WorkUnitsPending)
	require.Equal(t, 1, p.StatusHistogram[model.WorkUnitCompleted])
	require.Equal(t, 1, p.StatusHistogram[model.WorkUnitProcessing])
	require.Len(t, p.ActiveWorkers, 1)
	require.Equal(t, "worker-1", p.ActiveWorkers[0].WorkerID)
	require.Equal(t, "host-1", p.ActiveWorkers[0].Hostname)
	require.Equal(t, claimed.ID, p.ActiveWorkers[0].WorkUnit)
	require.False(t, p.ActiveWorkers[0].Stale)
}
