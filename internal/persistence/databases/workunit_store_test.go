package databases

import (
	"context"
	"testing"
	"time"

	"bioingest/internal/model"
	"bioingest/internal/persistence"

	"github.com/stretchr/testify/require"
)

func TestWorkUnitStore_Claim_NoDoubleAssignment(t *testing.T) {
	ctx := context.Background()
	store := NewWorkUnitStore(nil)
	require.NoError(t, store.Init(ctx))

	job := model.NewID()
	require.NoError(t, store.CreateBatch(ctx, []model.WorkUnit{
		{Job: job, SequenceNumber: 0, StartOffset: 0, EndOffset: 999},
		{Job: job, SequenceNumber: 1, StartOffset: 1000, EndOffset: 1999},
	}))

	first, err := store.Claim(ctx, job, "worker-a", "host-a")
	require.NoError(t, err)
	second, err := store.Claim(ctx, job, "worker-b", "host-b")
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, model.WorkUnitProcessing, first.Status)

	_, err = store.Claim(ctx, job, "worker-c", "host-c")
	require.ErrorIs(t, err, persistence.ErrNoWorkUnit)
}

func TestWorkUnitStore_Fail_RequeueVsTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewWorkUnitStore(nil)
	require.NoError(t, store.Init(ctx))

	job := model.NewID()
	require.NoError(t, store.CreateBatch(ctx, []model.WorkUnit{{Job: job, SequenceNumber: 0, MaxRetries: 1}}))

	claimed, err := store.Claim(ctx, job, "worker-a", "host-a")
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, claimed.ID, "transient", true))

	units, err := store.ListByJob(ctx, job)
	require.NoError(t, err)
	require.Equal(t, model.WorkUnitPending, units[0].Status)
	require.Equal(t, 1, units[0].RetryCount)

	require.NoError(t, store.Fail(ctx, claimed.ID, "fatal", false))
	units, err = store.ListByJob(ctx, job)
	require.NoError(t, err)
	require.Equal(t, model.WorkUnitFailed, units[0].Status)
}

func TestWorkUnitStore_ReclaimStale_RespectsMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := NewWorkUnitStore(nil)
	require.NoError(t, store.Init(ctx))

	job := model.NewID()
	require.NoError(t, store.CreateBatch(ctx, []model.WorkUnit{
		{Job: job, SequenceNumber: 0, MaxRetries: 3, RetryCount: 2},
		{Job: job, SequenceNumber: 1, MaxRetries: 3, RetryCount: 3},
	}))

	_, err := store.Claim(ctx, job, "worker-a", "host-a")
	require.NoError(t, err)
	_, err = store.Claim(ctx, job, "worker-b", "host-b")
	require.NoError(t, err)

	cutoff := time.Now().Add(time.Minute)
	reclaimed, failed, err := store.ReclaimStale(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, 1, reclaimed)
	require.Equal(t, 1, failed)
}
