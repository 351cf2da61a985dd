package organism

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	listCalls int32
	rows      map[int64]uuid.UUID
	created   map[int64]uuid.UUID
}

func (f *fakeSource) ListOrganisms(ctx context.Context) (map[int64]uuid.UUID, error) {
	atomic.AddInt32(&f.listCalls, 1)
	out := make(map[int64]uuid.UUID, len(f.rows))
	for k, v := range f.rows {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) GetOrCreate(ctx context.Context, taxonID int64, name string) (uuid.UUID, error) {
	if id, ok := f.created[taxonID]; ok {
		return id, nil
	}
	id := uuid.New()
	f.created[taxonID] = id
	return id, nil
}

func TestCache_Resolve_HitsCacheAfterRefresh(t *testing.T) {
	human := uuid.New()
	src := &fakeSource{rows: map[int64]uuid.UUID{9606: human}, created: map[int64]uuid.UUID{}}
	c := New(src, time.Minute)

	id, err := c.Resolve(context.Background(), 9606, "Homo sapiens")
	require.NoError(t, err)
	require.Equal(t, human, id)

	// Second resolve within TTL must not trigger another bulk list.
	_, err = c.Resolve(context.Background(), 9606, "Homo sapiens")
	require.NoError(t, err)
	require.Equal(t, int32(1), src.listCalls)
}

func TestCache_Resolve_FallsThroughToCreateOnMiss(t *testing.T) {
	src := &fakeSource{rows: map[int64]uuid.UUID{}, created: map[int64]uuid.UUID{}}
	c := New(src, time.Minute)

	id, err := c.Resolve(context.Background(), 4932, "Saccharomyces cerevisiae")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	again, err := c.Resolve(context.Background(), 4932, "Saccharomyces cerevisiae")
	require.NoError(t, err)
	require.Equal(t, id, again)
}

func TestCache_Resolve_CollapsesConcurrentRefreshes(t *testing.T) {
	src := &fakeSource{rows: map[int64]uuid.UUID{9606: uuid.New()}, created: map[int64]uuid.UUID{}}
	c := New(src, time.Nanosecond) // always stale, forces refresh every call

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Resolve(context.Background(), 9606, "Homo sapiens")
		}()
	}
	wg.Wait()

	// singleflight collapses concurrent refreshes triggered at the same
	// instant; this asserts it ran far fewer than 20 times, not exactly
	// once, since the TTL is intentionally always-expired here.
	require.Less(t, int(src.listCalls), 20)
}
