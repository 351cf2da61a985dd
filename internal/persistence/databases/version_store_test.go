package databases

import (
	"context"
	"testing"

	"bioingest/internal/model"
	"bioingest/internal/persistence"

	"github.com/stretchr/testify/require"
)

func TestVersionStore_Latest_OrdersBySemVer(t *testing.T) {
	ctx := context.Background()
	store := NewVersionStore(nil)
	require.NoError(t, store.Init(ctx))

	ds := model.NewID()
	for _, v := range []model.SemVer{{Major: 1, Minor: 0, Patch: 0}, {Major: 1, Minor: 2, Patch: 0}, {Major: 1, Minor: 1, Patch: 5}} {
		_, err := store.Insert(ctx, model.Version{DataSource: ds, SemVer: v, Status: model.VersionStatusPublished})
		require.NoError(t, err)
	}

	latest, err := store.Latest(ctx, ds)
	require.NoError(t, err)
	require.Equal(t, model.SemVer{Major: 1, Minor: 2, Patch: 0}, latest.SemVer)
}

func TestVersionStore_Latest_NotFoundForUnknownDataSource(t *testing.T) {
	ctx := context.Background()
	store := NewVersionStore(nil)
	require.NoError(t, store.Init(ctx))

	_, err := store.Latest(ctx, model.NewID())
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestVersionFileStore_Upsert_IsIdempotentPerFormat(t *testing.T) {
	ctx := context.Background()
	store := NewVersionFileStore(nil)
	require.NoError(t, store.Init(ctx))

	version := model.NewID()
	first, err := store.Upsert(ctx, model.VersionFile{Version: version, Format: "fasta", ObjectKey: "k1", SHA256: "a"})
	require.NoError(t, err)

	second, err := store.Upsert(ctx, model.VersionFile{Version: version, Format: "fasta", ObjectKey: "k1", SHA256: "a"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	files, err := store.ListByVersion(ctx, version)
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestDependencyStore_Insert_RejectsCycle(t *testing.T) {
	ctx := context.Background()
	store := NewDependencyStore(nil)
	require.NoError(t, store.Init(ctx))

	a, b, c := model.NewID(), model.NewID(), model.NewID()

	_, err := store.Insert(ctx, model.Dependency{Dependent: a, DependsOn: b, PinnedVersion: model.NewID()})
	require.NoError(t, err)
	_, err = store.Insert(ctx, model.Dependency{Dependent: b, DependsOn: c, PinnedVersion: model.NewID()})
	require.NoError(t, err)

	_, err = store.Insert(ctx, model.Dependency{Dependent: c, DependsOn: a, PinnedVersion: model.NewID()})
	require.ErrorIs(t, err, persistence.ErrDependencyLoop)
}

func TestDependencyStore_Insert_RejectsSelfLoop(t *testing.T) {
	ctx := context.Background()
	store := NewDependencyStore(nil)
	require.NoError(t, store.Init(ctx))

	a := model.NewID()
	_, err := store.Insert(ctx, model.Dependency{Dependent: a, DependsOn: a, PinnedVersion: model.NewID()})
	require.ErrorIs(t, err, persistence.ErrDependencyLoop)
}
