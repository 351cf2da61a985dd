package databases

import (
	"context"
	"testing"
	"time"

	"bioingest/internal/model"
	"bioingest/internal/persistence"

	"github.com/stretchr/testify/require"
)

func TestRegistryStore_UpsertOrganization_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewRegistryStore(nil)
	require.NoError(t, store.Init(ctx))

	first, err := store.UpsertOrganization(ctx, model.Organization{Slug: "uniprot", DisplayName: "UniProt"})
	require.NoError(t, err)

	second, err := store.UpsertOrganization(ctx, model.Organization{Slug: "uniprot", DisplayName: "UniProt Consortium"})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "UniProt Consortium", second.DisplayName)
}

func TestRegistryStore_GetOrganization_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewRegistryStore(nil)
	require.NoError(t, store.Init(ctx))

	_, err := store.GetOrganization(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRegistryStore_UpsertEntry_AndFetchBySlug(t *testing.T) {
	ctx := context.Background()
	store := NewRegistryStore(nil)
	require.NoError(t, store.Init(ctx))

	org, err := store.UpsertOrganization(ctx, model.Organization{Slug: "uniprot", DisplayName: "UniProt"})
	require.NoError(t, err)

	entry := model.RegistryEntry{Organization: org.ID, Slug: "p01308", DisplayName: "Insulin", Kind: model.EntryKindDataSource}
	ds := model.DataSource{SourceType: model.SourceTypeProtein}

	created, err := store.UpsertEntry(ctx, entry, ds)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, gotDS, err := store.GetEntryBySlug(ctx, "uniprot", "p01308")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, model.SourceTypeProtein, gotDS.SourceType)
}

func TestRegistryStore_ResolveAlias_RespectsValidityWindow(t *testing.T) {
	ctx := context.Background()
	store := NewRegistryStore(nil)
	require.NoError(t, store.Init(ctx))

	target := model.NewID()
	past := time.Now().Add(-48 * time.Hour)
	expired := time.Now().Add(-24 * time.Hour)

	_, err := store.UpsertAlias(ctx, model.Alias{Alias: "old-id", Target: target, ValidFrom: past, ValidUntil: &expired})
	require.NoError(t, err)

	_, err = store.ResolveAlias(ctx, "old-id", time.Now())
	require.ErrorIs(t, err, persistence.ErrNotFound)

	resolved, err := store.ResolveAlias(ctx, "old-id", past.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, target, resolved)
}
