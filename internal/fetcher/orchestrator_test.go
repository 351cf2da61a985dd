package fetcher

import (
	"context"
	"io"
	"strings"
	"testing"

	"bioingest/internal/objectstore"

	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	openCalls int
	body      string
}

func (f *fakeTransport) List(ctx context.Context, directory string) ([]DirEntry, error) {
	return nil, nil
}

func (f *fakeTransport) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f.openCalls++
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func TestFetcher_Download_CacheHitSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{body: "release-bytes"}
	cache := &DiskCache{Root: t.TempDir()}
	objects := objectstore.NewMemoryStore()
	f := New("uniprot", transport, cache, objects)

	first, err := f.Download(ctx, "uniprot_sprot.dat.gz", "2024_01", "job-1", Checksum{})
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.Equal(t, 1, transport.openCalls)

	second, err := f.Download(ctx, "uniprot_sprot.dat.gz", "2024_01", "job-2", Checksum{})
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, 1, transport.openCalls, "repeat fetch for the same external version must not touch the network")
	require.Equal(t, first.Computed, second.Computed)
}

func TestFetcher_Download_ChecksumMismatchFails(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{body: "release-bytes"}
	cache := &DiskCache{Root: t.TempDir()}
	objects := objectstore.NewMemoryStore()
	f := New("uniprot", transport, cache, objects)

	_, err := f.Download(ctx, "uniprot_sprot.dat.gz", "2024_02", "job-1", Checksum{SHA256: "not-the-real-hash"})
	require.ErrorIs(t, err, FetchChecksumMismatch)
}

func TestFetcher_Download_MirrorsToObjectStore(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{body: "release-bytes"}
	cache := &DiskCache{Root: t.TempDir()}
	objects := objectstore.NewMemoryStore()
	f := New("uniprot", transport, cache, objects)

	result, err := f.Download(ctx, "uniprot_sprot.dat.gz", "2024_03", "job-1", Checksum{})
	require.NoError(t, err)
	require.Equal(t, "ingest/uniprot/job-1/uniprot_sprot.dat.gz", result.ObjectKey)

	_, attrs, err := objects.Get(ctx, result.ObjectKey)
	require.NoError(t, err)
	require.Equal(t, int64(len("release-bytes")), attrs.Size)
}
