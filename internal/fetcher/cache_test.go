package fetcher

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskCache_StoreThenOpen(t *testing.T) {
	cache := &DiskCache{Root: t.TempDir()}
	require.False(t, cache.Has("uniprot", "2024_01", "uniprot_sprot.dat.gz"))

	path, err := cache.Store("uniprot", "2024_01", "uniprot_sprot.dat.gz", strings.NewReader("payload"))
	require.NoError(t, err)
	require.True(t, cache.Has("uniprot", "2024_01", "uniprot_sprot.dat.gz"))

	f, err := cache.Open("uniprot", "2024_01", "uniprot_sprot.dat.gz")
	require.NoError(t, err)
	defer f.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestDigestFile_ComputesBothDigests(t *testing.T) {
	dir := t.TempDir()
	cache := &DiskCache{Root: dir}
	path, err := cache.Store("ncbi", "2024-01-01", "taxdump.tar.gz", strings.NewReader("hello world"))
	require.NoError(t, err)

	checksum, size, err := DigestFile(path)
	require.NoError(t, err)
	require.Equal(t, int64(len("hello world")), size)
	require.NotEmpty(t, checksum.SHA256)
	require.NotEmpty(t, checksum.MD5)
}
