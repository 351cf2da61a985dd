package fetcher

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bioingest/internal/objectstore"
)

// DiskCache memoizes downloaded archives under
// ${cache_dir}/${source}/${external_version}/${filename}, so a repeat
// fetch for the same external version never touches the network. Writes
// are atomic: the download lands in a ".part" sibling, then is renamed
// into place, so a crash mid-download never leaves a corrupt cache hit.
type DiskCache struct {
	Root string
}

// Path returns the on-disk location for a cached archive.
func (c *DiskCache) Path(source, externalVersion, filename string) string {
	return filepath.Join(c.Root, source, externalVersion, filename)
}

// Has reports whether the archive is already cached.
func (c *DiskCache) Has(source, externalVersion, filename string) bool {
	_, err := os.Stat(c.Path(source, externalVersion, filename))
	return err == nil
}

// Store copies r into the cache at the deterministic path, writing to a
// temporary file first and renaming on success.
func (c *DiskCache) Store(source, externalVersion, filename string, r io.Reader) (string, error) {
	dest := c.Path(source, externalVersion, filename)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".part-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Open returns a reader over the cached file.
func (c *DiskCache) Open(source, externalVersion, filename string) (*os.File, error) {
	return os.Open(c.Path(source, externalVersion, filename))
}

// DigestFile computes the SHA-256 and MD5 digests of the file at path in
// a single pass.
func DigestFile(path string) (Checksum, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Checksum{}, 0, err
	}
	defer f.Close()

	sha := sha256.New()
	md := md5.New()
	n, err := io.Copy(io.MultiWriter(sha, md), f)
	if err != nil {
		return Checksum{}, 0, err
	}
	return Checksum{SHA256: hex.EncodeToString(sha.Sum(nil)), MD5: hex.EncodeToString(md.Sum(nil))}, n, nil
}

// MirrorToObjectStore uploads the cached archive to the object store under
// the deterministic ingest/${source}/${job_id}/${filename} key, so the
// raw artifact survives independent of the local disk cache.
func MirrorToObjectStore(ctx context.Context, store objectstore.ObjectStore, source, jobID, cachedPath string) (string, error) {
	f, err := os.Open(cachedPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key, err := store.PutRawArchive(ctx, source, jobID, filepath.Base(cachedPath), f)
	if err != nil {
		return "", fmt.Errorf("fetcher: mirror %s to object store: %w", cachedPath, err)
	}
	return key, nil
}
