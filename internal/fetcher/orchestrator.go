package fetcher

import (
	"context"
	"errors"
	"path"
	"sort"

	"bioingest/internal/objectstore"
)

// Fetcher is the public entry point: list, download-with-cache-and-verify.
// It wraps a protocol Transport with the retry policy, disk cache, and
// object-store mirroring the spec requires.
type Fetcher struct {
	Source    string
	Transport Transport
	Cache     *DiskCache
	Objects   objectstore.ObjectStore
	Policy    RetryPolicy
}

// New builds a Fetcher for a named source over transport.
func New(source string, transport Transport, cache *DiskCache, objects objectstore.ObjectStore) *Fetcher {
	return &Fetcher{Source: source, Transport: transport, Cache: cache, Objects: objects, Policy: DefaultRetryPolicy()}
}

// List returns a directory's entries sorted by name, retrying transient
// failures per Policy.
func (f *Fetcher) List(ctx context.Context, directory string) ([]DirEntry, error) {
	entries, err := withRetry(ctx, f.Policy, func() ([]DirEntry, error) {
		return f.Transport.List(ctx, directory)
	}, classifyListErr)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func classifyListErr(err error) error {
	switch err {
	case FetchNotFound, FetchProtocol:
		return nonRetryable(err)
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && !isRetryableHTTPStatus(statusErr.status) {
		return nonRetryable(err)
	}
	return err
}

// DownloadResult describes a fetched-and-verified artifact.
type DownloadResult struct {
	CachePath       string
	ObjectKey       string
	SizeBytes       int64
	Computed        Checksum
	CacheHit        bool
}

// Download fetches remotePath for externalVersion, memoizing it on local
// disk and mirroring it to the object store under the given jobID. If the
// artifact is already cached for this external version, the network is
// skipped entirely. A non-empty expected Checksum is verified against the
// cached bytes; a mismatch returns FetchChecksumMismatch and is never
// retried, since re-fetching bytes that already failed verification would
// just reproduce the same corrupt bytes the upstream actually served.
func (f *Fetcher) Download(ctx context.Context, remotePath, externalVersion, jobID string, expected Checksum) (DownloadResult, error) {
	filename := path.Base(remotePath)

	if f.Cache.Has(f.Source, externalVersion, filename) {
		cachePath := f.Cache.Path(f.Source, externalVersion, filename)
		computed, size, err := DigestFile(cachePath)
		if err != nil {
			return DownloadResult{}, err
		}
		if !Verify(expected, computed) {
			return DownloadResult{}, FetchChecksumMismatch
		}
		key, err := f.mirror(ctx, jobID, cachePath)
		if err != nil {
			return DownloadResult{}, err
		}
		return DownloadResult{CachePath: cachePath, ObjectKey: key, SizeBytes: size, Computed: computed, CacheHit: true}, nil
	}

	cachePath, err := withRetry(ctx, f.Policy, func() (string, error) {
		body, err := f.Transport.Open(ctx, remotePath)
		if err != nil {
			return "", err
		}
		defer body.Close()
		return f.Cache.Store(f.Source, externalVersion, filename, body)
	}, classifyDownloadErr)
	if err != nil {
		return DownloadResult{}, err
	}

	computed, size, err := DigestFile(cachePath)
	if err != nil {
		return DownloadResult{}, err
	}
	if !Verify(expected, computed) {
		return DownloadResult{}, FetchChecksumMismatch
	}

	key, err := f.mirror(ctx, jobID, cachePath)
	if err != nil {
		return DownloadResult{}, err
	}
	return DownloadResult{CachePath: cachePath, ObjectKey: key, SizeBytes: size, Computed: computed}, nil
}

func (f *Fetcher) mirror(ctx context.Context, jobID, cachePath string) (string, error) {
	if f.Objects == nil {
		return "", nil
	}
	return MirrorToObjectStore(ctx, f.Objects, f.Source, jobID, cachePath)
}

// classifyDownloadErr marks an upstream 404 or non-retryable HTTP status
// as permanent; every other error (transient network failures, mid-stream
// resets) stays retryable.
func classifyDownloadErr(err error) error {
	if err == FetchNotFound {
		return nonRetryable(err)
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && !isRetryableHTTPStatus(statusErr.status) {
		return nonRetryable(err)
	}
	return err
}
