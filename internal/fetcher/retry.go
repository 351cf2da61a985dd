package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls how Fetcher operations are retried. Transient
// network errors and HTTP 5xx/408/429 responses are retried with
// exponential backoff up to MaxRetries times; other 4xx HTTP errors and
// checksum mismatches are never retried.
type RetryPolicy struct {
	MaxRetries uint
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy matches the spec's documented default of 3 retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
}

// nonRetryable marks an error as permanent so backoff.Retry stops
// immediately instead of exhausting MaxRetries against a request that can
// never succeed.
func nonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// isRetryableHTTPStatus reports whether an HTTP response status should be
// retried: timeouts and 5xx are transient, 4xx (other than 408/429) are
// not.
func isRetryableHTTPStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// isRetryableNetErr reports whether err looks like a transient network
// condition (timeout, connection reset, temporary DNS failure) as opposed
// to a protocol-level rejection.
func isRetryableNetErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// withRetry runs op under the given policy, classifying its error via
// classify (nil classify means every error is retryable). It maps
// exhausted retries to FetchTimeout.
func withRetry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error), classify func(error) error) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseDelay
	bo.MaxInterval = policy.MaxDelay

	result, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if classify != nil {
			return v, classify(err)
		}
		return v, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(policy.MaxRetries+1))

	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return result, permanent.Unwrap()
		}
		return result, FetchTimeout
	}
	return result, nil
}
