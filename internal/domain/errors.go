package domain

import "errors"

// Source failures. The executor recovers from all three per source.
var (
	ErrSourceTimeout          = errors.New("source timeout")
	ErrSourceRateLimited      = errors.New("source rate limited")
	ErrSourceMalformedPayload = errors.New("source malformed payload")
)

// ErrFusionInputMissing marks a fusion input that was unavailable this cycle.
// The affected confidence factor is excluded rather than failing the cycle.
var ErrFusionInputMissing = errors.New("fusion input missing")

// Cache failures.
var (
	// ErrCacheWrite is a failed single-document write. The writer retries once
	// and then skips that collection for the cycle.
	ErrCacheWrite = errors.New("cache write failure")
	// ErrCacheUnavailable means the store is unreachable as a whole. It is the
	// only failure surfaced to consumers.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrNotFound means no document was ever written for the key.
	ErrNotFound = errors.New("not found")
)
