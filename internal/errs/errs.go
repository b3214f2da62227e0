// Package errs defines the sentinel error kinds shared across the lookup
// pipeline. Components signal soft failures (cache miss, upstream hiccup)
// through ordinary returns; these sentinels mark the handful of conditions
// that change control flow in the orchestrator.
package errs

import "errors"

var (
	// ErrInvalidInput means the request had no searchable fields.
	ErrInvalidInput = errors.New("invalid_input")
	// ErrStoreUnavailable means the catalog backing file is missing or unreadable.
	ErrStoreUnavailable = errors.New("store_unavailable")
	// ErrUpstreamError means a non-retriable external API failure.
	ErrUpstreamError = errors.New("upstream_error")
	// ErrCacheUnavailable means the persistent cache is unreachable.
	ErrCacheUnavailable = errors.New("cache_unavailable")
)
