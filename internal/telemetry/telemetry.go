// Package telemetry threads per-request cache-accounting counters through
// the lookup pipeline via a context value, replacing the dynamic-scope
// variables a scripting-language implementation would reach for (see
// SPEC_FULL.md §5).
package telemetry

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"
)

// Counters is the per-request accounting block described in spec §3.
// Fields are monotonically non-decreasing within a request and are safe for
// concurrent increment from fan-out goroutines.
type Counters struct {
	MemoryHits int64
	PgHits     int64
	PgMisses   int64
	APICalls   int64
	PgTimeMs   int64
	APITimeMs  int64
}

func (c *Counters) AddMemoryHit()          { atomic.AddInt64(&c.MemoryHits, 1) }
func (c *Counters) AddPgHit(elapsed time.Duration) {
	atomic.AddInt64(&c.PgHits, 1)
	atomic.AddInt64(&c.PgTimeMs, elapsed.Milliseconds())
}
func (c *Counters) AddPgMiss(elapsed time.Duration) {
	atomic.AddInt64(&c.PgMisses, 1)
	atomic.AddInt64(&c.PgTimeMs, elapsed.Milliseconds())
}
func (c *Counters) AddAPICall(elapsed time.Duration) {
	atomic.AddInt64(&c.APICalls, 1)
	atomic.AddInt64(&c.APITimeMs, elapsed.Milliseconds())
}

// Snapshot is an immutable copy suitable for attaching to LookupResponse.cache_stats.
type Snapshot struct {
	MemoryHits int64 `json:"memory_hits"`
	PgHits     int64 `json:"pg_hits"`
	PgMisses   int64 `json:"pg_misses"`
	APICalls   int64 `json:"api_calls"`
	PgTimeMs   int64 `json:"pg_time_ms"`
	APITimeMs  int64 `json:"api_time_ms"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		MemoryHits: atomic.LoadInt64(&c.MemoryHits),
		PgHits:     atomic.LoadInt64(&c.PgHits),
		PgMisses:   atomic.LoadInt64(&c.PgMisses),
		APICalls:   atomic.LoadInt64(&c.APICalls),
		PgTimeMs:   atomic.LoadInt64(&c.PgTimeMs),
		APITimeMs:  atomic.LoadInt64(&c.APITimeMs),
	}
}

type ctxKey struct{}

// WithCounters returns a context carrying a fresh Counters block, scoped to
// one request.
func WithCounters(ctx context.Context) (context.Context, *Counters) {
	c := &Counters{}
	return context.WithValue(ctx, ctxKey{}, c), c
}

// FromContext retrieves the Counters attached by WithCounters. It returns a
// throwaway block (never nil) if none is present, so callers never need a
// nil check.
func FromContext(ctx context.Context) *Counters {
	if c, ok := ctx.Value(ctxKey{}).(*Counters); ok {
		return c
	}
	return &Counters{}
}

type requestIDKey struct{}

// WithRequestID attaches the inbound request's correlation id, set by the
// HTTP surface's requestID middleware, so that Step's log lines can be tied
// back to a single request without internal/lookup importing internal/httpapi.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id attached by WithRequestID, or "" if
// none is present (e.g. a direct call in a test that bypasses the HTTP
// surface).
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Logger mirrors the teacher's log.New(os.Stdout, "<component>: ", ...)
// convention: one prefixed *log.Logger per component, no structured logging
// framework.
func Logger(component string) *log.Logger {
	return log.New(os.Stdout, component+": ", log.LstdFlags|log.Lmsgprefix)
}

// Step records a breadcrumb with its elapsed duration; the orchestrator
// calls this once per pipeline step (spec §2, Telemetry).
func Step(logger *log.Logger, requestID, name string, start time.Time) {
	logger.Printf("request=%s step=%s elapsed=%s", requestID, name, time.Since(start))
}
