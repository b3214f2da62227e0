package releaseapi

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// gate composes the throughput limiter (requests/minute) with a
// concurrency semaphore (max in-flight requests), acquired in that order
// and released in reverse, per spec §5's locking discipline. Grounded on
// the teacher's golang.org/x/time/rate.Limiter usage in
// service/musicbrainz.Service, generalized with a second, concurrency gate.
type gate struct {
	throughput *rate.Limiter
	concurrent chan struct{}
}

func newGate(requestsPerMinute, maxConcurrent int) *gate {
	return &gate{
		throughput: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute),
		concurrent: make(chan struct{}, maxConcurrent),
	}
}

// acquire blocks until both gates admit the caller. The returned release
// function must be called exactly once, regardless of whether the request
// that follows succeeds.
func (g *gate) acquire(ctx context.Context) (func(), error) {
	if err := g.throughput.Wait(ctx); err != nil {
		return nil, err
	}
	select {
	case g.concurrent <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	release := func() {
		once.Do(func() { <-g.concurrent })
	}
	return release, nil
}
