package releaseapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wxyc/library-lookup/internal/telemetry"
)

func TestGetReleaseSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		json.NewEncoder(w).Encode(Release{ReleaseID: 42, Title: "Emperor Tomato Ketchup", Artist: "Stereolab"})
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL, "test-token")
	c := NewClient(cfg)
	ctx, counters := telemetry.WithCounters(context.Background())

	rel, err := c.GetRelease(ctx, 42)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if rel.ReleaseID != 42 || rel.Artist != "Stereolab" {
		t.Errorf("unexpected release: %+v", rel)
	}
	if counters.Snapshot().APICalls != 1 {
		t.Errorf("expected 1 api call recorded, got %d", counters.Snapshot().APICalls)
	}
}

func TestRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(Release{ReleaseID: 1})
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL, "tok")
	cfg.MaxRetries = 2
	c := NewClient(cfg)

	start := time.Now()
	_, err := c.GetRelease(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected exactly 2 calls, got %d", calls)
	}
	if time.Since(start) < time.Second {
		t.Errorf("expected backoff delay before retry")
	}
}

func TestExhaustsRetriesOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL, "tok")
	cfg.MaxRetries = 1
	c := NewClient(cfg)

	if _, err := c.GetRelease(context.Background(), 1); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
}

func TestConcurrencyGateBoundsInFlight(t *testing.T) {
	var inFlight, maxInFlight int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if cur <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		json.NewEncoder(w).Encode(Release{ReleaseID: 1})
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL, "tok")
	cfg.MaxConcurrent = 2
	cfg.RequestsPerMinute = 10000
	c := NewClient(cfg)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			c.GetRelease(context.Background(), 1)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if atomic.LoadInt32(&maxInFlight) > 2 {
		t.Errorf("expected at most 2 concurrent requests, saw %d", maxInFlight)
	}
}
