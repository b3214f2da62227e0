package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/wxyc/library-lookup/internal/cache/persistent"
	"github.com/wxyc/library-lookup/internal/releaseapi"
)

type fakeClient struct {
	trackCalls  int
	queryCalls  int
	trackResult []releaseapi.Release
	queryResult []releaseapi.Release
	release     *releaseapi.Release
	err         error
}

func (f *fakeClient) SearchByTrack(ctx context.Context, artist, track string) ([]releaseapi.Release, error) {
	f.trackCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.trackResult, nil
}

func (f *fakeClient) SearchByQuery(ctx context.Context, query string) ([]releaseapi.Release, error) {
	f.queryCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.queryResult, nil
}

func (f *fakeClient) GetRelease(ctx context.Context, id int) (*releaseapi.Release, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.release, nil
}

func newTestService(t *testing.T, client httpClient) *Service {
	t.Helper()
	pc, err := persistent.Open("")
	if err != nil {
		t.Fatalf("persistent.Open: %v", err)
	}
	return New(pc, client)
}

func TestSearchReleasesByTrackFallsBackToKeywordWhenFewResults(t *testing.T) {
	fc := &fakeClient{
		trackResult: []releaseapi.Release{{ReleaseID: 1, Title: "Percolator", Artist: "Stereolab"}},
		queryResult: []releaseapi.Release{{ReleaseID: 2, Title: "Percolator (Remix)", Artist: "Stereolab"}},
	}
	svc := newTestService(t, fc)

	results, cached, err := svc.SearchReleasesByTrack(context.Background(), "Stereolab", "Percolator", false)
	if err != nil {
		t.Fatalf("SearchReleasesByTrack: %v", err)
	}
	if cached {
		t.Errorf("expected first call to be uncached")
	}
	if fc.queryCalls != 1 {
		t.Errorf("expected keyword fallback to fire when strict phase returns < 3 results, got %d calls", fc.queryCalls)
	}
	if len(results) != 2 {
		t.Fatalf("expected merged results from both phases, got %+v", results)
	}
}

func TestSearchReleasesByTrackSkipsKeywordPhaseWithEnoughResults(t *testing.T) {
	fc := &fakeClient{
		trackResult: []releaseapi.Release{
			{ReleaseID: 1, Title: "A", Artist: "X"},
			{ReleaseID: 2, Title: "B", Artist: "X"},
			{ReleaseID: 3, Title: "C", Artist: "X"},
		},
	}
	svc := newTestService(t, fc)

	if _, _, err := svc.SearchReleasesByTrack(context.Background(), "X", "A", false); err != nil {
		t.Fatalf("SearchReleasesByTrack: %v", err)
	}
	if fc.queryCalls != 0 {
		t.Errorf("expected no keyword fallback when strict phase already has 3 results, got %d calls", fc.queryCalls)
	}
}

func TestSearchReleasesByTrackSecondCallHitsMemoryCache(t *testing.T) {
	fc := &fakeClient{
		trackResult: []releaseapi.Release{
			{ReleaseID: 1, Title: "A", Artist: "X"},
			{ReleaseID: 2, Title: "B", Artist: "X"},
			{ReleaseID: 3, Title: "C", Artist: "X"},
		},
	}
	svc := newTestService(t, fc)
	ctx := context.Background()

	if _, _, err := svc.SearchReleasesByTrack(ctx, "X", "A", false); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, cached, err := svc.SearchReleasesByTrack(ctx, "X", "A", false)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !cached {
		t.Errorf("expected second call to be served from memory cache")
	}
	if fc.trackCalls != 1 {
		t.Errorf("expected http tier to be hit only once, got %d", fc.trackCalls)
	}
}

func TestSearchReleasesByTrackSkipCacheBypassesMemory(t *testing.T) {
	fc := &fakeClient{
		trackResult: []releaseapi.Release{
			{ReleaseID: 1, Title: "A", Artist: "X"},
			{ReleaseID: 2, Title: "B", Artist: "X"},
			{ReleaseID: 3, Title: "C", Artist: "X"},
		},
	}
	svc := newTestService(t, fc)
	ctx := context.Background()

	svc.SearchReleasesByTrack(ctx, "X", "A", true)
	svc.SearchReleasesByTrack(ctx, "X", "A", true)
	if fc.trackCalls != 2 {
		t.Errorf("expected skip_cache to force two http calls, got %d", fc.trackCalls)
	}
}

func TestGetReleasePropagatesUpstreamError(t *testing.T) {
	fc := &fakeClient{err: errors.New("upstream down")}
	svc := newTestService(t, fc)

	if _, _, err := svc.GetRelease(context.Background(), 1, false); err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestConfidenceFloorsAtMinimum(t *testing.T) {
	rel := releaseapi.Release{Title: "Completely Unrelated Title", Artist: "Nobody"}
	got := Confidence(rel, "Stereolab", "Percolator")
	if got != minConfidence {
		t.Errorf("expected confidence to floor at %v, got %v", minConfidence, got)
	}
}

func TestConfidenceExactMatchIsOne(t *testing.T) {
	rel := releaseapi.Release{Title: "Percolator", Artist: "Stereolab"}
	got := Confidence(rel, "Stereolab", "Percolator")
	if got != 1.0 {
		t.Errorf("expected exact match confidence of 1.0, got %v", got)
	}
}
