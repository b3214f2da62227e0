package metadata

import (
	"context"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/wxyc/library-lookup/internal/cache"
	"github.com/wxyc/library-lookup/internal/cache/memory"
	"github.com/wxyc/library-lookup/internal/cache/persistent"
	"github.com/wxyc/library-lookup/internal/fuzzy"
	"github.com/wxyc/library-lookup/internal/releaseapi"
	"github.com/wxyc/library-lookup/internal/telemetry"
)

const (
	trackCacheTTL   = time.Hour
	trackCacheCap   = 1000
	releaseCacheTTL = 4 * time.Hour
	releaseCacheCap = 500
	searchCacheTTL  = time.Hour
	searchCacheCap  = 1000

	minResultsBeforeKeywordFallback = 3
	titleWeight                     = 0.6
	artistWeight                    = 0.4
	minConfidence                   = 0.2
)

// httpClient is the subset of releaseapi.Client the façade depends on, kept
// narrow so tests can substitute a fake.
type httpClient interface {
	SearchByTrack(ctx context.Context, artist, track string) ([]releaseapi.Release, error)
	SearchByQuery(ctx context.Context, query string) ([]releaseapi.Release, error)
	GetRelease(ctx context.Context, id int) (*releaseapi.Release, error)
}

// Service is the M→P→H façade of spec §4.7. One instance is shared across
// requests; the memory tier is per-request scoped by virtue of its TTL, the
// same way the teacher's service/musicbrainz.Service shares one searchCache
// across callers.
type Service struct {
	trackCache   *memory.Cache[[]releaseapi.Release]
	releaseCache *memory.Cache[releaseapi.Release]
	searchCache  *memory.Cache[[]releaseapi.Release]
	persistent   *persistent.Cache
	http         httpClient
	logger       *log.Logger
}

// CacheConfig tunes the three memory-tier instances (spec §4.4's stated
// defaults for track_cache/release_cache/search_cache).
type CacheConfig struct {
	TrackTTL   time.Duration
	TrackCap   int
	ReleaseTTL time.Duration
	ReleaseCap int
	SearchTTL  time.Duration
	SearchCap  int
}

// DefaultCacheConfig matches spec §4.4's stated defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TrackTTL: trackCacheTTL, TrackCap: trackCacheCap,
		ReleaseTTL: releaseCacheTTL, ReleaseCap: releaseCacheCap,
		SearchTTL: searchCacheTTL, SearchCap: searchCacheCap,
	}
}

// New builds a Service with the default cache configuration; tests and
// simple wiring use this directly.
func New(persistentCache *persistent.Cache, client httpClient) *Service {
	return NewWithCacheConfig(persistentCache, client, DefaultCacheConfig())
}

// NewWithCacheConfig builds a Service with caller-supplied TTL/capacity
// settings, used by cmd/lookupd to honor the LOOKUP_CACHE_* env vars.
func NewWithCacheConfig(persistentCache *persistent.Cache, client httpClient, cfg CacheConfig) *Service {
	return &Service{
		trackCache:   memory.New[[]releaseapi.Release](cfg.TrackTTL, cfg.TrackCap),
		releaseCache: memory.New[releaseapi.Release](cfg.ReleaseTTL, cfg.ReleaseCap),
		searchCache:  memory.New[[]releaseapi.Release](cfg.SearchTTL, cfg.SearchCap),
		persistent:   persistentCache,
		http:         client,
		logger:       log.New(os.Stdout, "metadata: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// SearchReleasesByTrack implements spec §4.7's two-phase query: a strict
// artist+track query, widened to a free-text keyword query when the strict
// phase returns fewer than three results. Results are scored and sorted by
// confidence descending.
func (s *Service) SearchReleasesByTrack(ctx context.Context, artist, track string, skipCache bool) ([]releaseapi.Release, bool, error) {
	key := cache.Key("search_releases_by_track", artist, track)
	counters := telemetry.FromContext(ctx)

	if !skipCache {
		if v, ok := s.trackCache.Get(key); ok {
			counters.AddMemoryHit()
			return v, true, nil
		}
		if v := s.persistent.LookupReleasesByTrack(ctx, artist, track); len(v) > 0 {
			s.trackCache.Set(key, v)
			return v, true, nil
		}
	}

	results, err := s.http.SearchByTrack(ctx, artist, track)
	if err != nil {
		return nil, false, err
	}
	if len(results) < minResultsBeforeKeywordFallback {
		more, err := s.http.SearchByQuery(ctx, artist+" "+track)
		if err == nil {
			results = mergeByReleaseID(results, more)
		}
	}

	scored := scoreAndSort(results, artist, track)
	if !skipCache && len(scored) > 0 {
		s.trackCache.Set(key, scored)
		for _, rel := range scored {
			_ = s.persistent.Upsert(ctx, rel)
		}
	}
	return scored, false, nil
}

// GetRelease implements spec §4.7's get_release(id).
func (s *Service) GetRelease(ctx context.Context, id int, skipCache bool) (*releaseapi.Release, bool, error) {
	key := cache.Key("get_release", strconv.Itoa(id))
	counters := telemetry.FromContext(ctx)

	if !skipCache {
		if v, ok := s.releaseCache.Get(key); ok {
			counters.AddMemoryHit()
			return &v, true, nil
		}
		if rel, ok := s.persistent.LookupRelease(ctx, id); ok {
			s.releaseCache.Set(key, *rel)
			return rel, true, nil
		}
	}

	rel, err := s.http.GetRelease(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if rel == nil {
		return nil, false, nil
	}
	if !skipCache {
		s.releaseCache.Set(key, *rel)
		_ = s.persistent.Upsert(ctx, *rel)
	}
	return rel, false, nil
}

// Search implements spec §4.7's search(query), used for artwork-oriented
// lookups.
func (s *Service) Search(ctx context.Context, query string, skipCache bool) ([]releaseapi.Release, bool, error) {
	key := cache.Key("search", query)
	counters := telemetry.FromContext(ctx)

	if !skipCache {
		if v, ok := s.searchCache.Get(key); ok {
			counters.AddMemoryHit()
			return v, true, nil
		}
		if v := s.persistent.SearchReleases(ctx, query); len(v) > 0 {
			s.searchCache.Set(key, v)
			return v, true, nil
		}
	}

	results, err := s.http.SearchByQuery(ctx, query)
	if err != nil {
		return nil, false, err
	}

	scored := scoreAndSort(results, "", query)
	if !skipCache && len(scored) > 0 {
		s.searchCache.Set(key, scored)
		for _, rel := range scored {
			_ = s.persistent.Upsert(ctx, rel)
		}
	}
	return scored, false, nil
}

// PingPersistent reports whether the persistent cache tier is reachable,
// for the /health endpoint's parallel probes.
func (s *Service) PingPersistent(ctx context.Context) error {
	return s.persistent.Ping(ctx)
}

// PingUpstream reports whether the upstream release API is reachable, for
// the /health endpoint's parallel probes. If the configured client doesn't
// support pinging (e.g. a test double), it is assumed reachable.
func (s *Service) PingUpstream(ctx context.Context) error {
	if pinger, ok := s.http.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Confidence computes the weighted title/artist similarity score of spec
// §4.7: 0.6 title + 0.4 artist, floored at 0.2 so borderline matches can
// still be considered downstream.
func Confidence(rel releaseapi.Release, artist, title string) float64 {
	titleScore := float64(fuzzy.TokenSetRatio(title, rel.Title)) / 100
	artistScore := float64(fuzzy.TokenSetRatio(artist, rel.Artist)) / 100
	score := titleWeight*titleScore + artistWeight*artistScore
	if score < minConfidence {
		score = minConfidence
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func scoreAndSort(results []releaseapi.Release, artist, title string) []releaseapi.Release {
	if len(results) == 0 {
		return nil
	}
	type scored struct {
		rel   releaseapi.Release
		score float64
	}
	out := make([]scored, len(results))
	for i, rel := range results {
		out[i] = scored{rel, Confidence(rel, artist, title)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].rel.ReleaseID < out[j].rel.ReleaseID
	})
	ranked := make([]releaseapi.Release, len(out))
	for i, s := range out {
		ranked[i] = s.rel
	}
	return ranked
}

// mergeByReleaseID appends b's entries not already present (by ReleaseID) in
// a, preserving a's ordering first.
func mergeByReleaseID(a, b []releaseapi.Release) []releaseapi.Release {
	seen := make(map[int]bool, len(a))
	for _, rel := range a {
		seen[rel.ReleaseID] = true
	}
	out := append([]releaseapi.Release(nil), a...)
	for _, rel := range b {
		if !seen[rel.ReleaseID] {
			out = append(out, rel)
			seen[rel.ReleaseID] = true
		}
	}
	return out
}
