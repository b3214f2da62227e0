package lookup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wxyc/library-lookup/internal/errs"
	"github.com/wxyc/library-lookup/internal/fuzzy"
	"github.com/wxyc/library-lookup/internal/library"
	"github.com/wxyc/library-lookup/internal/metadata"
	"github.com/wxyc/library-lookup/internal/normalize"
	"github.com/wxyc/library-lookup/internal/pipeline"
	"github.com/wxyc/library-lookup/internal/releaseapi"
	"github.com/wxyc/library-lookup/internal/telemetry"
)

// Orchestrator wires the library store, metadata façade, and strategy
// pipeline into spec §4.9's six-step request flow. One instance is shared
// across requests.
type Orchestrator struct {
	store       *library.Store
	meta        *metadata.Service
	strategies  []pipeline.Strategy
	concurrency int
	logger      *log.Logger
}

// New builds an Orchestrator. concurrency bounds the fan-out steps (track
// validation, artwork fetch) per spec §5's constant C; values <= 0 fall
// back to a sensible default.
func New(store *library.Store, meta *metadata.Service, concurrency int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Orchestrator{
		store:       store,
		meta:        meta,
		strategies:  pipeline.Strategies(store, meta),
		concurrency: concurrency,
		logger:      telemetry.Logger("lookup"),
	}
}

// Lookup runs the full six-step pipeline for one request.
func (o *Orchestrator) Lookup(ctx context.Context, req pipeline.LookupRequest) (*Response, error) {
	if req.Artist == "" && req.Song == "" && req.Album == "" {
		return nil, errs.ErrInvalidInput
	}

	ctx, counters := telemetry.WithCounters(ctx)
	state := pipeline.NewSearchState()
	reqID := telemetry.RequestIDFromContext(ctx)

	// 1. Artist correction.
	start := time.Now()
	if req.Artist != "" {
		if corrected, ok := o.store.FindSimilarArtist(ctx, req.Artist); ok && corrected != req.Artist {
			state.CorrectedArtist = corrected
			req.Artist = corrected
		}
	}
	telemetry.Step(o.logger, reqID, "artist_correction", start)

	// 2. Album resolution.
	start = time.Now()
	if req.Song != "" && req.Album == "" {
		releases, _, err := o.meta.SearchReleasesByTrack(ctx, req.Artist, req.Song, req.SkipCache)
		if err != nil {
			o.logger.Printf("album resolution failed: %v", err)
		} else {
			state.ResolvedAlbums = dedupTitles(releases)
		}
	}
	telemetry.Step(o.logger, reqID, "album_resolution", start)

	// 3. Strategy pipeline.
	start = time.Now()
	if err := pipeline.Run(ctx, o.strategies, state, &req); err != nil {
		if errors.Is(err, errs.ErrStoreUnavailable) {
			return nil, errs.ErrStoreUnavailable
		}
		o.logger.Printf("strategy pipeline error: %v", err)
		state.Results = nil
		state.SearchType = pipeline.SearchNone
	}
	telemetry.Step(o.logger, reqID, "strategy_pipeline", start)

	// 4. Track validation.
	start = time.Now()
	items := state.Results
	if state.SongNotFound && req.Song != "" {
		items = o.validateTracks(ctx, state, req)
	}
	telemetry.Step(o.logger, reqID, "track_validation", start)

	// 5. Artwork fetch.
	start = time.Now()
	results := o.fetchArtwork(ctx, items, state, req)
	telemetry.Step(o.logger, reqID, "artwork_fetch", start)

	// 6. Context message.
	start = time.Now()
	message := o.contextMessage(state, req)
	telemetry.Step(o.logger, reqID, "context_message", start)

	snapshot := counters.Snapshot()
	return &Response{
		Results:            results,
		SearchType:         state.SearchType,
		SongNotFound:       state.SongNotFound,
		FoundOnCompilation: state.FoundOnCompilation,
		ContextMessage:     message,
		CorrectedArtist:    state.CorrectedArtist,
		CacheStats:         &snapshot,
	}, nil
}

// validateTracks keeps only items whose resolved release tracklist contains
// a track fuzzy-matching req.Song at or above the compilation threshold,
// fanning out with a concurrency bound of o.concurrency (spec §4.9 step 4).
func (o *Orchestrator) validateTracks(ctx context.Context, state *pipeline.SearchState, req pipeline.LookupRequest) []library.Item {
	items := state.Results
	kept := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, o.concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			query := item.Title
			if title, ok := state.ExternalTitles[item.ID]; ok {
				query = title
			}
			releases, _, err := o.meta.Search(gctx, item.Artist+" "+query, req.SkipCache)
			if err != nil || len(releases) == 0 {
				return nil
			}
			for _, tr := range releases[0].Tracklist {
				if fuzzy.TokenSetRatio(tr.Title, req.Song) >= fuzzy.CompilationTrackThreshold {
					kept[i] = true
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]library.Item, 0, len(items))
	for i, k := range kept {
		if k {
			out = append(out, items[i])
		}
	}
	return out
}

// fetchArtwork attaches the first matching external release to each
// surviving item, in input order, bounded by o.concurrency (spec §4.9 step
// 5). A failed or empty lookup leaves Artwork nil without dropping the item.
func (o *Orchestrator) fetchArtwork(ctx context.Context, items []library.Item, state *pipeline.SearchState, req pipeline.LookupRequest) []Result {
	results := make([]Result, len(items))
	for i, item := range items {
		results[i] = Result{Item: item}
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, o.concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			query := item.Title
			if title, ok := state.ExternalTitles[item.ID]; ok {
				query = title
			}
			releases, cached, err := o.meta.Search(gctx, item.Artist+" "+query, req.SkipCache)
			if err != nil || len(releases) == 0 {
				return nil
			}
			rel := releases[0]
			results[i].Artwork = &metadata.Artwork{
				Album:      rel.Title,
				Artist:     rel.Artist,
				ReleaseID:  rel.ReleaseID,
				ReleaseURL: rel.ReleaseURL,
				Confidence: metadata.Confidence(rel, item.Artist, query),
				Cached:     cached,
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) contextMessage(state *pipeline.SearchState, req pipeline.LookupRequest) string {
	switch {
	case state.FoundOnCompilation:
		title := ""
		if len(state.Results) > 0 {
			title = state.Results[0].Title
		}
		return fmt.Sprintf("found on compilation %s", title)
	case state.SearchType == pipeline.SearchSwapped:
		if left, right, ok := normalize.DetectAmbiguousFormat(req.RawMessage); ok {
			return fmt.Sprintf("interpreted as %s by %s (swapped)", right, left)
		}
		return "interpreted as swapped"
	case state.CorrectedArtist != "":
		return fmt.Sprintf("corrected artist to %s", state.CorrectedArtist)
	case len(state.Results) > 0:
		return "found directly"
	default:
		return "no matches"
	}
}

// dedupTitles normalizes and case-folds release titles, preserving first-seen
// order, for spec §4.9 step 2's resolved_albums assignment.
func dedupTitles(releases []releaseapi.Release) []string {
	seen := make(map[string]bool, len(releases))
	out := make([]string, 0, len(releases))
	for _, rel := range releases {
		key := normalize.Normalize(rel.Title)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rel.Title)
	}
	return out
}
