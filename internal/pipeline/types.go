// Package pipeline implements the declarative strategy dispatch of spec
// §4.8: an ordered list of condition-gated strategies mutating a shared
// accumulator (SearchState) until one stops the pipeline.
package pipeline

import (
	"context"

	"github.com/wxyc/library-lookup/internal/library"
)

// LookupRequest is spec §3's LookupRequest. Empty string denotes "absent"
// for Artist/Song/Album/RawMessage, matching the spec's "missing fields are
// absent, not empty" invariant as closely as Go's zero value allows.
type LookupRequest struct {
	Artist     string
	Song       string
	Album      string
	RawMessage string
	SkipCache  bool
}

// SearchType enumerates how (or whether) results were found.
type SearchType string

const (
	SearchDirect       SearchType = "direct"
	SearchSwapped      SearchType = "swapped"
	SearchCompilation  SearchType = "compilation"
	SearchSongAsArtist SearchType = "song_as_artist"
	SearchNone         SearchType = "none"
)

// SearchState is spec §3's pipeline accumulator, threaded by reference
// through each strategy's Execute.
type SearchState struct {
	Results            []library.Item
	SongNotFound       bool
	FoundOnCompilation bool
	SearchType         SearchType
	StrategiesTried    []string
	ExternalTitles     map[int64]string
	ResolvedAlbums     []string
	CorrectedArtist    string
}

// NewSearchState returns a zero-value accumulator ready for the pipeline.
func NewSearchState() *SearchState {
	return &SearchState{SearchType: SearchNone, ExternalTitles: make(map[int64]string)}
}

// Strategy is spec §4.8's named, condition-gated search operation. Condition
// must be pure; Execute may perform I/O and mutates state in place.
type Strategy struct {
	Name      string
	Condition func(state *SearchState, req *LookupRequest) bool
	Execute   func(ctx context.Context, state *SearchState, req *LookupRequest) error
}

// Run evaluates strategies in declaration order, applying spec §4.8's
// continuation predicate: stop on the first strategy that leaves Results
// non-empty without SongNotFound set; otherwise continue, which is what
// lets TRACK_ON_COMPILATION upgrade an ARTIST_PLUS_ALBUM artist-only hit.
func Run(ctx context.Context, strategies []Strategy, state *SearchState, req *LookupRequest) error {
	for _, strat := range strategies {
		if !strat.Condition(state, req) {
			continue
		}
		state.StrategiesTried = append(state.StrategiesTried, strat.Name)
		if err := strat.Execute(ctx, state, req); err != nil {
			return err
		}
		if len(state.Results) > 0 && !state.SongNotFound {
			return nil
		}
	}
	return nil
}
