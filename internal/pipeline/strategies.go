package pipeline

import (
	"context"
	"strings"

	"github.com/wxyc/library-lookup/internal/fuzzy"
	"github.com/wxyc/library-lookup/internal/library"
	"github.com/wxyc/library-lookup/internal/normalize"
	"github.com/wxyc/library-lookup/internal/releaseapi"
)

// trackResolver is the subset of internal/metadata.Service the
// TRACK_ON_COMPILATION strategy depends on.
type trackResolver interface {
	SearchReleasesByTrack(ctx context.Context, artist, track string, skipCache bool) ([]releaseapi.Release, bool, error)
}

// Strategies returns the four §4.8 strategies, in fixed declaration order.
func Strategies(store *library.Store, releases trackResolver) []Strategy {
	return []Strategy{
		newArtistPlusAlbum(store),
		newSwappedInterpretation(store),
		newTrackOnCompilation(store, releases),
		newSongAsArtist(store),
	}
}

func newArtistPlusAlbum(store *library.Store) Strategy {
	return Strategy{
		Name: "ARTIST_PLUS_ALBUM",
		Condition: func(s *SearchState, r *LookupRequest) bool {
			return r.Artist != "" || r.Album != "" || r.Song != ""
		},
		Execute: func(ctx context.Context, s *SearchState, r *LookupRequest) error {
			albums := s.ResolvedAlbums
			if len(albums) == 0 {
				albums = []string{r.Album}
			}

			opts := library.DefaultOptions()
			opts.ArtistFilter = r.Artist

			for _, album := range albums {
				if album == "" {
					continue
				}
				items, err := store.Search(ctx, album, opts)
				if err != nil {
					return err
				}
				if len(items) > 0 {
					s.Results = items
					s.SearchType = SearchDirect
					return nil
				}
			}

			// Without an artist, a bare song query is left to SONG_AS_ARTIST.
			if r.Song != "" && r.Artist != "" {
				items, err := store.Search(ctx, r.Song, opts)
				if err != nil {
					return err
				}
				if len(items) > 0 {
					s.Results = items
					s.SearchType = SearchDirect
					return nil
				}
			}

			if r.Artist != "" {
				items, err := store.Search(ctx, r.Artist, opts)
				if err != nil {
					return err
				}
				if len(items) > 0 {
					s.Results = items
					s.SongNotFound = true
					s.SearchType = SearchDirect
				}
			}
			return nil
		},
	}
}

func newSwappedInterpretation(store *library.Store) Strategy {
	return Strategy{
		Name: "SWAPPED_INTERPRETATION",
		Condition: func(s *SearchState, r *LookupRequest) bool {
			if len(s.Results) > 0 {
				return false
			}
			_, _, ok := normalize.DetectAmbiguousFormat(r.RawMessage)
			return ok
		},
		Execute: func(ctx context.Context, s *SearchState, r *LookupRequest) error {
			left, right, ok := normalize.DetectAmbiguousFormat(r.RawMessage)
			if !ok {
				return nil
			}

			// Interpretation 1: left as artist, right as title. If the pair
			// doesn't resolve together, fall back to left alone as the query,
			// the same way ARTIST_PLUS_ALBUM's own artist-only fallback works.
			direct := library.DefaultOptions()
			direct.ArtistFilter = left
			items, err := store.Search(ctx, right, direct)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				items, err = store.Search(ctx, left, library.DefaultOptions())
				if err != nil {
					return err
				}
			}
			if len(items) > 0 {
				s.Results = items
				s.SearchType = SearchSwapped
				return nil
			}

			// Interpretation 2: swap — right as artist, left as title.
			swapped := library.DefaultOptions()
			swapped.ArtistFilter = right
			items, err = store.Search(ctx, left, swapped)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				items, err = store.Search(ctx, right, library.DefaultOptions())
				if err != nil {
					return err
				}
			}
			if len(items) > 0 {
				s.Results = items
				s.SearchType = SearchSwapped
			}
			return nil
		},
	}
}

func newTrackOnCompilation(store *library.Store, releases trackResolver) Strategy {
	return Strategy{
		Name: "TRACK_ON_COMPILATION",
		Condition: func(s *SearchState, r *LookupRequest) bool {
			return r.Artist != "" && r.Song != "" && (len(s.Results) == 0 || s.SongNotFound)
		},
		Execute: func(ctx context.Context, s *SearchState, r *LookupRequest) error {
			candidates, _, err := releases.SearchReleasesByTrack(ctx, r.Artist, r.Song, r.SkipCache)
			if err != nil {
				return nil // logged upstream; pipeline continues with empty results
			}

			opts := library.DefaultOptions()
			for _, rel := range candidates {
				if !isCompilationRelease(rel, r.Song) {
					continue
				}
				items, err := store.Search(ctx, rel.Title, opts)
				if err != nil || len(items) == 0 {
					continue
				}
				s.Results = items
				s.SongNotFound = false
				s.FoundOnCompilation = true
				s.SearchType = SearchCompilation
				for _, item := range items {
					s.ExternalTitles[item.ID] = rel.Title
				}
				return nil
			}
			return nil
		},
	}
}

func newSongAsArtist(store *library.Store) Strategy {
	return Strategy{
		Name: "SONG_AS_ARTIST",
		Condition: func(s *SearchState, r *LookupRequest) bool {
			return len(s.Results) == 0 && r.Song != "" && r.Artist == ""
		},
		Execute: func(ctx context.Context, s *SearchState, r *LookupRequest) error {
			items, err := store.Search(ctx, r.Song, library.DefaultOptions())
			if err != nil {
				return err
			}
			if len(items) > 0 {
				s.Results = items
				s.SearchType = SearchSongAsArtist
			}
			return nil
		},
	}
}

// isCompilationRelease implements the Open Question resolution documented
// in DESIGN.md: a case-insensitive "various"/"various artists" artist
// marker, or a tracklist entry whose title fuzzy-matches song at or above
// the compilation threshold.
func isCompilationRelease(rel releaseapi.Release, song string) bool {
	switch strings.ToLower(strings.TrimSpace(rel.Artist)) {
	case "various", "various artists":
		return true
	}
	for _, tr := range rel.Tracklist {
		if fuzzy.TokenSetRatio(tr.Title, song) >= fuzzy.CompilationTrackThreshold {
			return true
		}
	}
	return false
}
