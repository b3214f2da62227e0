package pipeline

import (
	"context"
	"testing"

	"github.com/wxyc/library-lookup/internal/library"
	"github.com/wxyc/library-lookup/internal/releaseapi"
)

type fakeReleases struct {
	releases []releaseapi.Release
}

func (f *fakeReleases) SearchReleasesByTrack(ctx context.Context, artist, track string, skipCache bool) ([]releaseapi.Release, bool, error) {
	return f.releases, false, nil
}

func seedStore(t *testing.T) *library.Store {
	t.Helper()
	store, err := library.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	items := []library.Item{
		{ID: 1, Artist: "Stereolab", Title: "Emperor Tomato Ketchup"},
		{ID: 2, Artist: "Guerilla Toss", Title: "Famously Alive"},
		{ID: 3, Artist: "Various", Title: "Said I Had a Vision"},
		{ID: 4, Artist: "Deee-Lite", Title: "World Clique"},
	}
	for _, it := range items {
		if err := store.Insert(context.Background(), it); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	return store
}

func TestArtistPlusAlbumDirectHit(t *testing.T) {
	store := seedStore(t)
	defer store.Close()
	state := NewSearchState()
	req := &LookupRequest{Artist: "Stereolab", Song: "Percolator"}

	if err := Run(context.Background(), Strategies(store, &fakeReleases{}), state, req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.SearchType != SearchDirect || len(state.Results) == 0 {
		t.Fatalf("expected direct hit, got %+v", state)
	}
	if state.Results[0].Title != "Emperor Tomato Ketchup" {
		t.Errorf("unexpected result: %+v", state.Results[0])
	}
}

func TestSwappedInterpretation(t *testing.T) {
	store := seedStore(t)
	defer store.Close()
	state := NewSearchState()
	req := &LookupRequest{
		Song:       "Betty Dreams of Green Men",
		RawMessage: "Guerilla Toss - Betty Dreams of Green Men",
	}

	if err := Run(context.Background(), Strategies(store, &fakeReleases{}), state, req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.SearchType != SearchSwapped {
		t.Fatalf("expected swapped interpretation, got %+v", state)
	}
	if len(state.Results) == 0 || state.Results[0].Artist != "Guerilla Toss" {
		t.Errorf("unexpected results: %+v", state.Results)
	}
}

func TestTrackOnCompilationUpgradesArtistOnlyFallback(t *testing.T) {
	store := seedStore(t)
	defer store.Close()
	// An artist-only catalog hit makes ARTIST_PLUS_ALBUM set song_not_found,
	// which TRACK_ON_COMPILATION then upgrades.
	if err := store.Insert(context.Background(), library.Item{ID: 5, Artist: "Brown Sugar Inc", Title: "Dance Floor Classics"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	releases := &fakeReleases{releases: []releaseapi.Release{
		{ReleaseID: 9, Title: "Said I Had a Vision", Artist: "Various",
			Tracklist: []releaseapi.TrackRef{{Title: "Sweet Love of Mine"}}},
	}}
	state := NewSearchState()
	req := &LookupRequest{Artist: "Brown Sugar Inc", Song: "Sweet Love of Mine"}

	if err := Run(context.Background(), Strategies(store, releases), state, req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.SearchType != SearchCompilation || !state.FoundOnCompilation {
		t.Fatalf("expected compilation upgrade, got %+v", state)
	}
	if state.SongNotFound {
		t.Errorf("expected song_not_found cleared after compilation match")
	}
	if state.Results[0].Title != "Said I Had a Vision" {
		t.Errorf("unexpected results: %+v", state.Results)
	}
}

func TestSongAsArtistFallback(t *testing.T) {
	store := seedStore(t)
	defer store.Close()
	state := NewSearchState()
	req := &LookupRequest{Song: "Deee-Lite"}

	if err := Run(context.Background(), Strategies(store, &fakeReleases{}), state, req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.SearchType != SearchSongAsArtist {
		t.Fatalf("expected song_as_artist strategy to fire, got %+v", state)
	}
	if len(state.Results) == 0 || state.Results[0].Artist != "Deee-Lite" {
		t.Errorf("unexpected results: %+v", state.Results)
	}
}

func TestNoStrategyMatchesYieldsNone(t *testing.T) {
	store, err := library.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer store.Close()
	state := NewSearchState()
	req := &LookupRequest{Artist: "Nobody", Song: "Nothing"}

	if err := Run(context.Background(), Strategies(store, &fakeReleases{}), state, req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.SearchType != SearchNone || len(state.Results) != 0 {
		t.Fatalf("expected no match, got %+v", state)
	}
}
