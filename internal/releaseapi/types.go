// Package releaseapi is the rate-limited client for the external release
// metadata provider (spec §4.6), shaped like a Discogs-style catalog API:
// bearer token auth, JSON bodies, search-by-artist/track, search-by-free-text,
// and fetch-by-numeric-id. Grounded on
// _examples/other_examples/87a9527e_cehbz-classical-tagger__internal-discogs-client.go
// for the wire shapes, and on the teacher's
// service/musicbrainz.Service for the rate-limiter + http.Client wiring.
package releaseapi

// TrackRef is one entry in a release's tracklist (spec §3).
type TrackRef struct {
	Position string `json:"position,omitempty"`
	Title    string `json:"title"`
	Duration string `json:"duration,omitempty"`
}

// Release is the external metadata provider's release record (spec §3
// ExternalReleaseRef). Identity is ReleaseID.
type Release struct {
	ReleaseID  int        `json:"release_id"`
	ReleaseURL string     `json:"release_url"`
	Title      string     `json:"title"`
	Artist     string     `json:"artist"`
	Year       *int       `json:"year,omitempty"`
	Tracklist  []TrackRef `json:"tracklist"`
}
