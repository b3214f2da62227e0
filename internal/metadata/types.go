// Package metadata is the façade composing the three cache tiers in front
// of the external release API (spec §4.7): per-request memory cache,
// shared persistent cache, and the rate-limited HTTP client, probed in
// order M → P → H.
package metadata

// Artwork is spec §3's Artwork record, attached to a surviving library item
// during the lookup orchestrator's step 5.
type Artwork struct {
	Album      string  `json:"album"`
	Artist     string  `json:"artist"`
	ReleaseID  int     `json:"release_id"`
	ReleaseURL string  `json:"release_url"`
	ArtworkURL string  `json:"artwork_url,omitempty"`
	Confidence float64 `json:"confidence"`
	Cached     bool    `json:"cached"`
}
