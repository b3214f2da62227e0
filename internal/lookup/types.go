// Package lookup implements the six-step request orchestrator of spec
// §4.9, composing the library store, metadata façade, and strategy
// pipeline into one LookupRequest → LookupResponse operation.
package lookup

import (
	"github.com/wxyc/library-lookup/internal/library"
	"github.com/wxyc/library-lookup/internal/metadata"
	"github.com/wxyc/library-lookup/internal/pipeline"
	"github.com/wxyc/library-lookup/internal/telemetry"
)

// Result pairs a surviving library item with its (optional) artwork, the
// per-item shape of LookupResponse.Results.
type Result struct {
	Item    library.Item      `json:"library_item"`
	Artwork *metadata.Artwork `json:"artwork,omitempty"`
}

// Response is spec §6's LookupResponse.
type Response struct {
	Results            []Result             `json:"results"`
	SearchType          pipeline.SearchType  `json:"search_type"`
	SongNotFound        bool                 `json:"song_not_found"`
	FoundOnCompilation  bool                 `json:"found_on_compilation"`
	ContextMessage      string               `json:"context_message,omitempty"`
	CorrectedArtist     string               `json:"corrected_artist,omitempty"`
	CacheStats          *telemetry.Snapshot  `json:"cache_stats,omitempty"`
}
