// Package httpapi implements spec §6's inbound HTTP surface: net/http.ServeMux
// routing with github.com/justinas/alice middleware chaining, grounded on
// the teacher's cmd/routes.go + cmd/handlers.go jsonResponse idiom.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/wxyc/library-lookup/internal/errs"
	"github.com/wxyc/library-lookup/internal/library"
	"github.com/wxyc/library-lookup/internal/lookup"
	"github.com/wxyc/library-lookup/internal/metadata"
	"github.com/wxyc/library-lookup/internal/pipeline"
)

func jsonResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// lookupRequestBody mirrors spec §3's LookupRequest wire shape.
type lookupRequestBody struct {
	Artist     string `json:"artist,omitempty"`
	Song       string `json:"song,omitempty"`
	Album      string `json:"album,omitempty"`
	RawMessage string `json:"raw_message,omitempty"`
}

func handleLookup(orch *lookup.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body lookupRequestBody
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err.Error() != "EOF" {
				jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
		}

		req := pipeline.LookupRequest{
			Artist:     body.Artist,
			Song:       body.Song,
			Album:      body.Album,
			RawMessage: body.RawMessage,
			SkipCache:  r.URL.Query().Get("skip_cache") == "true",
		}

		resp, err := orch.Lookup(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, errs.ErrInvalidInput):
				jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid_input"})
			case errors.Is(err, errs.ErrStoreUnavailable):
				jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "store_unavailable"})
			default:
				log.Printf("lookup error: %v", err)
				jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
			}
			return
		}
		jsonResponse(w, http.StatusOK, resp)
	}
}

func handleLibrarySearch(store *library.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
			return
		}
		opts := library.DefaultOptions()
		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
			opts.Limit = limit
		}

		items, err := store.Search(r.Context(), query, opts)
		if err != nil {
			log.Printf("library search error: %v", err)
			jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
			return
		}
		jsonResponse(w, http.StatusOK, items)
	}
}

type discogsSearchBody struct {
	Artist string `json:"artist,omitempty"`
	Track  string `json:"track,omitempty"`
	Query  string `json:"q,omitempty"`
}

func handleDiscogsSearch(svc *metadata.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body discogsSearchBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		skipCache := r.URL.Query().Get("skip_cache") == "true"

		if body.Artist != "" && body.Track != "" {
			releases, _, err := svc.SearchReleasesByTrack(r.Context(), body.Artist, body.Track, skipCache)
			if err != nil {
				log.Printf("discogs search error: %v", err)
				jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
				return
			}
			jsonResponse(w, http.StatusOK, releases)
			return
		}

		if body.Query == "" {
			jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "one of artist+track or q is required"})
			return
		}
		releases, _, err := svc.Search(r.Context(), body.Query, skipCache)
		if err != nil {
			log.Printf("discogs search error: %v", err)
			jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
			return
		}
		jsonResponse(w, http.StatusOK, releases)
	}
}

func handleDiscogsTrackReleases(svc *metadata.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artist := r.URL.Query().Get("artist")
		track := r.URL.Query().Get("track")
		if artist == "" || track == "" {
			jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "artist and track are required"})
			return
		}
		skipCache := r.URL.Query().Get("skip_cache") == "true"
		releases, _, err := svc.SearchReleasesByTrack(r.Context(), artist, track, skipCache)
		if err != nil {
			log.Printf("discogs track-releases error: %v", err)
			jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
			return
		}
		jsonResponse(w, http.StatusOK, releases)
	}
}

func handleDiscogsRelease(svc *metadata.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := r.PathValue("id")
		id, err := strconv.Atoi(idStr)
		if err != nil {
			jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "id must be numeric"})
			return
		}
		skipCache := r.URL.Query().Get("skip_cache") == "true"
		rel, _, err := svc.GetRelease(r.Context(), id, skipCache)
		if err != nil {
			log.Printf("discogs release fetch error: %v", err)
			jsonResponse(w, http.StatusOK, nil)
			return
		}
		jsonResponse(w, http.StatusOK, rel)
	}
}

// CatalogReplacer is the out-of-scope collaborator performing atomic catalog
// file replacement (spec §1's explicit out-of-scope note). This package
// defines the HTTP contract and auth middleware only.
type CatalogReplacer interface {
	ReplaceCatalog(r *http.Request) error
}

func handleAdminCatalogUpload(replacer CatalogReplacer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if replacer == nil {
			jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "catalog upload not configured"})
			return
		}
		if err := replacer.ReplaceCatalog(r); err != nil {
			log.Printf("catalog upload error: %v", err)
			jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
			return
		}
		jsonResponse(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}
