package httpapi

import (
	"net/http"
	"strings"

	"github.com/justinas/alice"

	"github.com/wxyc/library-lookup/internal/library"
	"github.com/wxyc/library-lookup/internal/lookup"
	"github.com/wxyc/library-lookup/internal/metadata"
)

// Deps bundles the collaborators the HTTP surface dispatches into,
// mirroring the teacher's application struct in cmd/main.go.
type Deps struct {
	Store           *library.Store
	Metadata        *metadata.Service
	Orchestrator    *lookup.Orchestrator
	CatalogReplacer CatalogReplacer
	AdminToken      string
}

// Routes builds the full handler per spec §6, grounded on the teacher's
// cmd/routes.go ServeMux + alice.Chain wiring.
func Routes(deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/lookup", handleLookup(deps.Orchestrator))
	mux.HandleFunc("GET /api/v1/library/search", handleLibrarySearch(deps.Store))
	mux.HandleFunc("POST /api/v1/discogs/search", handleDiscogsSearch(deps.Metadata))
	mux.HandleFunc("GET /api/v1/discogs/track-releases", handleDiscogsTrackReleases(deps.Metadata))
	mux.HandleFunc("GET /api/v1/discogs/release/{id}", handleDiscogsRelease(deps.Metadata))
	mux.HandleFunc("GET /health", handleHealth(deps.Store, deps.Metadata))

	adminChain := alice.New(adminAuth(deps.AdminToken))
	mux.Handle("POST /api/v1/admin/catalog", adminChain.Then(handleAdminCatalogUpload(deps.CatalogReplacer)))

	// requestID runs outermost so every downstream link — recoverer included
	// — can attribute its log line to a request, matching SPEC_FULL.md §2's
	// promised request id / recover / logging chain.
	standard := alice.New(requestID, recoverer, requestLogger)
	return standard.Then(mux)
}

// adminAuth gates the admin upload endpoint behind a bearer token, matching
// the teacher's session middleware shape (a func wrapping http.Handler)
// rather than its atproto-specific session logic.
func adminAuth(token string) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "admin endpoint not configured"})
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
