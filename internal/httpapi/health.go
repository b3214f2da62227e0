package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/wxyc/library-lookup/internal/library"
	"github.com/wxyc/library-lookup/internal/metadata"
)

const probeTimeout = 3 * time.Second

type healthStatus string

const (
	healthHealthy  healthStatus = "healthy"
	healthDegraded healthStatus = "degraded"
	healthUnhealthy healthStatus = "unhealthy"
)

type healthResponse struct {
	Status   healthStatus          `json:"status"`
	Services map[string]healthStatus `json:"services"`
}

// handleHealth probes the catalog, persistent cache, and upstream API in
// parallel, each bounded by probeTimeout, per spec §6. A catalog failure is
// unhealthy (503); any other backend failure is merely degraded (200).
func handleHealth(store *library.Store, svc *metadata.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		type probeResult struct {
			name   string
			status healthStatus
		}
		results := make(chan probeResult, 3)

		go func() {
			if err := probeCatalog(ctx, store); err != nil {
				results <- probeResult{"catalog", healthUnhealthy}
				return
			}
			results <- probeResult{"catalog", healthHealthy}
		}()
		go func() {
			if err := probePersistentCache(ctx, svc); err != nil {
				results <- probeResult{"persistent_cache", healthDegraded}
				return
			}
			results <- probeResult{"persistent_cache", healthHealthy}
		}()
		go func() {
			if err := probeUpstream(ctx, svc); err != nil {
				results <- probeResult{"upstream_api", healthDegraded}
				return
			}
			results <- probeResult{"upstream_api", healthHealthy}
		}()

		services := make(map[string]healthStatus, 3)
		for i := 0; i < 3; i++ {
			r := <-results
			services[r.name] = r.status
		}

		overall := healthHealthy
		for _, s := range services {
			if s == healthUnhealthy {
				overall = healthUnhealthy
				break
			}
			if s == healthDegraded {
				overall = healthDegraded
			}
		}

		code := http.StatusOK
		if overall == healthUnhealthy {
			code = http.StatusServiceUnavailable
		}
		jsonResponse(w, code, healthResponse{Status: overall, Services: services})
	}
}

func probeCatalog(ctx context.Context, store *library.Store) error {
	_, err := store.Search(ctx, "a", library.Options{Limit: 1})
	return err
}

func probePersistentCache(ctx context.Context, svc *metadata.Service) error {
	return svc.PingPersistent(ctx)
}

func probeUpstream(ctx context.Context, svc *metadata.Service) error {
	return svc.PingUpstream(ctx)
}
