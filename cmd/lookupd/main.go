// Command lookupd runs the catalog lookup service's HTTP server, wiring
// config, the library store, the metadata façade, and the lookup
// orchestrator together — the counterpart of the teacher's cmd/main.go.
package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/wxyc/library-lookup/internal/cache/persistent"
	"github.com/wxyc/library-lookup/internal/config"
	"github.com/wxyc/library-lookup/internal/httpapi"
	"github.com/wxyc/library-lookup/internal/library"
	"github.com/wxyc/library-lookup/internal/lookup"
	"github.com/wxyc/library-lookup/internal/metadata"
	"github.com/wxyc/library-lookup/internal/releaseapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}

	store, err := library.Open(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("error opening catalog: %v", err)
	}
	if err := store.Initialize(); err != nil {
		log.Fatalf("error initializing catalog schema: %v", err)
	}

	persistentCache, err := persistent.Open(cfg.PersistentCacheDSN)
	if err != nil {
		log.Fatalf("error opening persistent cache: %v", err)
	}

	releaseClient := releaseapi.NewClient(releaseapi.Config{
		BaseURL:           cfg.ReleaseAPIBaseURL,
		Token:             cfg.ReleaseAPIToken,
		RequestsPerMinute: cfg.RateLimitRPM,
		MaxConcurrent:     cfg.RateLimitConcurrency,
		MaxRetries:        cfg.RateLimitMaxRetries,
	})

	metaSvc := metadata.NewWithCacheConfig(persistentCache, releaseClient, metadata.CacheConfig{
		TrackTTL: cfg.CacheTrackTTL, TrackCap: cfg.CacheTrackCap,
		ReleaseTTL: cfg.CacheReleaseTTL, ReleaseCap: cfg.CacheReleaseCap,
		SearchTTL: cfg.CacheSearchTTL, SearchCap: cfg.CacheSearchCap,
	})

	orch := lookup.New(store, metaSvc, cfg.LookupConcurrency)

	handler := httpapi.Routes(httpapi.Deps{
		Store:        store,
		Metadata:     metaSvc,
		Orchestrator: orch,
		AdminToken:   cfg.AdminToken,
	})

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	fmt.Printf("lookupd running at http://%s\n", addr)
	log.Fatal(server.ListenAndServe())
}
