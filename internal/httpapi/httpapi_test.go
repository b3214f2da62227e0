package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wxyc/library-lookup/internal/cache/persistent"
	"github.com/wxyc/library-lookup/internal/library"
	"github.com/wxyc/library-lookup/internal/lookup"
	"github.com/wxyc/library-lookup/internal/metadata"
	"github.com/wxyc/library-lookup/internal/releaseapi"
)

type fakeClient struct{}

func (f *fakeClient) SearchByTrack(ctx context.Context, artist, track string) ([]releaseapi.Release, error) {
	return []releaseapi.Release{{ReleaseID: 1, Title: "Emperor Tomato Ketchup", Artist: "Stereolab"}}, nil
}
func (f *fakeClient) SearchByQuery(ctx context.Context, query string) ([]releaseapi.Release, error) {
	return nil, nil
}
func (f *fakeClient) GetRelease(ctx context.Context, id int) (*releaseapi.Release, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	store, err := library.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Insert(context.Background(), library.Item{ID: 1, Artist: "Stereolab", Title: "Emperor Tomato Ketchup"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	pc, err := persistent.Open("")
	if err != nil {
		t.Fatalf("persistent.Open: %v", err)
	}
	svc := metadata.New(pc, &fakeClient{})
	orch := lookup.New(store, svc, 4)

	return Routes(Deps{Store: store, Metadata: svc, Orchestrator: orch, AdminToken: "secret-token"})
}

func TestLibrarySearchEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/library/search?q=Stereolab")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var items []library.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Artist != "Stereolab" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestLookupEndpointRejectsEmptyBody(t *testing.T) {
	handler := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/lookup", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty request, got %d", resp.StatusCode)
	}
}

func TestLookupEndpointDirectHit(t *testing.T) {
	handler := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	body := strings.NewReader(`{"artist":"Stereolab","song":"Percolator"}`)
	resp, err := http.Post(srv.URL+"/api/v1/lookup", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out lookup.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Results) == 0 {
		t.Errorf("expected at least one result, got %+v", out)
	}
}

func TestAdminCatalogUploadRequiresBearerToken(t *testing.T) {
	handler := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/admin/catalog", "application/octet-stream", strings.NewReader(""))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", resp.StatusCode)
	}
}

func TestHealthEndpointHealthy(t *testing.T) {
	handler := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var out healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != healthHealthy {
		t.Errorf("expected healthy status, got %+v", out)
	}
}
