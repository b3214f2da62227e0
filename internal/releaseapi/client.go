package releaseapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/wxyc/library-lookup/internal/errs"
	"github.com/wxyc/library-lookup/internal/telemetry"
)

const requestTimeout = 10 * time.Second
const probeTimeout = 3 * time.Second

// Config tunes the rate-limited client (spec §4.6 / §6).
type Config struct {
	BaseURL       string
	Token         string
	RequestsPerMinute int
	MaxConcurrent int
	MaxRetries    int
}

// DefaultConfig matches spec's stated defaults: R=50, C=5, MAX_RETRIES=2.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:           baseURL,
		Token:             token,
		RequestsPerMinute: 50,
		MaxConcurrent:     5,
		MaxRetries:        2,
	}
}

// Client is a single shared instance enforcing the throughput and
// concurrency gates described in spec §4.6.
type Client struct {
	cfg        Config
	httpClient *http.Client
	gate       *gate
	logger     *log.Logger
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
		gate:       newGate(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		logger:     log.New(os.Stdout, "releaseapi: ", log.LstdFlags|log.Lmsgprefix),
	}
}

type searchResponse struct {
	Results []Release `json:"results"`
}

// SearchByTrack pins artist and track-title parameters (the "strict" query
// of spec §4.7).
func (c *Client) SearchByTrack(ctx context.Context, artist, track string) ([]Release, error) {
	q := url.Values{}
	q.Set("artist", artist)
	q.Set("track", track)
	return c.search(ctx, q)
}

// SearchByQuery issues a free-text search (the "keyword" query of spec §4.7,
// also used for artwork-oriented lookups per §4.7 `search`).
func (c *Client) SearchByQuery(ctx context.Context, query string) ([]Release, error) {
	q := url.Values{}
	q.Set("q", query)
	return c.search(ctx, q)
}

func (c *Client) search(ctx context.Context, q url.Values) ([]Release, error) {
	endpoint := fmt.Sprintf("%s/database/search?%s", c.cfg.BaseURL, q.Encode())
	var out searchResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Ping issues a single ungated, unretried request to confirm the upstream
// host is reachable, for the /health endpoint's parallel probes.
func (c *Client) Ping(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	resp, err := c.attempt(reqCtx, http.MethodGet, c.cfg.BaseURL)
	if err != nil {
		return err
	}
	if resp.status >= 500 {
		return fmt.Errorf("%w: status %d", errs.ErrUpstreamError, resp.status)
	}
	return nil
}

// GetRelease fetches a release by numeric id.
func (c *Client) GetRelease(ctx context.Context, id int) (*Release, error) {
	endpoint := fmt.Sprintf("%s/releases/%d", c.cfg.BaseURL, id)
	var rel Release
	if err := c.doJSON(ctx, http.MethodGet, endpoint, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// doJSON performs one gated request, retrying on 429/5xx up to
// cfg.MaxRetries times with exponential backoff (2^attempt seconds), and
// decodes the JSON body into out on success.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, out any) error {
	counters := telemetry.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		release, err := c.gate.acquire(ctx)
		if err != nil {
			return err
		}

		start := time.Now()
		resp, err := c.attempt(ctx, method, endpoint)
		release()
		counters.AddAPICall(time.Since(start))

		if err != nil {
			lastErr = err
			continue
		}

		if resp.retryable {
			lastErr = fmt.Errorf("%w: status %d", errs.ErrUpstreamError, resp.status)
			continue
		}
		if resp.status < 200 || resp.status >= 300 {
			return fmt.Errorf("%w: status %d", errs.ErrUpstreamError, resp.status)
		}

		if out != nil {
			if err := json.Unmarshal(resp.body, out); err != nil {
				return fmt.Errorf("%w: decode error: %v", errs.ErrUpstreamError, err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: exhausted retries: %v", errs.ErrUpstreamError, lastErr)
}

type attemptResult struct {
	status    int
	body      []byte
	retryable bool
}

func (c *Client) attempt(ctx context.Context, method, endpoint string) (*attemptResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("User-Agent", "library-lookup/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		c.logger.Printf("rate limit remaining=%s", remaining)
	}

	body, _ := io.ReadAll(resp.Body)
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return &attemptResult{status: resp.StatusCode, body: body, retryable: retryable}, nil
}
