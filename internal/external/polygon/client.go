// Package polygon is the quote provider and symbol sources over the
// Polygon.io REST API.
package polygon

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/wonny/gapwatch/pkg/config"
	"github.com/wonny/gapwatch/pkg/httputil"
	"github.com/wonny/gapwatch/pkg/logger"
	"github.com/wonny/gapwatch/pkg/redis"
)

// Client handles communication with Polygon.io
// ⭐ SSOT: Polygon API calls go through this client only
type Client struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	logger     *logger.Logger
	baseURL    string
	apiKey     string
}

// NewClient creates a new Polygon client. It adds a per-process token
// bucket of cfg.RateLimit requests per second to httpClient. cache may be nil.
func NewClient(httpClient *httputil.Client, cfg config.PolygonConfig, cache *redis.Cache, log *logger.Logger) *Client {
	if cfg.RateLimit > 0 {
		httpClient.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit))
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.polygon.io"
	}

	return &Client{
		httpClient: httpClient,
		cache:      cache,
		logger:     log.WithField("module", "polygon"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return "polygon"
}

// buildURL joins path and params onto the base URL and signs the request
func (c *Client) buildURL(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)
	return fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
}

// signURL adds the API key to an absolute URL returned by the API (next_url)
func (c *Client) signURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse next_url: %w", err)
	}
	q := u.Query()
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) getJSON(ctx context.Context, fullURL string, dest interface{}) error {
	return c.httpClient.GetJSON(ctx, fullURL, dest)
}
