package ebay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/config"
	"marketplace-sync-service/internal/models"
)

const (
	apiInventory   = "inventory"
	apiFulfillment = "fulfillment"
	apiTrading     = "trading"
	apiOAuth       = "oauth"
	apiIdentity    = "identity"
)

// Client implements clients.MarketplaceClient for one eBay environment.
// It holds no tenant state; every call carries the connection's access token.
type Client struct {
	httpClient  *http.Client
	cfg         config.MarketplaceClientConfig
	rateLimiter *rate.Limiter
	logger      *logrus.Entry
	now         func() time.Time
}

var _ clients.MarketplaceClient = (*Client)(nil)

// NewClient creates a client for the environment described by cfg
func NewClient(cfg config.MarketplaceClientConfig, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		cfg:         cfg,
		rateLimiter: rate.NewLimiter(limit, 1),
		logger: logger.WithFields(logrus.Fields{
			"component":   "ebay_client",
			"environment": cfg.Environment,
		}),
		now: time.Now,
	}
}

// NewFactory returns a ClientFactory that builds one client per environment
// and reuses it, so the rate limiter is shared by all tenants on that environment.
func NewFactory(base config.MarketplaceClientConfig, logger *logrus.Entry) clients.ClientFactory {
	var mu sync.Mutex
	byEnv := make(map[models.Environment]*Client)

	return func(env models.Environment) clients.MarketplaceClient {
		mu.Lock()
		defer mu.Unlock()

		if env == "" {
			env = models.Environment(base.Environment)
		}
		if c, ok := byEnv[env]; ok {
			return c
		}
		c := NewClient(base.ForEnvironment(string(env)), logger)
		byEnv[env] = c
		return c
	}
}

// resolveURL joins path onto the REST base URL. Absolute URLs returned by the
// API (pagination links) keep only their request URI so the configured host wins.
func (c *Client) resolveURL(path string, params url.Values) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("invalid link %q: %w", path, err)
		}
		path = u.RequestURI()
	}
	fullURL := strings.TrimRight(c.cfg.APIBaseURL, "/") + path
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + params.Encode()
	}
	return fullURL, nil
}

// doRequest performs an authenticated REST request and returns body and headers
func (c *Client) doRequest(ctx context.Context, api, operation, method, path, accessToken string, params url.Values, body interface{}) ([]byte, http.Header, error) {
	// Rate limiting
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	fullURL, err := c.resolveURL(path, params)
	if err != nil {
		return nil, nil, err
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Language", "en-US")

	return c.send(req, api, operation)
}

// send executes req and converts any non-2xx response into a MarketplaceError
func (c *Client) send(req *http.Request, api, operation string) ([]byte, http.Header, error) {
	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s request failed: %w", api, operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"api":        api,
		"operation":  operation,
		"status":     resp.StatusCode,
		"durationMs": c.now().Sub(start).Milliseconds(),
	}).Debug("marketplace call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, clients.NewHTTPError(api, operation, resp, respBody)
	}

	return respBody, resp.Header, nil
}
