// Package catalog wraps the data.gov.sg CKAN search API. It does request and
// response shaping only; choosing between candidate packages is the
// resolver's job.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"sgmacro/internal/model"
)

const (
	defaultBaseURL         = "https://data.gov.sg/api/action"
	defaultRows            = 10
	defaultTimeoutSeconds  = 30
	defaultUserAgent       = "sgmacro/0.1"
	defaultRateLimitPerSec = 4
	defaultRateLimitBurst  = 4
	defaultMaxRetries      = 2
)

// ErrSourceUnavailable wraps every network, HTTP and decode failure so the
// orchestrator can roll them up into the per-source status.
var ErrSourceUnavailable = errors.New("catalog: source unavailable")

type Config struct {
	BaseURL         string
	Rows            int
	Timeout         time.Duration
	UserAgent       string
	RateLimitPerSec int
	RateLimitBurst  int
	MaxRetries      int
}

type Client struct {
	config  Config
	client  *http.Client
	limiter *rateLimiter
}

func New() *Client {
	return NewWithConfig(ConfigFromEnv())
}

func NewWithConfig(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Rows <= 0 {
		cfg.Rows = defaultRows
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = defaultRateLimitPerSec
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	return &Client{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: newRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
	}
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:         getenv("DATA_GOV_SG_BASE_URL", defaultBaseURL),
		Rows:            getenvInt("DATA_GOV_SG_ROWS", defaultRows),
		Timeout:         time.Duration(getenvInt("DATA_GOV_SG_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second,
		UserAgent:       getenv("DATA_GOV_SG_USER_AGENT", defaultUserAgent),
		RateLimitPerSec: getenvInt("DATA_GOV_SG_RATE_LIMIT_PER_SEC", defaultRateLimitPerSec),
		RateLimitBurst:  getenvInt("DATA_GOV_SG_RATE_LIMIT_BURST", defaultRateLimitBurst),
		MaxRetries:      getenvInt("DATA_GOV_SG_MAX_RETRIES", defaultMaxRetries),
	}
}

// SearchEndpoint is recorded in macro.json meta so the dashboard can link
// back to the upstream catalog.
func (c *Client) SearchEndpoint() string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/package_search"
}

// SearchPackages runs one package_search query and returns the candidate
// packages in catalog order.
func (c *Client) SearchPackages(ctx context.Context, query string) ([]model.CatalogPackage, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("rows", strconv.Itoa(c.config.Rows))

	body, err := c.doRequest(ctx, c.SearchEndpoint(), params)
	if err != nil {
		return nil, err
	}

	packages, err := parseSearchResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return packages, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	attempts := c.config.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		body, status, retryAfter, err := c.doRequestOnce(ctx, endpoint, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if status == http.StatusTooManyRequests && attempt < attempts-1 {
			if retryAfter <= 0 {
				retryAfter = time.Second
			}
			if err := sleepWithContext(ctx, retryAfter); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
			}
			continue
		}
		break
	}
	return nil, lastErr
}

func (c *Client) doRequestOnce(ctx context.Context, endpoint string, params url.Values) ([]byte, int, time.Duration, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
	}

	uri := endpoint
	if len(params) > 0 {
		uri = endpoint + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter := parseRetryAfter(resp)
		return nil, resp.StatusCode, retryAfter,
			fmt.Errorf("%w: request failed (%s): %s", ErrSourceUnavailable, resp.Status, strings.TrimSpace(string(body)))
	}

	return body, resp.StatusCode, 0, nil
}

func parseSearchResponse(body []byte) ([]model.CatalogPackage, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if success, ok := payload["success"].(bool); ok && !success {
		return nil, errors.New("package_search reported success=false")
	}

	result, _ := payload["result"].(map[string]any)
	if result == nil {
		return nil, errors.New("package_search response missing result")
	}
	rawResults, _ := result["results"].([]any)

	packages := make([]model.CatalogPackage, 0, len(rawResults))
	for _, item := range rawResults {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		packages = append(packages, packageFromRow(row))
	}
	return packages, nil
}

func packageFromRow(row map[string]any) model.CatalogPackage {
	pkg := model.CatalogPackage{}
	pkg.Title, _ = getString(row, "title", "name")

	if org, ok := row["organization"].(map[string]any); ok {
		pkg.Agency, _ = getString(org, "title", "name")
	}
	if raw, ok := getString(row, "metadata_modified", "last_modified", "metadata_created"); ok {
		pkg.LastModified = parseTimestamp(raw)
	}

	rawResources, _ := row["resources"].([]any)
	for _, item := range rawResources {
		res, ok := item.(map[string]any)
		if !ok {
			continue
		}
		resourceURL, _ := getString(res, "url", "URL")
		format, _ := getString(res, "format", "Format")
		if resourceURL == "" {
			continue
		}
		pkg.Resources = append(pkg.Resources, model.Resource{URL: resourceURL, Format: format})
	}
	return pkg
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range timestampLayouts {
		if when, err := time.Parse(layout, raw); err == nil {
			return when
		}
	}
	return time.Time{}
}

func getString(row map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := row[key]; ok {
			if text, ok := value.(string); ok {
				trimmed := strings.TrimSpace(text)
				if trimmed != "" {
					return trimmed, true
				}
			}
		}
	}
	for rowKey, value := range row {
		for _, key := range keys {
			if strings.EqualFold(rowKey, key) {
				if text, ok := value.(string); ok && strings.TrimSpace(text) != "" {
					return strings.TrimSpace(text), true
				}
			}
		}
	}
	return "", false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := time.Parse(http.TimeFormat, value); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait
		}
	}
	return 0
}

type rateLimiter struct {
	tokens chan struct{}
}

func newRateLimiter(ratePerSec, burst int) *rateLimiter {
	if ratePerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	limiter := &rateLimiter{tokens: make(chan struct{}, burst)}
	for i := 0; i < burst; i++ {
		limiter.tokens <- struct{}{}
	}

	interval := time.Second / time.Duration(ratePerSec)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			select {
			case limiter.tokens <- struct{}{}:
			default:
			}
		}
	}()

	return limiter
}

func (l *rateLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
