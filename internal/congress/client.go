package congress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jharding/legistrack/internal/config"
)

// UnavailableError is returned after the retry budget for a request is
// exhausted. Callers treat it as non-fatal for a run except during the
// top-level health check.
type UnavailableError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("upstream unavailable: %s after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// StatusError is a non-retryable upstream HTTP error (4xx other than 429).
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Code, e.Path)
}

// Client issues requests against the Congress.gov v3 API with bounded
// retries, exponential backoff, and proactive rate limiting. It holds no
// state beyond the HTTP session and limiter.
type Client struct {
	baseURL        string
	apiKey         string
	maxRetries     int
	initialBackoff time.Duration
	pageLimit      int
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *slog.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.APIConfig, logger *slog.Logger) *Client {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.Key,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff(),
		pageLimit:      cfg.PageLimit,
		httpClient:     &http.Client{Timeout: cfg.Timeout()},
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		logger:         logger,
	}
}

// Get performs a GET against a relative path (or a full upstream URL) and
// decodes the JSON response into a generic map.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (map[string]json.RawMessage, error) {
	body, err := c.GetRaw(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse response for %s: %w", path, err)
	}
	return out, nil
}

// GetRaw performs a GET with retry and returns the raw response body. The
// API key and format=json are added to the query automatically.
func (c *Client) GetRaw(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u, err := c.buildURL(path, params)
	if err != nil {
		return nil, err
	}

	var lastErr error
	backoff := c.initialBackoff

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := c.do(ctx, u)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		// A 429 gets a longer, rate-aware delay than ordinary 5xx backoff.
		var rl *rateLimitedError
		if errors.As(err, &rl) && rl.retryAfter > backoff {
			backoff = rl.retryAfter
		}
		c.logger.Warn("request failed, retrying",
			"path", path, "attempt", attempt+1, "backoff", backoff, "err", err)
	}

	return nil, &UnavailableError{Path: path, Attempts: c.maxRetries, Err: lastErr}
}

type rateLimitedError struct {
	retryAfter time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (HTTP 429), retry after %s", e.retryAfter)
}

func (c *Client) do(ctx context.Context, u string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, &rateLimitedError{retryAfter: retryAfterDelay(resp)}
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	default:
		// Other 4xx fail immediately without retry.
		return nil, false, &StatusError{Path: req.URL.Path, Code: resp.StatusCode}
	}
}

func retryAfterDelay(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 30 * time.Second
}

func (c *Client) buildURL(path string, params url.Values) (string, error) {
	var u *url.URL
	var err error
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		// Sub-resource links in detail payloads come back as full URLs.
		u, err = url.Parse(path)
	} else {
		u, err = url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
	}
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", path, err)
	}

	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	if q.Get("format") == "" {
		q.Set("format", "json")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// pagination mirrors the upstream envelope.
type pagination struct {
	Count int    `json:"count"`
	Next  string `json:"next"`
}

// GetPaginated walks every page of a list endpoint and returns the flattened
// items found under itemsKey across all pages.
func (c *Client) GetPaginated(ctx context.Context, path string, params url.Values, itemsKey string) ([]json.RawMessage, error) {
	current := url.Values{}
	for k, vs := range params {
		current[k] = vs
	}
	current.Set("limit", strconv.Itoa(c.pageLimit))
	offset := 0
	if v := current.Get("offset"); v != "" {
		offset, _ = strconv.Atoi(v)
	}

	var all []json.RawMessage
	for {
		current.Set("offset", strconv.Itoa(offset))
		page, err := c.Get(ctx, path, current)
		if err != nil {
			return all, err
		}

		raw, ok := page[itemsKey]
		if !ok {
			c.logger.Warn("paginated response missing items key", "path", path, "key", itemsKey)
			break
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return all, fmt.Errorf("expected list under %q for %s: %w", itemsKey, path, err)
		}
		all = append(all, items...)

		var pg pagination
		if rawPg, ok := page["pagination"]; ok {
			if err := json.Unmarshal(rawPg, &pg); err != nil {
				return all, fmt.Errorf("parse pagination for %s: %w", path, err)
			}
		}
		if pg.Next == "" {
			break
		}
		offset += c.pageLimit
	}

	return all, nil
}

// Health performs a minimal authenticated request; a failure here is fatal
// for the run.
func (c *Client) Health(ctx context.Context) error {
	params := url.Values{}
	params.Set("limit", "1")
	_, err := c.Get(ctx, "bill", params)
	return err
}
