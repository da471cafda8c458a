// Package fetcher retrieves raw HTML for a target page, rotating request
// header profiles to get past basic bot filtering.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/developer-mesh/pagesearch/internal/observability"
	"github.com/developer-mesh/pagesearch/internal/resilience"
)

// ErrInvalidURL is returned when a URL has no usable scheme or host.
var ErrInvalidURL = errors.New("invalid URL format")

// FetchError reports that every fetch attempt failed. StatusCode carries the
// last HTTP status when the failure was an HTTP error, zero otherwise.
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("failed to fetch %s after %d attempts", e.URL, e.Attempts)
	if e.StatusCode == http.StatusForbidden {
		msg += " (403: site may be blocking automated requests)"
	} else if e.StatusCode == http.StatusUnauthorized {
		msg += " (401: site requires authentication)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// headerProfiles are tried in order until one attempt succeeds. The first is
// a full browser-like profile; the second a minimal one for servers that
// reject unexpected headers.
var headerProfiles = []map[string]string{
	{
		"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Cache-Control":             "max-age=0",
	},
	{
		"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	},
}

// Config configures the fetcher.
type Config struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	BurstSize         int
}

// Fetcher fetches pages over HTTP with a per-attempt timeout.
type Fetcher struct {
	client  *http.Client
	limiter *resilience.RateLimiter
	logger  observability.Logger
}

// New creates a new Fetcher
func New(cfg Config, logger observability.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			RequestsPerSecond: cfg.RequestsPerSecond,
			BurstSize:         cfg.BurstSize,
		}),
		logger: logger.WithPrefix("fetcher"),
	}
}

// NormalizeURL trims the raw URL, prepends https:// when the scheme is
// missing, and rejects URLs without both scheme and host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" {
		raw = "https://" + raw
		parsed, err = url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
		}
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}

	return parsed.String(), nil
}

// Fetch retrieves the page body as a string, trying each header profile in
// turn. It returns a *FetchError when all attempts fail.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	var lastErr error
	lastStatus := 0

	for i, profile := range headerProfiles {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}

		body, status, err := f.attempt(ctx, pageURL, profile)
		if err == nil {
			f.logger.Info("Fetched page", map[string]interface{}{
				"url":     pageURL,
				"bytes":   len(body),
				"attempt": i + 1,
			})
			return body, nil
		}

		lastErr = err
		if status != 0 {
			lastStatus = status
		}

		f.logger.Warn("Fetch attempt failed", map[string]interface{}{
			"url":     pageURL,
			"attempt": i + 1,
			"status":  status,
			"error":   err.Error(),
		})

		if ctx.Err() != nil {
			break
		}
	}

	return "", &FetchError{
		URL:        pageURL,
		Attempts:   len(headerProfiles),
		StatusCode: lastStatus,
		Err:        lastErr,
	}
}

// attempt performs one GET with the given header profile. Redirects are
// followed by the underlying client.
func (f *Fetcher) attempt(ctx context.Context, pageURL string, headers map[string]string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Warn("Failed to close response body", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	if resp.StatusCode >= 400 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", resp.StatusCode, fmt.Errorf("HTTP error %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return string(body), 0, nil
}
