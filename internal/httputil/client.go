// Package httputil provides a hardened HTTP client, request helpers that map
// transport failures onto the media error taxonomy, and input sanitization.
package httputil

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"ani-tui/internal/media"
)

// UserAgent is sent with every provider request unless overridden.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"

// Response body limits.
const (
	maxPageBytes = 5 * 1024 * 1024
	maxJSONBytes = 10 * 1024 * 1024
)

// NewClient creates a hardened HTTP client with secure defaults.
// Per-call deadlines come from the request context.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        20,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
	}
}

// Get performs a GET request with browser-like headers. headers override the
// defaults. Transport failures wrap media.ErrNetwork, a 404 wraps
// media.ErrNotFound and any other non-2xx status wraps media.ErrNetwork.
// The caller owns the returned body.
func Get(ctx context.Context, client *http.Client, rawURL string, headers map[string]string) (*http.Response, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status 404 for %s", media.ErrNotFound, req.URL.Redacted())
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d for %s", media.ErrNetwork, resp.StatusCode, req.URL.Redacted())
	}

	return resp, nil
}

// GetBody performs Get and reads at most limit bytes of the body.
// A non-positive limit uses the page default.
func GetBody(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = maxPageBytes
	}

	resp, err := Get(ctx, client, rawURL, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", media.ErrNetwork, err)
	}
	return body, nil
}

// GetJSON performs a GET with a JSON accept header and decodes the body into v.
// Decoding failures wrap media.ErrParse.
func GetJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, v any) error {
	h := map[string]string{"Accept": "application/json"}
	for k, val := range headers {
		h[k] = val
	}

	body, err := GetBody(ctx, client, rawURL, h, maxJSONBytes)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", media.ErrParse, rawURL, err)
	}
	return nil
}
