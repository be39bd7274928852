package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"derivflow/models"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "Mozilla/5.0 (compatible; DerivFlow/1.0)"
	// Error bodies are truncated before they travel up the fallback chain.
	maxErrorBody = 200
)

// Client is the lowest-level HTTP adapter. It performs a single GET and
// classifies the outcome; retry and base fallback live in Resolver.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// GetJSON issues a GET against the fully-qualified URL and returns the
// raw body once it has been verified to be valid JSON. Network failures
// and non-2xx statuses surface as *models.TransportError, undecodable
// bodies as *models.ParseError.
func (c *Client) GetJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &models.TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransportError{URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.TransportError{URL: url, Status: resp.StatusCode}
	}

	if !json.Valid(body) {
		return nil, &models.ParseError{URL: url, Err: fmt.Errorf("invalid JSON in %d-byte body", len(body))}
	}

	return body, nil
}

// TruncateBody trims a raw provider error payload for log and debug
// output.
func TruncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
