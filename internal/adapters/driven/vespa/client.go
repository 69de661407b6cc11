package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds Vespa connection configuration
type Config struct {
	// BaseURL is the container endpoint for document and search APIs (e.g. http://localhost:8080)
	BaseURL string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// errNotFound marks a 404 from Vespa so callers can treat it as absence.
var errNotFound = errors.New("vespa: not found")

// validateEndpoint accepts only absolute http(s) URLs and strips a trailing slash.
func validateEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", errors.New("vespa endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid vespa endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid vespa endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("vespa endpoint has no host")
	}
	return strings.TrimSuffix(endpoint, "/"), nil
}

// doJSON sends body (if any) as JSON and decodes a JSON response into out (if any).
func doJSON(ctx context.Context, client *http.Client, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vespa %s %s: %s - %s", method, req.URL.Path, resp.Status, string(respBody))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
