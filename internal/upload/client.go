package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/claude/liftlog/internal/ingest"
)

// Client sends exports to the LiftLog server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a new HTTP client for the LiftLog server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: serverURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

// SendExport POSTs an Alpha Progression CSV to the import endpoint.
// Retries up to 3 times with exponential backoff on transport errors and
// 5xx responses; 4xx responses fail immediately.
func (c *Client) SendExport(ctx context.Context, data []byte) (*ingest.Result, error) {
	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff << (attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.serverURL+"/api/v1/import/alpha", bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "text/csv")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			var result ingest.Result
			if err := json.Unmarshal(body, &result); err != nil {
				return nil, fmt.Errorf("decoding import result: %w", err)
			}
			return &result, nil
		case resp.StatusCode < 500:
			return nil, fmt.Errorf("import rejected (status %d): %s", resp.StatusCode, body)
		}
		lastErr = fmt.Errorf("import failed (status %d): %s", resp.StatusCode, body)
	}
	return nil, fmt.Errorf("after 3 attempts: %w", lastErr)
}
