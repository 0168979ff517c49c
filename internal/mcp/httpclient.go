package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/muscles"
	"github.com/claude/liftlog/internal/records"
	"github.com/claude/liftlog/internal/storage"
)

// HTTPClient implements DataSource by calling the liftlog REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale). The server
// resolves the user from the connection, so userID arguments are ignored.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, v any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}

func (c *HTTPClient) PersonalRecords(ctx context.Context, _ int) ([]records.Row, error) {
	var rows []records.Row
	if err := c.get(ctx, "/api/v1/records", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) History(ctx context.Context, start, end time.Time, _ int) ([]models.HistoryRecord, error) {
	var history []models.HistoryRecord
	if err := c.get(ctx, "/api/v1/history", timeParams(start, end), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *HTTPClient) MuscleSummary(ctx context.Context, start, end time.Time, bucket muscles.Bucket, _ int) (*muscles.Summary, error) {
	params := timeParams(start, end)
	params.Set("bucket", string(bucket))

	var summary muscles.Summary
	if err := c.get(ctx, "/api/v1/stats/muscles", params, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *HTTPClient) ActiveSession(ctx context.Context, _ int) (*SessionState, error) {
	var state SessionState
	if err := c.get(ctx, "/api/v1/session", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *HTTPClient) TrainingStats(ctx context.Context, _ int) (*storage.DataStats, error) {
	var stats storage.DataStats
	if err := c.get(ctx, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
