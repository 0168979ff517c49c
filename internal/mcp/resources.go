package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (h *handlers) personalRecords(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	rows, err := h.ds.PersonalRecords(ctx, UserIDFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, rows)
}

func (h *handlers) recentSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -14)

	history, err := h.ds.History(ctx, start, end, UserIDFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, history)
}
