package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer,
// 0 when none was set.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 0
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("liftlog", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("liftlog training log server. Query personal records, workout history, muscle load distribution and the session in progress. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetPersonalRecords, Handler: h.getPersonalRecords},
		server.ServerTool{Tool: toolGetWorkoutHistory, Handler: h.getWorkoutHistory},
		server.ServerTool{Tool: toolGetMuscleDistribution, Handler: h.getMuscleDistribution},
		server.ServerTool{Tool: toolGetActiveSession, Handler: h.getActiveSession},
		server.ServerTool{Tool: toolGetTrainingStats, Handler: h.getTrainingStats},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resRecords, Handler: h.personalRecords},
		server.ServerResource{Resource: resRecentSessions, Handler: h.recentSessions},
	)

	return s
}

// HTTPHandler serves s over streamable HTTP. userID resolves the caller
// from the request, typically from the REST API's identity middleware.
func HTTPHandler(s *server.MCPServer, userID func(*http.Request) int) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithEndpointPath("/mcp"),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return WithUserID(ctx, userID(r))
		}),
	)
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resRecords = mcp.NewResource(
	"liftlog://records",
	"Personal Records",
	mcp.WithResourceDescription("Lifetime bests per exercise: estimated 1RM, best weight, most reps and longest hold"),
	mcp.WithMIMEType("application/json"),
)

var resRecentSessions = mcp.NewResource(
	"liftlog://recent_sessions",
	"Recent Sessions",
	mcp.WithResourceDescription("Finished sessions from the last 14 days"),
	mcp.WithMIMEType("application/json"),
)
