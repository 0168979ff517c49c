package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/muscles"
	"github.com/claude/liftlog/internal/records"
)

// defaultTimeRange returns start/end, defaulting to the days before end.
func defaultTimeRange(startStr, endStr string, days int) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -days)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolGetPersonalRecords = mcp.NewTool("get_personal_records",
	mcp.WithDescription("Lifetime bests per exercise: estimated 1RM (Epley), heaviest weight with its reps, most reps and longest hold for timed exercises."),
	mcp.WithString("search", mcp.Description("Filter by exercise name (partial, accent-insensitive)")),
	mcp.WithString("type", mcp.Description("Only rows carrying this metric. Defaults to 'all'."), mcp.Enum("all", "strength", "reps", "time")),
	mcp.WithString("sort", mcp.Description("Ranking. 'metric' sorts by the selected metric, descending. Defaults to 'metric'."), mcp.Enum("metric", "recent", "name")),
)

var toolGetWorkoutHistory = mcp.NewTool("get_workout_history",
	mcp.WithDescription("Finished sessions with their exercises and sets, volume and duration."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
	mcp.WithString("exercise", mcp.Description("Only sessions containing this exercise (partial match, e.g. 'bench')")),
)

var toolGetMuscleDistribution = mcp.NewTool("get_muscle_distribution",
	mcp.WithDescription("Completed working series per muscle group. Secondary muscles receive a fraction of each series. Returns the total and one entry per week or month."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 28 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
	mcp.WithString("bucket", mcp.Description("Period width. Defaults to 'week'."), mcp.Enum("week", "month")),
)

var toolGetActiveSession = mcp.NewTool("get_active_session",
	mcp.WithDescription("The session in progress, if any: exercises, set completion and the running rest timer."),
)

var toolGetTrainingStats = mcp.NewTool("get_training_stats",
	mcp.WithDescription("All-time totals: sessions, completed sets, volume, minutes, sessions per name and per source."),
)

// --- Tool handlers ---

func (h *handlers) getPersonalRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)

	rows, err := h.ds.PersonalRecords(ctx, uid)
	if err != nil {
		h.log.Error("mcp get_personal_records", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	rows = records.QueryRaw(rows, req.GetString("search", ""), req.GetString("type", ""), req.GetString("sort", ""))
	if rows == nil {
		rows = []records.Row{}
	}

	result, err := mcp.NewToolResultJSON(rows)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getWorkoutHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), 30)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	uid := UserIDFromContext(ctx)
	history, err := h.ds.History(ctx, start, end, uid)
	if err != nil {
		h.log.Error("mcp get_workout_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	history = models.WithExercise(history, req.GetString("exercise", ""))
	if history == nil {
		history = []models.HistoryRecord{}
	}

	result, err := mcp.NewToolResultJSON(history)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getMuscleDistribution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), 28)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	bucket := muscles.ParseBucket(req.GetString("bucket", "week"))
	uid := UserIDFromContext(ctx)

	summary, err := h.ds.MuscleSummary(ctx, start, end, bucket, uid)
	if err != nil {
		h.log.Error("mcp get_muscle_distribution", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(summary)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getActiveSession(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := h.ds.ActiveSession(ctx, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_active_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(state)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getTrainingStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.ds.TrainingStats(ctx, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_training_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(stats)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
