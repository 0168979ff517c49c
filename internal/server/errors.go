package server

import (
	"errors"
	"net/http"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/storage"
	"github.com/claude/liftlog/internal/workout"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *workout.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, workout.ErrMissingContext):
		return http.StatusUnauthorized
	case errors.Is(err, workout.ErrNoActiveSession),
		errors.Is(err, workout.ErrExerciseNotFound),
		errors.Is(err, workout.ErrNoRestTimer),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workout.ErrStaleSnapshot),
		errors.Is(err, workout.ErrInvalidTransition),
		errors.Is(err, workout.ErrSessionActive):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
