package workout

import (
	"errors"
	"fmt"

	"github.com/claude/liftlog/internal/models"
)

var (
	// ErrMissingContext means the runtime has no user or no store; nothing was mutated.
	ErrMissingContext    = errors.New("no active user or session store")
	ErrNoActiveSession   = errors.New("no active session")
	ErrSessionActive     = errors.New("a session is already in progress")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrExerciseNotFound  = errors.New("exercise not found in session")
	ErrNoRestTimer       = errors.New("no rest timer running")
	// ErrStaleSnapshot is returned by stores when a newer snapshot version is
	// already persisted for the user.
	ErrStaleSnapshot = errors.New("stale session snapshot")
	ErrForbidden     = models.ErrForbidden
)

// ValidationError reports rejected input for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a store failure. The in-memory session keeps the
// mutation that failed to persist.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
