package workout

import "fmt"

// Status is the lifecycle state of a user's session.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
	StatusFinished   Status = "finished"
	StatusCancelled  Status = "cancelled"
)

// InProgress reports whether a session exists in this state.
func (s Status) InProgress() bool {
	return s == StatusActive || s == StatusPaused
}

var transitions = map[Status][]Status{
	StatusNotStarted: {StatusActive},
	StatusActive:     {StatusPaused, StatusFinished, StatusCancelled},
	StatusPaused:     {StatusActive, StatusFinished, StatusCancelled},
	StatusFinished:   {StatusActive},
	StatusCancelled:  {StatusActive},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !canTransition(from, to) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}
