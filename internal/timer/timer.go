// Package timer implements rest countdowns that survive process suspension.
//
// Elapsed time is always derived from wall-clock timestamps, never from
// counting ticks, so a timer that was not observed for minutes still reports
// the right remaining time the next time it is computed.
package timer

import (
	"math"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// Compute returns elapsed and remaining whole seconds of s at now.
func Compute(s models.RestTimerState, now time.Time) (elapsed, remaining int) {
	if IsPaused(s) {
		if s.PausedElapsedSeconds != nil {
			elapsed = max(0, *s.PausedElapsedSeconds)
		}
	} else {
		elapsed = max(0, int(now.Sub(s.StartedAt)/time.Second))
	}
	remaining = max(0, max(0, s.DurationSeconds)-elapsed)
	return elapsed, remaining
}

// IsPaused reports whether the countdown is frozen.
func IsPaused(s models.RestTimerState) bool {
	return s.PausedAt != nil
}

// Start creates a fresh countdown instance.
func Start(durationSeconds int, now time.Time) models.RestTimerState {
	return models.RestTimerState{
		InstanceID:      uuid.NewString(),
		DurationSeconds: max(0, durationSeconds),
		StartedAt:       now,
	}
}

// Pause freezes the countdown at its current elapsed value.
// Pausing a paused timer returns it unchanged.
func Pause(s models.RestTimerState, now time.Time) models.RestTimerState {
	if IsPaused(s) {
		return s
	}
	elapsed, _ := Compute(s, now)
	at := now
	s.PausedAt = &at
	s.PausedElapsedSeconds = &elapsed
	return s
}

// Resume returns a running replacement of a paused timer whose StartedAt is
// shifted back so elapsed continues from the frozen value.
func Resume(s models.RestTimerState, now time.Time) models.RestTimerState {
	if !IsPaused(s) {
		return s
	}
	elapsed, _ := Compute(s, now)
	return models.RestTimerState{
		InstanceID:      s.InstanceID,
		DurationSeconds: s.DurationSeconds,
		StartedAt:       now.Add(-time.Duration(elapsed) * time.Second),
	}
}

// Extend adds delta seconds to the duration, never going below zero.
// A NaN or infinite result keeps the previous duration.
func Extend(s models.RestTimerState, deltaSeconds float64) models.RestTimerState {
	next := float64(s.DurationSeconds) + deltaSeconds
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return s
	}
	if next < 0 {
		next = 0
	}
	s.DurationSeconds = int(math.Round(next))
	return s
}
