package storage

import "github.com/claude/liftlog/internal/workout"

type splitStore struct {
	workout.ActiveSessionStore
	workout.HistoryStore
}

// Split combines an active-session store (e.g. Redis) with a history store
// (Postgres or SQLite) into one workout.Store.
func Split(active workout.ActiveSessionStore, history workout.HistoryStore) workout.Store {
	return splitStore{ActiveSessionStore: active, HistoryStore: history}
}
