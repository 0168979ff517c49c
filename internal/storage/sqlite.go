package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
)

var _ workout.Store = (*SQLite)(nil)

// SQLite is a single-file store with the same surface as DB, for
// single-user deployments and tests. Timestamps are stored as unix
// milliseconds and structured columns as JSON text.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	login         TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL DEFAULT '',
	bodyweight_kg REAL NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	last_seen     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS active_sessions (
	user_id    INTEGER PRIMARY KEY,
	snapshot   BLOB NOT NULL,
	version    INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS history_records (
	id               TEXT PRIMARY KEY,
	user_id          INTEGER NOT NULL,
	routine_id       TEXT,
	name             TEXT NOT NULL,
	date             INTEGER NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	total_volume     REAL NOT NULL DEFAULT 0,
	bodyweight_kg    REAL NOT NULL DEFAULT 0,
	source           TEXT NOT NULL DEFAULT 'session',
	exercises        TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_history_user_date ON history_records (user_id, date DESC);
CREATE TABLE IF NOT EXISTS best_records (
	user_id       INTEGER NOT NULL,
	exercise_name TEXT NOT NULL,
	weight        REAL NOT NULL DEFAULT 0,
	reps          INTEGER NOT NULL DEFAULT 0,
	date          INTEGER NOT NULL,
	PRIMARY KEY (user_id, exercise_name)
);
CREATE TABLE IF NOT EXISTS catalog_items (
	id                  TEXT PRIMARY KEY,
	owner_id            INTEGER,
	name                TEXT NOT NULL,
	primary_muscle      TEXT NOT NULL DEFAULT '',
	secondary_muscles   TEXT NOT NULL DEFAULT '[]',
	secondary_factor    REAL,
	tracking_mode       TEXT NOT NULL DEFAULT 'reps',
	includes_bodyweight INTEGER NOT NULL DEFAULT 0,
	rest_seconds        INTEGER NOT NULL DEFAULT 0,
	created_at          INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS routines (
	id         TEXT PRIMARY KEY,
	owner_id   INTEGER,
	name       TEXT NOT NULL,
	exercises  TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS import_logs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id          INTEGER NOT NULL,
	created_at       INTEGER NOT NULL,
	source           TEXT NOT NULL,
	status           TEXT NOT NULL,
	records_received INTEGER NOT NULL DEFAULT 0,
	records_inserted INTEGER NOT NULL DEFAULT 0,
	sets_received    INTEGER NOT NULL DEFAULT 0,
	duration_ms      INTEGER,
	error_message    TEXT,
	metadata         TEXT
);
`

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: in-memory databases are per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// GetOrCreateUser finds or creates a user by login name.
func (s *SQLite) GetOrCreateUser(ctx context.Context, login, displayName string) (int, error) {
	now := toMillis(time.Now())
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (login, display_name, created_at, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (login) DO UPDATE
			SET last_seen = excluded.last_seen,
			    display_name = COALESCE(NULLIF(excluded.display_name, ''), users.display_name)
		RETURNING id
	`, login, displayName, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting user: %w", err)
	}
	return id, nil
}

// Bodyweight returns the user's recorded bodyweight in kg, 0 if unset.
func (s *SQLite) Bodyweight(ctx context.Context, userID int) (float64, error) {
	var kg float64
	err := s.db.QueryRowContext(ctx, `SELECT bodyweight_kg FROM users WHERE id = ?`, userID).Scan(&kg)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying bodyweight: %w", err)
	}
	return kg, nil
}

// SetBodyweight records the user's bodyweight in kg.
func (s *SQLite) SetBodyweight(ctx context.Context, userID int, kg float64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET bodyweight_kg = ? WHERE id = ?`, kg, userID); err != nil {
		return fmt.Errorf("updating bodyweight: %w", err)
	}
	return nil
}

// UpsertActiveSession stores the snapshot unless a newer version exists.
func (s *SQLite) UpsertActiveSession(ctx context.Context, userID int, snapshot []byte, version int64) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO active_sessions (user_id, snapshot, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
			SET snapshot = excluded.snapshot, version = excluded.version, updated_at = excluded.updated_at
			WHERE active_sessions.version < excluded.version
	`, userID, snapshot, version, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("upserting active session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d version %d: %w", userID, version, workout.ErrStaleSnapshot)
	}
	return nil
}

// GetActiveSession returns the stored snapshot, if any.
func (s *SQLite) GetActiveSession(ctx context.Context, userID int) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM active_sessions WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying active session: %w", err)
	}
	return data, true, nil
}

// DeleteActiveSession removes the user's session.
func (s *SQLite) DeleteActiveSession(ctx context.Context, userID int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM active_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting active session: %w", err)
	}
	return nil
}

// AppendHistoryRecord inserts a record; an existing id is left untouched.
func (s *SQLite) AppendHistoryRecord(ctx context.Context, rec models.HistoryRecord) error {
	exercises, err := json.Marshal(rec.Exercises)
	if err != nil {
		return fmt.Errorf("encoding exercises: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history_records (id, user_id, routine_id, name, date, duration_minutes,
		 total_volume, bodyweight_kg, source, exercises)
		 VALUES (?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.RoutineID, rec.Name, toMillis(rec.Date), rec.DurationMinutes,
		rec.TotalVolume, rec.BodyweightKg, rec.Source, string(exercises))
	if err != nil {
		return fmt.Errorf("inserting history record: %w", err)
	}
	return nil
}

// ListHistory returns the user's records, newest first.
func (s *SQLite) ListHistory(ctx context.Context, userID int, q workout.HistoryQuery) ([]models.HistoryRecord, error) {
	where, args := historyFilter(userID, q, func(int) string { return "?" })
	for i, a := range args {
		if t, ok := a.(time.Time); ok {
			args[i] = toMillis(t)
		}
	}
	query := `SELECT id, user_id, routine_id, name, date, duration_minutes, total_volume,
		bodyweight_kg, source, exercises FROM history_records WHERE ` + where + ` ORDER BY date DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var result []models.HistoryRecord
	for rows.Next() {
		var (
			rec       models.HistoryRecord
			date      int64
			exercises string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.RoutineID, &rec.Name, &date,
			&rec.DurationMinutes, &rec.TotalVolume, &rec.BodyweightKg, &rec.Source, &exercises); err != nil {
			return nil, fmt.Errorf("scanning history record: %w", err)
		}
		rec.Date = fromMillis(date)
		rec.Exercises = decodeExercises([]byte(exercises))
		result = append(result, rec)
	}
	return result, rows.Err()
}

// UpsertBestRecord replaces the snapshot entry for one exercise.
func (s *SQLite) UpsertBestRecord(ctx context.Context, userID int, name string, best models.BestRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO best_records (user_id, exercise_name, weight, reps, date)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, exercise_name) DO UPDATE
			SET weight = excluded.weight, reps = excluded.reps, date = excluded.date
	`, userID, name, best.Weight, best.Reps, toMillis(best.Date))
	if err != nil {
		return fmt.Errorf("upserting best record %q: %w", name, err)
	}
	return nil
}

// ListBestRecords returns the user's snapshot.
func (s *SQLite) ListBestRecords(ctx context.Context, userID int) (models.BestSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT exercise_name, weight, reps, date FROM best_records WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying best records: %w", err)
	}
	defer rows.Close()

	snap := models.BestSnapshot{}
	for rows.Next() {
		var (
			name string
			b    models.BestRecord
			date int64
		)
		if err := rows.Scan(&name, &b.Weight, &b.Reps, &date); err != nil {
			return nil, fmt.Errorf("scanning best record: %w", err)
		}
		b.Date = fromMillis(date)
		snap[name] = b
	}
	return snap, rows.Err()
}

// DeleteAllBestRecords clears the snapshot.
func (s *SQLite) DeleteAllBestRecords(ctx context.Context, userID int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM best_records WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting best records: %w", err)
	}
	return nil
}

const sqliteCatalogColumns = `id, owner_id, name, primary_muscle, secondary_muscles, secondary_factor,
	tracking_mode, includes_bodyweight, rest_seconds, created_at`

func scanSQLiteCatalogItem(row interface{ Scan(...any) error }) (models.CatalogItem, error) {
	var (
		item        models.CatalogItem
		owner       sql.NullInt64
		secondaries string
		factor      sql.NullFloat64
		mode        string
		created     int64
	)
	if err := row.Scan(&item.ID, &owner, &item.Name, &item.PrimaryMuscle, &secondaries, &factor,
		&mode, &item.IncludesBodyweight, &item.RestSeconds, &created); err != nil {
		return item, fmt.Errorf("scanning catalog item: %w", err)
	}
	if owner.Valid {
		id := int(owner.Int64)
		item.OwnerID = &id
	}
	if factor.Valid {
		item.SecondaryFactor = &factor.Float64
	}
	item.TrackingMode = models.TrackingMode(mode)
	item.CreatedAt = fromMillis(created)
	_ = json.Unmarshal([]byte(secondaries), &item.SecondaryMuscles)
	return item, nil
}

// ListCatalog returns library items and the user's own items, by name.
func (s *SQLite) ListCatalog(ctx context.Context, userID int) ([]models.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteCatalogColumns+` FROM catalog_items
		WHERE owner_id IS NULL OR owner_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var result []models.CatalogItem
	for rows.Next() {
		item, err := scanSQLiteCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// GetCatalogItem returns one item by id.
func (s *SQLite) GetCatalogItem(ctx context.Context, id string) (models.CatalogItem, error) {
	item, err := scanSQLiteCatalogItem(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCatalogColumns+` FROM catalog_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return item, fmt.Errorf("catalog item %s: %w", id, ErrNotFound)
	}
	return item, err
}

// CreateCatalogItem inserts an item owned by userID. A zero userID creates
// an unowned library item.
func (s *SQLite) CreateCatalogItem(ctx context.Context, userID int, item models.CatalogItem) (models.CatalogItem, error) {
	item.ID = uuid.NewString()
	item.OwnerID = catalogOwner(userID)
	item.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	secondaries, _ := json.Marshal(item.SecondaryMuscles)
	_, err := s.db.ExecContext(ctx, `INSERT INTO catalog_items (`+sqliteCatalogColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		item.ID, item.OwnerID, item.Name, item.PrimaryMuscle, string(secondaries), item.SecondaryFactor,
		string(item.TrackingMode), item.IncludesBodyweight, item.RestSeconds, toMillis(item.CreatedAt))
	if err != nil {
		return item, fmt.Errorf("inserting catalog item: %w", err)
	}
	return item, nil
}

// UpdateCatalogItem replaces an item's definition after checking ownership.
func (s *SQLite) UpdateCatalogItem(ctx context.Context, userID int, item models.CatalogItem) (models.CatalogItem, error) {
	existing, err := s.GetCatalogItem(ctx, item.ID)
	if err != nil {
		return item, err
	}
	if !models.CanEdit(existing.OwnerID, userID) {
		return item, fmt.Errorf("catalog item %s: %w", item.ID, models.ErrForbidden)
	}
	item.OwnerID, item.CreatedAt = existing.OwnerID, existing.CreatedAt
	secondaries, _ := json.Marshal(item.SecondaryMuscles)
	_, err = s.db.ExecContext(ctx,
		`UPDATE catalog_items SET name = ?, primary_muscle = ?, secondary_muscles = ?,
		 secondary_factor = ?, tracking_mode = ?, includes_bodyweight = ?, rest_seconds = ?
		 WHERE id = ?`,
		item.Name, item.PrimaryMuscle, string(secondaries), item.SecondaryFactor,
		string(item.TrackingMode), item.IncludesBodyweight, item.RestSeconds, item.ID)
	if err != nil {
		return item, fmt.Errorf("updating catalog item %s: %w", item.ID, err)
	}
	return item, nil
}

func scanSQLiteRoutine(row interface{ Scan(...any) error }) (models.Routine, error) {
	var (
		r         models.Routine
		owner     sql.NullInt64
		exercises string
		created   int64
	)
	if err := row.Scan(&r.ID, &owner, &r.Name, &exercises, &created); err != nil {
		return r, fmt.Errorf("scanning routine: %w", err)
	}
	if owner.Valid {
		id := int(owner.Int64)
		r.OwnerID = &id
	}
	r.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(exercises), &r.Exercises); err != nil {
		r.Exercises = nil
	}
	return r, nil
}

// ListRoutines returns library routines and the user's own, by name.
func (s *SQLite) ListRoutines(ctx context.Context, userID int) ([]models.Routine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, name, exercises, created_at FROM routines
		WHERE owner_id IS NULL OR owner_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	var result []models.Routine
	for rows.Next() {
		r, err := scanSQLiteRoutine(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetRoutine returns one routine by id.
func (s *SQLite) GetRoutine(ctx context.Context, id string) (models.Routine, error) {
	r, err := scanSQLiteRoutine(s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, exercises, created_at FROM routines WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("routine %s: %w", id, ErrNotFound)
	}
	return r, err
}

// CreateRoutine inserts a routine owned by userID.
func (s *SQLite) CreateRoutine(ctx context.Context, userID int, r models.Routine) (models.Routine, error) {
	r.ID = uuid.NewString()
	r.OwnerID = &userID
	r.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	exercises, err := json.Marshal(r.Exercises)
	if err != nil {
		return r, fmt.Errorf("encoding routine exercises: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO routines (id, owner_id, name, exercises, created_at) VALUES (?,?,?,?,?)`,
		r.ID, r.OwnerID, r.Name, string(exercises), toMillis(r.CreatedAt))
	if err != nil {
		return r, fmt.Errorf("inserting routine: %w", err)
	}
	return r, nil
}

// InsertImportLog creates a new import log entry and returns its ID.
func (s *SQLite) InsertImportLog(ctx context.Context, log ImportLog) (int64, error) {
	var meta *string
	if log.Metadata != nil {
		m := string(*log.Metadata)
		meta = &m
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO import_logs (user_id, created_at, source, status, records_received,
		 records_inserted, sets_received, duration_ms, error_message, metadata)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		log.UserID, toMillis(time.Now()), log.Source, log.Status, log.RecordsReceived,
		log.RecordsInserted, log.SetsReceived, log.DurationMs, log.ErrorMessage, meta)
	if err != nil {
		return 0, fmt.Errorf("inserting import log: %w", err)
	}
	return res.LastInsertId()
}

// UpdateImportLog updates an existing import log entry.
func (s *SQLite) UpdateImportLog(ctx context.Context, id int64, log ImportLog) error {
	var meta *string
	if log.Metadata != nil {
		m := string(*log.Metadata)
		meta = &m
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE import_logs SET status = ?, records_received = ?, records_inserted = ?,
		 sets_received = ?, duration_ms = ?, error_message = ?, metadata = ? WHERE id = ?`,
		log.Status, log.RecordsReceived, log.RecordsInserted, log.SetsReceived,
		log.DurationMs, log.ErrorMessage, meta, id)
	if err != nil {
		return fmt.Errorf("updating import log %d: %w", id, err)
	}
	return nil
}

// QueryImportLogs returns the most recent import logs for a user.
func (s *SQLite) QueryImportLogs(ctx context.Context, userID, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, created_at, source, status, records_received, records_inserted,
		 sets_received, duration_ms, error_message, metadata
		 FROM import_logs WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying import logs: %w", err)
	}
	defer rows.Close()

	var result []ImportLog
	for rows.Next() {
		var (
			l       ImportLog
			created int64
			meta    sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.UserID, &created, &l.Source, &l.Status,
			&l.RecordsReceived, &l.RecordsInserted, &l.SetsReceived,
			&l.DurationMs, &l.ErrorMessage, &meta); err != nil {
			return nil, fmt.Errorf("scanning import log: %w", err)
		}
		l.CreatedAt = fromMillis(created)
		if meta.Valid {
			raw := json.RawMessage(meta.String)
			l.Metadata = &raw
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
