package upload

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// StateDB remembers which export files were uploaded, keyed by content hash,
// so unchanged files are not re-sent.
type StateDB struct {
	db *sql.DB
}

// OpenStateDB opens (or creates) the SQLite state database at dir/state.db.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS uploaded_exports (
		hash        TEXT PRIMARY KEY,
		path        TEXT NOT NULL,
		records     INTEGER NOT NULL DEFAULT 0,
		uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state table: %w", err)
	}
	return &StateDB{db: db}, nil
}

// IsUploaded reports whether content with this hash was already sent.
func (s *StateDB) IsUploaded(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploaded_exports WHERE hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking upload state: %w", err)
	}
	return n > 0, nil
}

// MarkUploaded records a successful upload.
func (s *StateDB) MarkUploaded(ctx context.Context, hash, path string, records int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO uploaded_exports (hash, path, records) VALUES (?, ?, ?)`,
		hash, path, records)
	if err != nil {
		return fmt.Errorf("recording upload: %w", err)
	}
	return nil
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
