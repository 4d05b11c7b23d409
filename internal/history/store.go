package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"deskrec/internal/config"
)

// Store manages recording history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database and applies
// migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.History.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Paths.LogDir, "history.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin inserts a row for a session that just started. The record's ID
// and timestamps are filled in on return; the outcome is left as
// recording until Finish updates it.
func (s *Store) Begin(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	if rec.Outcome == "" {
		rec.Outcome = OutcomeRecording
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO recordings (
            session_id, output_path, audio_path, audio_policy, outcome, detail,
            started_at, duration_ms, video_bytes, audio_bytes, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.OutputPath,
		nullableString(rec.AudioPath),
		rec.AudioPolicy,
		string(rec.Outcome),
		nullableString(rec.Detail),
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.DurationMs,
		rec.VideoBytes,
		rec.AudioBytes,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// Finish persists the final shape of a session row.
func (s *Store) Finish(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	rec.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE recordings
         SET output_path = ?, audio_path = ?, outcome = ?, detail = ?,
             ended_at = ?, duration_ms = ?, video_bytes = ?, audio_bytes = ?,
             updated_at = ?
         WHERE id = ?`,
		rec.OutputPath,
		nullableString(rec.AudioPath),
		string(rec.Outcome),
		nullableString(rec.Detail),
		nullableTime(rec.EndedAt),
		rec.DurationMs,
		rec.VideoBytes,
		rec.AudioBytes,
		rec.UpdatedAt.Format(time.RFC3339Nano),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	return nil
}

// GetByID fetches one history row, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit rows, newest first. A non-positive limit
// returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM recordings ORDER BY started_at DESC, id DESC`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes everything but the newest keep rows and returns the
// number removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM recordings WHERE id NOT IN (
            SELECT id FROM recordings ORDER BY started_at DESC, id DESC LIMIT ?
        )`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune recordings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
