// Package history keeps a SQLite log of finished downloads per user.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ytget/yt-saver-bot/internal/model"
)

// Record is a finished download.
type Record struct {
	ID          string
	UserID      int64
	URL         string
	Title       string
	Platform    string
	Quality     string
	Status      string
	SizeBytes   int64
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
}

// Store manages the SQLite history database
type Store struct {
	db *sql.DB
}

// Open creates and initializes the history database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS download_history (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			url TEXT NOT NULL,
			title TEXT,
			platform TEXT,
			quality TEXT,
			status TEXT NOT NULL,
			size_bytes INTEGER DEFAULT 0,
			started_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_history_user ON download_history(user_id, completed_at DESC);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordTask saves a finished task. Unfinished tasks are ignored.
func (s *Store) RecordTask(ctx context.Context, task *model.DownloadTask) error {
	if !task.Status.IsFinished() {
		return nil
	}
	completed := task.FinishedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO download_history
		(id, user_id, url, title, platform, quality, status, size_bytes, started_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.UserID,
		task.URL,
		task.GetDisplayTitle(),
		task.Platform,
		string(task.Quality),
		task.Status.String(),
		task.FileSize,
		task.StartedAt.Unix(),
		completed.Unix(),
		task.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to record task %s: %w", task.ID, err)
	}
	return nil
}

// Recent returns the newest records of userID, newest first.
func (s *Store) Recent(ctx context.Context, userID int64, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, url, title, platform, quality, status, size_bytes, started_at, completed_at, error_message
		FROM download_history
		WHERE user_id = ?
		ORDER BY completed_at DESC, rowid DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		var title, platform, quality, errorMsg sql.NullString
		var startedAt, completedAt int64

		if err := rows.Scan(&r.ID, &r.UserID, &r.URL, &title, &platform, &quality, &r.Status,
			&r.SizeBytes, &startedAt, &completedAt, &errorMsg); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		r.Title, r.Platform, r.Quality, r.Error = title.String, platform.String, quality.String, errorMsg.String
		r.StartedAt = time.Unix(startedAt, 0)
		r.CompletedAt = time.Unix(completedAt, 0)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats returns totals across all users
func (s *Store) Stats(ctx context.Context) (completed int, failed int, totalBytes int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COALESCE(SUM(CASE WHEN status = ? THEN size_bytes ELSE 0 END), 0)
		FROM download_history
	`, model.TaskStatusCompleted.String(), model.TaskStatusError.String(), model.TaskStatusCompleted.String()).
		Scan(&completed, &failed, &totalBytes)
	return
}
