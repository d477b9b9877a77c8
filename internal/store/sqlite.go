// Package store keeps the attempt history in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: each ":memory:" connection is its own database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("history store opened", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// RecordAttempt inserts a new Attempt and sets its ID
func (s *Store) RecordAttempt(a *Attempt) error {
	const query = `
		INSERT INTO attempts (
			operation, reference, mirror_id, target_url, success,
			exit_code, start_time, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		a.Operation, a.Reference, a.MirrorID, a.TargetURL, a.Success,
		a.ExitCode, a.StartTime.UTC(), a.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	a.ID = id
	return nil
}

// ListAttempts returns the most recent attempts first. A limit of 0
// returns all of them.
func (s *Store) ListAttempts(limit int) ([]Attempt, error) {
	query := `
		SELECT id, operation, reference, mirror_id, target_url, success,
		       exit_code, start_time, duration_ms
		FROM attempts
		ORDER BY id DESC
	`
	var args []interface{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		a := Attempt{}
		err := rows.Scan(
			&a.ID, &a.Operation, &a.Reference, &a.MirrorID, &a.TargetURL,
			&a.Success, &a.ExitCode, &a.StartTime, &a.DurationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}

	return attempts, nil
}

// MirrorStats aggregates attempts per mirror, most successful first.
func (s *Store) MirrorStats() ([]MirrorStat, error) {
	const query = `
		SELECT mirror_id,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(CASE WHEN success THEN duration_ms END), 0),
		       COALESCE(MAX(CASE WHEN success THEN start_time END), '')
		FROM attempts
		GROUP BY mirror_id
		ORDER BY 3 DESC, 4 ASC, mirror_id ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query mirror stats: %w", err)
	}
	defer rows.Close()

	var stats []MirrorStat
	for rows.Next() {
		var st MirrorStat
		var last string
		if err := rows.Scan(&st.MirrorID, &st.Attempts, &st.Successes, &st.AvgDurationMS, &last); err != nil {
			return nil, fmt.Errorf("failed to scan mirror stat: %w", err)
		}
		st.LastSuccess = parseTime(last)
		stats = append(stats, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mirror stats: %w", err)
	}

	return stats, nil
}

// parseTime reads a timestamp produced by an aggregate, which the driver
// returns as text rather than a typed DATETIME.
func parseTime(v string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
