// Package activity keeps an append-only audit log of review mutations
// in a local SQLite database.
package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roasbeef/planloop/internal/review"
)

// Entry is one audit log row.
type Entry struct {
	ID           int64     `json:"id"`
	ReviewID     string    `json:"reviewId"`
	ActivityType string    `json:"activityType"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store records and lists audit entries.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Compile-time check that Store satisfies the engine's recorder
// contract.
var _ review.ActivityRecorder = (*Store)(nil)

// Open opens (creating if needed) the activity database at dbPath and
// applies any pending migrations.
func Open(dbPath string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("subsys", "activity")

	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one audit entry.
func (s *Store) Record(ctx context.Context, reviewID, activityType,
	description string,
) error {

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities
		   (review_id, activity_type, description, created_at)
		 VALUES (?, ?, ?, ?)`,
		reviewID, activityType, description, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// ListByReview returns the audit entries of one review in chronological
// order.
func (s *Store) ListByReview(ctx context.Context,
	reviewID string,
) ([]Entry, error) {

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, review_id, activity_type, description, created_at
		   FROM activities
		  WHERE review_id = ?
		  ORDER BY created_at ASC, id ASC`,
		reviewID,
	)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		err := rows.Scan(
			&e.ID, &e.ReviewID, &e.ActivityType, &e.Description,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	return entries, nil
}

// openSQLite opens a SQLite database connection with WAL mode enabled
// and appropriate pragmas for performance and reliability.
func openSQLite(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer, multiple readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return db, nil
}

// migrationLogger wraps slog.Logger to implement the migrate.Logger
// interface.
type migrationLogger struct {
	log *slog.Logger
}

// Printf implements the migrate.Logger interface.
func (m *migrationLogger) Printf(format string, v ...any) {
	format = strings.TrimRight(format, "\n")
	m.log.Info(fmt.Sprintf(format, v...))
}

// Verbose returns true when verbose logging is enabled.
func (m *migrationLogger) Verbose() bool {
	return false
}

// applyMigrations brings the activity schema up to the latest version
// using the embedded migration files.
func applyMigrations(db *sql.DB, log *slog.Logger) error {
	driver, err := migratesqlite.WithInstance(
		db, &migratesqlite.Config{},
	)
	if err != nil {
		return err
	}

	source, err := httpfs.New(http.FS(sqlSchemas), "migrations")
	if err != nil {
		return err
	}

	sqlMigrate, err := migrate.NewWithInstance(
		"migrations", source, "activity", driver,
	)
	if err != nil {
		return err
	}
	sqlMigrate.Log = &migrationLogger{log}

	if err := sqlMigrate.Up(); err != nil &&
		!errors.Is(err, migrate.ErrNoChange) {

		return err
	}

	return nil
}
