// Package store provides user storage backends for PawPulse.
//
// This file implements a SQLite-backed UserStore. Every mutating call
// runs in a single transaction, so a crash never leaves a half-written
// user record.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/PawPulse/PawPulse/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the record for id, including survey history in insertion order.
func (s *SQLiteStore) Get(id string) (*models.UserRecord, error) {
	if id == "" {
		return nil, models.ErrEmptyUserID
	}

	rec := &models.UserRecord{}
	row := s.db.QueryRow(`SELECT id, display_name, pet_species, pet_name, pet_age, created_at, updated_at FROM users WHERE id = ?`, id)
	if err := scanUserRow(row, rec); err == sql.ErrNoRows {
		return nil, models.ErrUserNotFound
	} else if err != nil {
		slog.Error("SQLiteStore Get failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}

	rows, err := s.db.Query(`SELECT id, recorded_at, answers FROM surveys WHERE user_id = ? ORDER BY position`, id)
	if err != nil {
		slog.Error("SQLiteStore Get surveys query failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to load surveys for %s: %w", id, err)
	}
	defer rows.Close()

	surveys, err := scanSurveys(rows)
	if err != nil {
		slog.Error("SQLiteStore Get surveys scan failed", "error", err, "id", id)
		return nil, err
	}
	rec.Surveys = surveys
	return rec, nil
}

// Upsert loads (or defaults) the record inside a transaction, applies
// mutate, writes the profile row back, and appends any new surveys.
func (s *SQLiteStore) Upsert(id string, mutate func(*models.UserRecord)) error {
	if id == "" {
		return models.ErrEmptyUserID
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	rec := &models.UserRecord{}
	row := tx.QueryRow(`SELECT id, display_name, pet_species, pet_name, pet_age, created_at, updated_at FROM users WHERE id = ?`, id)
	switch err := scanUserRow(row, rec); err {
	case nil:
		rows, qerr := tx.Query(`SELECT id, recorded_at, answers FROM surveys WHERE user_id = ? ORDER BY position`, id)
		if qerr != nil {
			return fmt.Errorf("failed to load surveys for %s: %w", id, qerr)
		}
		rec.Surveys, qerr = scanSurveys(rows)
		rows.Close()
		if qerr != nil {
			return qerr
		}
	case sql.ErrNoRows:
		rec = &models.UserRecord{ID: id, CreatedAt: now}
	default:
		slog.Error("SQLiteStore Upsert load failed", "error", err, "id", id)
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}

	prior := len(rec.Surveys)
	mutate(rec)
	rec.ID = id
	rec.UpdatedAt = now
	ensureSurveyIDs(rec, now)

	var species, name, age interface{}
	if rec.Pet != nil {
		species, name, age = rec.Pet.Species, rec.Pet.Name, nilIfEmpty(rec.Pet.Age)
	}
	_, err = tx.Exec(`
		INSERT INTO users (id, display_name, pet_species, pet_name, pet_age, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			pet_species = excluded.pet_species,
			pet_name = excluded.pet_name,
			pet_age = excluded.pet_age,
			updated_at = excluded.updated_at`,
		rec.ID, rec.DisplayName, species, name, age, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore Upsert user write failed", "error", err, "id", id)
		return fmt.Errorf("failed to upsert user %s: %w", id, err)
	}

	// Survey history is append-only; only rows beyond the loaded count are new.
	for i := prior; i < len(rec.Surveys); i++ {
		answers, aerr := encodeAnswers(rec.Surveys[i].Answers)
		if aerr != nil {
			return aerr
		}
		_, err = tx.Exec(`INSERT INTO surveys (id, user_id, position, recorded_at, answers) VALUES (?, ?, ?, ?, ?)`,
			rec.Surveys[i].ID, id, i, rec.Surveys[i].Timestamp, answers)
		if err != nil {
			slog.Error("SQLiteStore Upsert survey insert failed", "error", err, "id", id, "position", i)
			return fmt.Errorf("failed to insert survey for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert for %s: %w", id, err)
	}
	slog.Debug("SQLiteStore Upsert succeeded", "id", id, "surveys", len(rec.Surveys))
	return nil
}

// Remove deletes the user and their survey history.
func (s *SQLiteStore) Remove(id string) error {
	if id == "" {
		return models.ErrEmptyUserID
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM surveys WHERE user_id = ?`, id); err != nil {
		slog.Error("SQLiteStore Remove surveys failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete surveys for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM users WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore Remove user failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remove for %s: %w", id, err)
	}
	slog.Debug("SQLiteStore Remove succeeded", "id", id)
	return nil
}

// AllIDs returns every known user id.
func (s *SQLiteStore) AllIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM users`)
	if err != nil {
		slog.Error("SQLiteStore AllIDs query failed", "error", err)
		return nil, fmt.Errorf("failed to query user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user ids: %w", err)
	}
	return ids, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
