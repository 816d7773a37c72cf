// Package store provides user storage backends for PawPulse.
//
// This file implements a PostgreSQL-backed UserStore.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/PawPulse/PawPulse/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Get returns the record for id, including survey history in insertion order.
func (s *PostgresStore) Get(id string) (*models.UserRecord, error) {
	if id == "" {
		return nil, models.ErrEmptyUserID
	}

	rec := &models.UserRecord{}
	row := s.db.QueryRow(`SELECT id, display_name, pet_species, pet_name, pet_age, created_at, updated_at FROM users WHERE id = $1`, id)
	if err := scanUserRow(row, rec); err == sql.ErrNoRows {
		return nil, models.ErrUserNotFound
	} else if err != nil {
		slog.Error("PostgresStore Get failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}

	rows, err := s.db.Query(`SELECT id, recorded_at, answers FROM surveys WHERE user_id = $1 ORDER BY position`, id)
	if err != nil {
		slog.Error("PostgresStore Get surveys query failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to load surveys for %s: %w", id, err)
	}
	defer rows.Close()

	surveys, err := scanSurveys(rows)
	if err != nil {
		slog.Error("PostgresStore Get surveys scan failed", "error", err, "id", id)
		return nil, err
	}
	rec.Surveys = surveys
	return rec, nil
}

// Upsert loads (or defaults) the record inside a transaction, applies
// mutate, writes the profile row back, and appends any new surveys.
func (s *PostgresStore) Upsert(id string, mutate func(*models.UserRecord)) error {
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
	row := tx.QueryRow(`SELECT id, display_name, pet_species, pet_name, pet_age, created_at, updated_at FROM users WHERE id = $1 FOR UPDATE`, id)
	switch err := scanUserRow(row, rec); err {
	case nil:
		rows, qerr := tx.Query(`SELECT id, recorded_at, answers FROM surveys WHERE user_id = $1 ORDER BY position`, id)
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
		slog.Error("PostgresStore Upsert load failed", "error", err, "id", id)
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			pet_species = EXCLUDED.pet_species,
			pet_name = EXCLUDED.pet_name,
			pet_age = EXCLUDED.pet_age,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.DisplayName, species, name, age, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore Upsert user write failed", "error", err, "id", id)
		return fmt.Errorf("failed to upsert user %s: %w", id, err)
	}

	// Survey history is append-only; only rows beyond the loaded count are new.
	for i := prior; i < len(rec.Surveys); i++ {
		answers, aerr := encodeAnswers(rec.Surveys[i].Answers)
		if aerr != nil {
			return aerr
		}
		_, err = tx.Exec(`INSERT INTO surveys (id, user_id, position, recorded_at, answers) VALUES ($1, $2, $3, $4, $5)`,
			rec.Surveys[i].ID, id, i, rec.Surveys[i].Timestamp, answers)
		if err != nil {
			slog.Error("PostgresStore Upsert survey insert failed", "error", err, "id", id, "position", i)
			return fmt.Errorf("failed to insert survey for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert for %s: %w", id, err)
	}
	slog.Debug("PostgresStore Upsert succeeded", "id", id, "surveys", len(rec.Surveys))
	return nil
}

// Remove deletes the user and their survey history.
func (s *PostgresStore) Remove(id string) error {
	if id == "" {
		return models.ErrEmptyUserID
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM surveys WHERE user_id = $1`, id); err != nil {
		slog.Error("PostgresStore Remove surveys failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete surveys for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM users WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore Remove user failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remove for %s: %w", id, err)
	}
	slog.Debug("PostgresStore Remove succeeded", "id", id)
	return nil
}

// AllIDs returns every known user id.
func (s *PostgresStore) AllIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM users`)
	if err != nil {
		slog.Error("PostgresStore AllIDs query failed", "error", err)
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

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
