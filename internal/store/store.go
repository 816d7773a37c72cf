// Package store provides user storage backends for PawPulse.
//
// A UserStore is a durable mapping from user id to UserRecord. Every
// mutating call persists before it returns; backends are responsible
// for making that write an atomic replace.
package store

import (
	"strings"

	"github.com/PawPulse/PawPulse/internal/models"
)

// UserStore is the persistence contract consumed by the engine,
// scheduler, and command handlers.
type UserStore interface {
	// Get returns a snapshot of the record for id, or
	// models.ErrUserNotFound if the user is unknown.
	Get(id string) (*models.UserRecord, error)

	// Upsert creates a default record for id if absent, applies mutate
	// to it, and persists the result before returning. The mutation is
	// discarded entirely if persistence fails.
	Upsert(id string, mutate func(*models.UserRecord)) error

	// Remove deletes the record for id. Removing an unknown id is not
	// an error.
	Remove(id string) error

	// AllIDs returns a snapshot of every known user id. Mutating the
	// store while iterating the returned slice is safe.
	AllIDs() ([]string, error)

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings
// and "sqlite" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
