// Package store provides user storage backends for PawPulse.
//
// This file implements an in-memory store, used in tests and when no
// database DSN is configured. It offers the same atomicity guarantees
// as the SQL backends (mutations are applied to a copy and committed in
// one step) but nothing survives a restart.
package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/PawPulse/PawPulse/internal/models"
)

// InMemoryStore keeps all user records in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]*models.UserRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]*models.UserRecord)}
}

// Get returns a deep copy of the record for id.
func (s *InMemoryStore) Get(id string) (*models.UserRecord, error) {
	if id == "" {
		return nil, models.ErrEmptyUserID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return rec.Clone(), nil
}

// Upsert creates a default record if absent, applies mutate to a copy,
// and commits the copy. A panicking mutator leaves the store unchanged.
func (s *InMemoryStore) Upsert(id string, mutate func(*models.UserRecord)) error {
	if id == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var rec *models.UserRecord
	if existing, ok := s.users[id]; ok {
		rec = existing.Clone()
	} else {
		rec = &models.UserRecord{ID: id, CreatedAt: now}
		slog.Debug("InMemoryStore creating new user record", "id", id)
	}

	mutate(rec)
	rec.ID = id
	rec.UpdatedAt = now
	s.users[id] = rec

	slog.Debug("InMemoryStore Upsert succeeded", "id", id, "surveys", len(rec.Surveys))
	return nil
}

// Remove deletes the record for id.
func (s *InMemoryStore) Remove(id string) error {
	if id == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	slog.Debug("InMemoryStore Remove succeeded", "id", id)
	return nil
}

// AllIDs returns a copied snapshot of the key set.
func (s *InMemoryStore) AllIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
