// Package models defines the core data structures for PawPulse.
//
// It includes the persisted user record with its pet profile and survey
// history, plus the inbound message type shared across modules.
package models

import (
	"errors"
	"time"
)

// Error variables for better error handling and testability
var (
	// ErrUserNotFound indicates the requested user id is not in the store.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoPetProfile indicates a survey was requested for a user without a registered pet.
	ErrNoPetProfile = errors.New("user has no pet profile")
	// ErrNoActiveConversation indicates a message arrived while no flow was active.
	ErrNoActiveConversation = errors.New("no active conversation")
	// ErrEmptyUserID indicates a caller passed an empty user identifier.
	ErrEmptyUserID = errors.New("user id cannot be empty")
)

// PetInfo holds the registered pet profile for a user.
// Age is free text ("3", "about 2 years") and is never validated.
type PetInfo struct {
	Species string `json:"species"`
	Name    string `json:"name"`
	Age     string `json:"age"`
}

// SurveyRecord is one completed daily check-in. It is immutable once
// created: the answers are stored in the order the questions were asked
// and the record is only ever appended to a user's history.
type SurveyRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Answers   []string  `json:"answers"`
}

// UserRecord is the durable per-user state: profile plus append-only
// survey history. Surveys are kept in insertion (chronological) order.
type UserRecord struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name,omitempty"`
	Pet         *PetInfo       `json:"pet,omitempty"`
	Surveys     []SurveyRecord `json:"surveys"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HasPet reports whether the user completed pet registration.
func (u *UserRecord) HasPet() bool {
	return u != nil && u.Pet != nil
}

// Clone returns a deep copy of the record so callers can hand out
// snapshots without exposing store-owned memory.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	c := *u
	if u.Pet != nil {
		pet := *u.Pet
		c.Pet = &pet
	}
	if u.Surveys != nil {
		c.Surveys = make([]SurveyRecord, len(u.Surveys))
		for i, s := range u.Surveys {
			c.Surveys[i] = s
			c.Surveys[i].Answers = append([]string(nil), s.Answers...)
		}
	}
	return &c
}

// Response represents an incoming message from a user, already decoded
// by the transport. Name is the sender's profile name when the
// transport provides one.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Name string `json:"name,omitempty"`
	Time int64  `json:"time"`
}
