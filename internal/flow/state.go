// Package flow implements the per-user conversation state machine that
// drives pet registration and the daily check-in survey.
package flow

import "sync"

// State identifies which prompt a user's next message answers.
type State string

const (
	// StateIdle means no flow is active; ordinary text is not consumed.
	StateIdle State = ""
	// StateAwaitingPetSpecies means registration question 1 was sent.
	StateAwaitingPetSpecies State = "AWAITING_PET_SPECIES"
	// StateAwaitingPetName means registration question 2 was sent.
	StateAwaitingPetName State = "AWAITING_PET_NAME"
	// StateAwaitingPetAge means registration question 3 was sent.
	StateAwaitingPetAge State = "AWAITING_PET_AGE"
	// StateAwaitingAnswer means survey question questionIndex was sent.
	StateAwaitingAnswer State = "AWAITING_ANSWER"
)

// session is the transient conversation state for one user. It lives in
// memory only; durable data goes through the UserStore. The mutex
// serializes all mutations for the user so a scheduled survey start can
// never interleave with an in-flight answer.
type session struct {
	mu            sync.Mutex
	state         State
	petSpecies    string
	petName       string
	questionIndex int
	answers       []string
}

// resetLocked clears the session back to Idle. Caller holds s.mu.
func (s *session) resetLocked() {
	s.state = StateIdle
	s.petSpecies = ""
	s.petName = ""
	s.questionIndex = 0
	s.answers = nil
}
