package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PawPulse/PawPulse/internal/models"
	"github.com/PawPulse/PawPulse/internal/store"
	"github.com/PawPulse/PawPulse/internal/util"
)

// Messenger is the outbound half of the chat transport consumed by the engine.
type Messenger interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Engine walks each user through registration and the daily survey.
// Durable results go through the UserStore; conversation progress lives
// in per-user sessions owned exclusively by the engine.
type Engine struct {
	store     store.UserStore
	messenger Messenger
	questions []string
	loc       *time.Location
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// EngineOpts holds configuration options for the Engine.
type EngineOpts struct {
	Questions []string
	Location  *time.Location
	Now       func() time.Time
}

// EngineOption defines a configuration option for the Engine.
type EngineOption func(*EngineOpts)

// WithQuestions overrides the default survey question list.
func WithQuestions(questions []string) EngineOption {
	return func(o *EngineOpts) {
		o.Questions = questions
	}
}

// WithLocation sets the time zone used to timestamp survey records.
func WithLocation(loc *time.Location) EngineOption {
	return func(o *EngineOpts) {
		o.Location = loc
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(o *EngineOpts) {
		o.Now = now
	}
}

// NewEngine creates an Engine with the given store and transport.
func NewEngine(st store.UserStore, messenger Messenger, opts ...EngineOption) *Engine {
	cfg := EngineOpts{
		Questions: DefaultQuestions,
		Location:  time.UTC,
		Now:       time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Questions) == 0 {
		cfg.Questions = DefaultQuestions
	}
	slog.Debug("Creating Engine", "questions", len(cfg.Questions), "location", cfg.Location.String())
	return &Engine{
		store:     st,
		messenger: messenger,
		questions: cfg.Questions,
		loc:       cfg.Location,
		now:       cfg.Now,
		sessions:  make(map[string]*session),
	}
}

// Questions returns the configured survey question list.
func (e *Engine) Questions() []string {
	return append([]string(nil), e.questions...)
}

// session returns the session for id, creating it Idle if absent.
func (e *Engine) session(id string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		s = &session{}
		e.sessions[id] = s
	}
	return s
}

// StartRegistration begins the pet registration flow for id, discarding
// any in-progress conversation (last writer wins).
func (e *Engine) StartRegistration(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrEmptyUserID
	}
	s := e.session(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		slog.Warn("Engine StartRegistration discarding in-progress conversation", "id", id, "state", s.state)
	}
	s.resetLocked()
	s.state = StateAwaitingPetSpecies

	if err := e.messenger.SendMessage(ctx, id, registrationSpeciesPrompt); err != nil {
		slog.Error("Engine StartRegistration send failed", "error", err, "id", id)
		return fmt.Errorf("failed to send registration prompt to %s: %w", id, err)
	}
	slog.Info("Engine registration started", "id", id)
	return nil
}

// StartSurvey begins the daily survey for id. The user must already
// have a pet profile; callers route profile-less users to
// StartRegistration instead. Any in-progress conversation is discarded.
func (e *Engine) StartSurvey(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrEmptyUserID
	}
	rec, err := e.store.Get(id)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return fmt.Errorf("cannot survey %s: %w", id, models.ErrNoPetProfile)
		}
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}
	if !rec.HasPet() {
		return fmt.Errorf("cannot survey %s: %w", id, models.ErrNoPetProfile)
	}

	s := e.session(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		slog.Warn("Engine StartSurvey discarding in-progress conversation", "id", id, "state", s.state)
	}
	return e.beginSurveyLocked(ctx, id, s)
}

// beginSurveyLocked resets the session to the first survey question and
// sends it. Caller holds s.mu.
func (e *Engine) beginSurveyLocked(ctx context.Context, id string, s *session) error {
	s.resetLocked()
	s.state = StateAwaitingAnswer
	s.questionIndex = 0

	if err := e.messenger.SendMessage(ctx, id, surveyStartMessage(len(e.questions), e.questions[0])); err != nil {
		slog.Error("Engine survey start send failed", "error", err, "id", id)
		return fmt.Errorf("failed to send survey question to %s: %w", id, err)
	}
	slog.Info("Engine survey started", "id", id, "questions", len(e.questions))
	return nil
}

// Reset discards any in-progress conversation for id.
func (e *Engine) Reset(id string) {
	s := e.session(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		slog.Debug("Engine Reset clearing conversation", "id", id, "state", s.state)
	}
	s.resetLocked()
}

// HandleMessage advances the conversation for id with the user's text.
// It returns false with models.ErrNoActiveConversation when no flow is
// active. A persistence failure leaves the session exactly as it was,
// so the user's next message retries the same step.
func (e *Engine) HandleMessage(ctx context.Context, id, text string) (bool, error) {
	if id == "" {
		return false, models.ErrEmptyUserID
	}
	s := e.session(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAwaitingPetSpecies:
		s.petSpecies = text
		s.state = StateAwaitingPetName
		if err := e.messenger.SendMessage(ctx, id, registrationNamePrompt); err != nil {
			slog.Error("Engine registration prompt send failed", "error", err, "id", id, "state", s.state)
			return true, fmt.Errorf("failed to send registration prompt to %s: %w", id, err)
		}
		return true, nil

	case StateAwaitingPetName:
		s.petName = text
		s.state = StateAwaitingPetAge
		if err := e.messenger.SendMessage(ctx, id, registrationAgePrompt); err != nil {
			slog.Error("Engine registration prompt send failed", "error", err, "id", id, "state", s.state)
			return true, fmt.Errorf("failed to send registration prompt to %s: %w", id, err)
		}
		return true, nil

	case StateAwaitingPetAge:
		return true, e.completeRegistrationLocked(ctx, id, s, text)

	case StateAwaitingAnswer:
		return true, e.recordAnswerLocked(ctx, id, s, text)

	default:
		return false, fmt.Errorf("message from %s ignored: %w", id, models.ErrNoActiveConversation)
	}
}

// completeRegistrationLocked persists the finished pet profile and
// chains straight into the first survey. Caller holds s.mu.
func (e *Engine) completeRegistrationLocked(ctx context.Context, id string, s *session, age string) error {
	pet := models.PetInfo{Species: s.petSpecies, Name: s.petName, Age: age}

	// Persist before advancing; a failed write keeps the user on the
	// age question so their next message retries it.
	if err := e.store.Upsert(id, func(rec *models.UserRecord) {
		rec.Pet = &pet
	}); err != nil {
		slog.Error("Engine registration persist failed", "error", err, "id", id)
		return fmt.Errorf("failed to save pet profile for %s: %w", id, err)
	}
	slog.Info("Engine pet profile saved", "id", id, "species", pet.Species)

	if err := e.messenger.SendMessage(ctx, id, registrationCompleteMessage(pet.Species, pet.Name, pet.Age)); err != nil {
		// The profile is durable; a lost confirmation should not stall the chain.
		slog.Error("Engine registration confirmation send failed", "error", err, "id", id)
	}
	return e.beginSurveyLocked(ctx, id, s)
}

// recordAnswerLocked stores one survey answer and either asks the next
// question or finalizes the record. Caller holds s.mu.
func (e *Engine) recordAnswerLocked(ctx context.Context, id string, s *session, text string) error {
	answers := append(append([]string(nil), s.answers...), text)

	if len(answers) < len(e.questions) {
		s.answers = answers
		s.questionIndex = len(answers)
		if err := e.messenger.SendMessage(ctx, id, surveyQuestionMessage(s.questionIndex, len(e.questions), e.questions[s.questionIndex])); err != nil {
			slog.Error("Engine survey question send failed", "error", err, "id", id, "question", s.questionIndex)
			return fmt.Errorf("failed to send survey question to %s: %w", id, err)
		}
		return nil
	}

	record := models.SurveyRecord{
		ID:        util.GenerateSurveyID(),
		Timestamp: e.now().In(e.loc),
		Answers:   answers,
	}
	if err := e.store.Upsert(id, func(rec *models.UserRecord) {
		rec.Surveys = append(rec.Surveys, record)
	}); err != nil {
		slog.Error("Engine survey persist failed", "error", err, "id", id)
		return fmt.Errorf("failed to save survey for %s: %w", id, err)
	}
	s.resetLocked()
	slog.Info("Engine survey completed", "id", id, "answers", len(record.Answers))

	if err := e.messenger.SendMessage(ctx, id, surveyCompleteMessage); err != nil {
		// The record is durable; the thank-you message is best effort.
		slog.Error("Engine survey completion send failed", "error", err, "id", id)
	}
	return nil
}
