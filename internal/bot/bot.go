// Package bot ties the transport, conversation engine, user store, and
// scheduler together into the PawPulse check-in agent. It owns the thin
// command surface (/start, /survey, /pet, /editpet, /history, /stop)
// and routes everything else into the engine.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PawPulse/PawPulse/internal/flow"
	"github.com/PawPulse/PawPulse/internal/messaging"
	"github.com/PawPulse/PawPulse/internal/models"
	"github.com/PawPulse/PawPulse/internal/scheduler"
	"github.com/PawPulse/PawPulse/internal/store"
)

// HistoryLimit caps how many check-ins /history shows, most recent first.
const HistoryLimit = 10

// Bot dispatches inbound messages and runs the long-lived loops.
type Bot struct {
	store    store.UserStore
	engine   *flow.Engine
	sched    *scheduler.DailyScheduler
	msg      messaging.Service
	schedule string // human-readable fire time for the welcome text
}

// Opts holds configuration options for the Bot.
type Opts struct {
	ScheduleDescription string
}

// Option defines a configuration option for the Bot.
type Option func(*Opts)

// WithScheduleDescription sets the fire-time text shown in /start.
func WithScheduleDescription(desc string) Option {
	return func(o *Opts) {
		o.ScheduleDescription = desc
	}
}

// New creates a Bot over the given components.
func New(st store.UserStore, engine *flow.Engine, sched *scheduler.DailyScheduler, msg messaging.Service, opts ...Option) *Bot {
	cfg := Opts{ScheduleDescription: "19:00"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bot{
		store:    st,
		engine:   engine,
		sched:    sched,
		msg:      msg,
		schedule: cfg.ScheduleDescription,
	}
}

// Run starts the transport, the inbound message loop, and the daily
// scheduler, then blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.msg.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	slog.Info("Bot started")

	go b.processResponses(ctx)
	go b.sched.Run(ctx)

	<-ctx.Done()
	slog.Info("Bot shutting down", "reason", ctx.Err())
	if err := b.msg.Stop(); err != nil {
		slog.Error("Bot failed to stop messaging service", "error", err)
	}
	return nil
}

// processResponses consumes the transport's inbound channel.
func (b *Bot) processResponses(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case response, ok := <-b.msg.Responses():
			if !ok {
				slog.Debug("Bot responses channel closed")
				return
			}
			if err := b.HandleResponse(ctx, response); err != nil {
				slog.Error("Bot failed to handle response", "error", err, "from", response.From)
			}
		}
	}
}

// HandleResponse routes one inbound message: commands to the command
// table, everything else to the conversation engine.
func (b *Bot) HandleResponse(ctx context.Context, response models.Response) error {
	id, err := b.msg.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", response.From, err)
	}

	text := strings.TrimSpace(response.Body)
	if strings.HasPrefix(text, "/") {
		return b.handleCommand(ctx, id, strings.ToLower(strings.Fields(text)[0]), response.Name)
	}

	handled, err := b.engine.HandleMessage(ctx, id, text)
	if err != nil {
		if errors.Is(err, models.ErrNoActiveConversation) {
			slog.Debug("Bot message with no active conversation", "id", id)
			return b.msg.SendMessage(ctx, id, defaultReplyMessage)
		}
		slog.Error("Bot engine error", "error", err, "id", id, "handled", handled)
		if sendErr := b.msg.SendMessage(ctx, id, processingErrorMessage); sendErr != nil {
			slog.Error("Bot failed to send error reply", "error", sendErr, "id", id)
		}
		return err
	}
	return nil
}

// handleCommand runs one slash command for the user.
func (b *Bot) handleCommand(ctx context.Context, id, command, name string) error {
	slog.Info("Bot handling command", "id", id, "command", command)

	switch command {
	case "/start":
		return b.cmdStart(ctx, id, name)
	case "/survey":
		return b.cmdSurvey(ctx, id)
	case "/pet":
		return b.cmdPet(ctx, id)
	case "/editpet":
		return b.engine.StartRegistration(ctx, id)
	case "/history":
		return b.cmdHistory(ctx, id)
	case "/stop":
		return b.cmdStop(ctx, id)
	default:
		slog.Debug("Bot unknown command", "id", id, "command", command)
		return b.msg.SendMessage(ctx, id, defaultReplyMessage)
	}
}

// cmdStart subscribes the user (creating an empty record if this is
// their first contact) and sends the welcome text.
func (b *Bot) cmdStart(ctx context.Context, id, name string) error {
	err := b.store.Upsert(id, func(rec *models.UserRecord) {
		if name != "" {
			rec.DisplayName = name
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register user %s: %w", id, err)
	}
	return b.msg.SendMessage(ctx, id, welcomeMessage(b.schedule))
}

// cmdSurvey starts the check-in now, or registration when the user has
// no pet profile yet.
func (b *Bot) cmdSurvey(ctx context.Context, id string) error {
	rec, err := b.store.Get(id)
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}
	if rec.HasPet() {
		return b.engine.StartSurvey(ctx, id)
	}
	return b.engine.StartRegistration(ctx, id)
}

func (b *Bot) cmdPet(ctx context.Context, id string) error {
	rec, err := b.store.Get(id)
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}
	if !rec.HasPet() {
		return b.msg.SendMessage(ctx, id, petMissingMessage)
	}
	return b.msg.SendMessage(ctx, id, petInfoMessage(rec.Pet))
}

func (b *Bot) cmdHistory(ctx context.Context, id string) error {
	rec, err := b.store.Get(id)
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}
	if rec == nil || len(rec.Surveys) == 0 {
		return b.msg.SendMessage(ctx, id, historyEmptyMessage)
	}
	return b.msg.SendMessage(ctx, id, historyMessage(rec.Surveys, HistoryLimit))
}

// cmdStop unsubscribes the user entirely. History is gone for good: a
// later /start creates a fresh record.
func (b *Bot) cmdStop(ctx context.Context, id string) error {
	b.engine.Reset(id)

	if _, err := b.store.Get(id); errors.Is(err, models.ErrUserNotFound) {
		return b.msg.SendMessage(ctx, id, stopNotSubscribedMessage)
	} else if err != nil {
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}

	if err := b.store.Remove(id); err != nil {
		return fmt.Errorf("failed to unsubscribe user %s: %w", id, err)
	}
	slog.Info("Bot user unsubscribed", "id", id)
	return b.msg.SendMessage(ctx, id, stopConfirmMessage)
}
