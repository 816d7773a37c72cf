// Package scheduler provides the daily survey trigger for PawPulse.
//
// A DailyScheduler owns the wall-clock recurrence: it computes the next
// occurrence of the configured time-of-day in a fixed zone, sleeps
// until then, and fires the survey for every known user. Nothing about
// the last run is persisted; every process start recomputes the next
// occurrence from the current time.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/PawPulse/PawPulse/internal/models"
	"github.com/PawPulse/PawPulse/internal/store"
)

// DefaultSendDelay is the pause between users during a fire-all pass,
// smoothing the outbound send rate.
const DefaultSendDelay = 1 * time.Second

// SurveyStarter is the engine surface the scheduler needs: begin a
// survey for a registered user, or registration for a new one.
type SurveyStarter interface {
	StartSurvey(ctx context.Context, id string) error
	StartRegistration(ctx context.Context, id string) error
}

// DailyScheduler fires the daily check-in at a fixed local time.
type DailyScheduler struct {
	store     store.UserStore
	starter   SurveyStarter
	hour      int
	minute    int
	loc       *time.Location
	sendDelay time.Duration
}

// Opts holds configuration options for the DailyScheduler.
type Opts struct {
	SendDelay time.Duration
}

// Option defines a configuration option for the DailyScheduler.
type Option func(*Opts)

// WithSendDelay overrides the pause between users during fire-all.
func WithSendDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.SendDelay = d
	}
}

// NewDailyScheduler creates a scheduler firing at hour:minute in loc.
func NewDailyScheduler(st store.UserStore, starter SurveyStarter, hour, minute int, loc *time.Location, opts ...Option) *DailyScheduler {
	cfg := Opts{SendDelay: DefaultSendDelay}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating DailyScheduler", "hour", hour, "minute", minute, "location", loc.String(), "send_delay", cfg.SendDelay)
	return &DailyScheduler{
		store:     st,
		starter:   starter,
		hour:      hour,
		minute:    minute,
		loc:       loc,
		sendDelay: cfg.SendDelay,
	}
}

// NextFire returns the next occurrence of the configured time-of-day
// strictly after now (or exactly now if now is before today's target).
// Rolling past the end of a month or year is handled by AddDate.
func (d *DailyScheduler) NextFire(now time.Time) time.Time {
	local := now.In(d.loc)
	target := time.Date(local.Year(), local.Month(), local.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !local.Before(target) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// Run loops forever, sleeping until the next fire time and then
// triggering the survey for every known user. The sleep recomputes from
// the wall clock on every iteration so drift never accumulates, and the
// loop stops cleanly when ctx is cancelled.
func (d *DailyScheduler) Run(ctx context.Context) {
	slog.Info("DailyScheduler starting", "hour", d.hour, "minute", d.minute, "location", d.loc.String())
	for {
		now := time.Now()
		target := d.NextFire(now)
		wait := target.Sub(now)
		slog.Info("DailyScheduler sleeping until next fire", "target", target, "wait", wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("DailyScheduler stopped", "reason", ctx.Err())
			return
		case <-timer.C:
		}

		d.FireAll(ctx)
	}
}

// FireAll snapshots the known user ids and starts a survey (or
// registration, for users without a pet profile) for each. One user's
// failure never blocks the rest of the pass.
func (d *DailyScheduler) FireAll(ctx context.Context) {
	ids, err := d.store.AllIDs()
	if err != nil {
		slog.Error("DailyScheduler failed to list users", "error", err)
		return
	}
	slog.Info("DailyScheduler firing daily survey", "users", len(ids))

	for i, id := range ids {
		if err := d.fireOne(ctx, id); err != nil {
			slog.Error("DailyScheduler failed to start survey for user", "error", err, "id", id)
		}
		if i < len(ids)-1 {
			select {
			case <-ctx.Done():
				slog.Info("DailyScheduler fire-all interrupted", "reason", ctx.Err(), "remaining", len(ids)-i-1)
				return
			case <-time.After(d.sendDelay):
			}
		}
	}
	slog.Info("DailyScheduler fire-all complete", "users", len(ids))
}

// fireOne routes a single user to survey or registration.
func (d *DailyScheduler) fireOne(ctx context.Context, id string) error {
	rec, err := d.store.Get(id)
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		return err
	}
	if rec.HasPet() {
		return d.starter.StartSurvey(ctx, id)
	}
	return d.starter.StartRegistration(ctx, id)
}
