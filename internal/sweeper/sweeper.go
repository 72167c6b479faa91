// Package sweeper implements the periodic due-item scan that feeds reminder
// and callback notifications into the dispatcher.
//
// Each tick is single-flight: a busy guard skips the tick when the previous
// sweep is still running. Every state change the sweep makes is either a
// conditional write (reminder pending→triggered) or an idempotency-keyed
// dispatch (callbacks), so running redundant sweeper processes is safe
// without leader election — at-least-once scheduling with at-most-once side
// effects.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/realtime"
	"github.com/leadops/go-leads-backend/internal/repo"
	"github.com/leadops/go-leads-backend/internal/services"
)

var (
	sweepTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_ticks_total",
			Help: "Sweep ticks by outcome (run, skipped).",
		},
		[]string{"outcome"},
	)
	sweepItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_items_total",
			Help: "Due items processed by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(sweepTicks, sweepItems)
}

// Dispatcher is the slice of the notification service the sweeper drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, in services.DispatchInput) (*domain.Notification, error)
}

// Sweeper periodically detects due reminders and callbacks and dispatches
// their notifications.
type Sweeper struct {
	// DB is the GORM handle used for due-item reads and transitions.
	DB *gorm.DB
	// Notifier receives the per-item dispatches.
	Notifier Dispatcher
	// Interval between ticks.
	Interval time.Duration

	// now is a clock seam for tests.
	now func() time.Time

	busy atomic.Bool
	lg   zerolog.Logger
}

// New constructs a Sweeper. Interval values <= 0 default to one minute.
func New(db *gorm.DB, notifier Dispatcher, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		DB:       db,
		Notifier: notifier,
		Interval: interval,
		now:      time.Now,
		lg:       log.With().Str("component", "sweeper").Logger(),
	}
}

// Run ticks until ctx is canceled. Call it from its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	s.lg.Info().Dur("interval", s.Interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.lg.Info().Msg("sweeper stopped")
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep unless the previous one is still in flight, in which
// case it is skipped rather than run concurrently.
func (s *Sweeper) Tick(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		sweepTicks.WithLabelValues("skipped").Inc()
		s.lg.Debug().Msg("previous sweep still running, tick skipped")
		return
	}
	defer s.busy.Store(false)
	sweepTicks.WithLabelValues("run").Inc()

	now := s.now().UTC()
	s.sweepReminders(ctx, now)
	s.sweepCallbacks(ctx, now)
}

// sweepReminders triggers every pending reminder with dueAt <= now. The
// pending→triggered flip is a conditional write: losing it (another sweep got
// there first) skips the item; any other error is logged and the sweep moves
// on — the item stays eligible for the next tick.
func (s *Sweeper) sweepReminders(ctx context.Context, now time.Time) {
	items, err := repo.ListDueReminders(ctx, s.DB, now)
	if err != nil {
		s.lg.Error().Err(err).Msg("reminder scan failed")
		return
	}
	for _, item := range items {
		if err := repo.TriggerDueItem(ctx, s.DB, item.ID, now); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				sweepItems.WithLabelValues(item.Kind, "lost_race").Inc()
			} else {
				sweepItems.WithLabelValues(item.Kind, "error").Inc()
				s.lg.Error().Err(err).Str("due_item_id", item.ID).Msg("reminder trigger failed")
			}
			continue
		}
		_, err := s.Notifier.Dispatch(ctx, services.DispatchInput{
			RecipientID:    item.OwnerID,
			Kind:           realtime.EventReminderTriggered,
			Title:          "Reminder due",
			Message:        item.Note,
			Priority:       "high",
			Payload:        duePayload(item, now),
			IdempotencyKey: reminderKey(item),
		})
		if err != nil {
			// The status already flipped; the idempotency key makes a later
			// manual redrive safe. Log and continue.
			sweepItems.WithLabelValues(item.Kind, "dispatch_error").Inc()
			s.lg.Error().Err(err).Str("due_item_id", item.ID).Msg("reminder dispatch failed")
			continue
		}
		sweepItems.WithLabelValues(item.Kind, "triggered").Inc()
	}
}

// sweepCallbacks dispatches a notification for every uncompleted callback
// with dueAt <= now. Callbacks carry no triggered status; the dispatcher's
// (recipient, key) dedupe suppresses re-notification for an unchanged due
// time, while a reschedule mints a new key and legitimately notifies again.
func (s *Sweeper) sweepCallbacks(ctx context.Context, now time.Time) {
	items, err := repo.ListDueCallbacks(ctx, s.DB, now)
	if err != nil {
		s.lg.Error().Err(err).Msg("callback scan failed")
		return
	}
	for _, item := range items {
		_, err := s.Notifier.Dispatch(ctx, services.DispatchInput{
			RecipientID:    item.OwnerID,
			Kind:           realtime.EventCallbackReminder,
			Title:          "Callback due",
			Message:        item.Note,
			Priority:       "high",
			Payload:        duePayload(item, now),
			IdempotencyKey: callbackKey(item),
		})
		if err != nil {
			sweepItems.WithLabelValues(item.Kind, "dispatch_error").Inc()
			s.lg.Error().Err(err).Str("due_item_id", item.ID).Msg("callback dispatch failed")
			continue
		}
		sweepItems.WithLabelValues(item.Kind, "notified").Inc()
	}
}

// reminderKey dedupes a reminder trigger per (item, dueAt). The status CAS
// already guarantees one trigger per pending epoch; the key additionally
// protects the dispatch against redelivery after a partial failure, and a
// reschedule to a new dueAt mints a new key so the next epoch notifies again.
func reminderKey(item domain.DueItem) string {
	return fmt.Sprintf("rem:%s:%d", item.ID, item.DueAt.UTC().Unix())
}

// callbackKey dedupes a callback notification per (item, dueAt) pair.
func callbackKey(item domain.DueItem) string {
	return fmt.Sprintf("cb:%s:%d", item.ID, item.DueAt.UTC().Unix())
}

// DuePayload is the wire payload of reminder_triggered and callback_reminder
// events.
type DuePayload struct {
	DueItemID string    `json:"dueItemId"`
	LeadID    string    `json:"leadId"`
	Kind      string    `json:"kind"`
	Note      string    `json:"note"`
	DueAt     time.Time `json:"dueAt"`
	FiredAt   time.Time `json:"firedAt"`
}

func duePayload(item domain.DueItem, now time.Time) DuePayload {
	return DuePayload{
		DueItemID: item.ID,
		LeadID:    item.LeadID,
		Kind:      item.Kind,
		Note:      item.Note,
		DueAt:     item.DueAt,
		FiredAt:   now,
	}
}
