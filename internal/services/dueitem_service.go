// Package services – DueItemService
//
// Create/list/complete/reschedule operations for reminders and callbacks.
// Triggering is not done here: the sweeper owns the due→notified transition.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/repo"
)

// DueItemService manages scheduled reminders and callbacks.
type DueItemService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewDueItemService constructs a DueItemService.
func NewDueItemService(db *gorm.DB) *DueItemService {
	return &DueItemService{DB: db}
}

// Create schedules a reminder or callback on a lead owned by ownerID.
func (s *DueItemService) Create(ctx context.Context, ownerID, leadID, kind, note string, dueAt time.Time) (*domain.DueItem, error) {
	kind = strings.TrimSpace(kind)
	if kind != domain.DueKindReminder && kind != domain.DueKindCallback {
		return nil, validationf("kind must be reminder or callback")
	}
	if dueAt.IsZero() {
		return nil, validationf("dueAt is required")
	}

	lead, err := repo.GetLead(ctx, s.DB, leadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	if lead.OwnerID != ownerID {
		return nil, ErrNotFound
	}

	d, err := repo.CreateDueItem(ctx, s.DB, ownerID, leadID, kind, strings.TrimSpace(note), dueAt)
	if err != nil {
		return nil, storeErr(err)
	}
	return d, nil
}

// List returns the caller's due items, optionally bounded to [from, to).
func (s *DueItemService) List(ctx context.Context, ownerID string, from, to *time.Time) ([]domain.DueItem, error) {
	out, err := repo.ListDueItems(ctx, s.DB, ownerID, from, to)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// Complete marks a due item done. Repeat completion yields ErrNotFound (the
// conditional write affects no row), which callers may treat as settled.
func (s *DueItemService) Complete(ctx context.Context, ownerID, id string) error {
	if err := repo.CompleteDueItem(ctx, s.DB, id, ownerID, time.Now().UTC()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return storeErr(err)
	}
	return nil
}

// Reschedule moves a due item to a new dueAt. The new time is a logically new
// due instance: reminders reset to pending and callbacks mint a new
// idempotency key at trigger time, so notification happens again.
func (s *DueItemService) Reschedule(ctx context.Context, ownerID, id string, dueAt time.Time) error {
	if dueAt.IsZero() {
		return validationf("dueAt is required")
	}
	if err := repo.RescheduleDueItem(ctx, s.DB, id, ownerID, dueAt); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return storeErr(err)
	}
	return nil
}
