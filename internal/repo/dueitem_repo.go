// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the DueItem
// model, including the conditional trigger transition used by the sweeper.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
)

// CreateDueItem inserts a reminder or callback for a lead.
func CreateDueItem(ctx context.Context, db *gorm.DB, ownerID, leadID, kind, note string, dueAt time.Time) (*domain.DueItem, error) {
	d := &domain.DueItem{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		LeadID:    leadID,
		Kind:      kind,
		Note:      note,
		DueAt:     dueAt.UTC(),
		Status:    domain.DuePending,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// GetDueItem fetches a due item by ID scoped to its owner.
func GetDueItem(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.DueItem, error) {
	var d domain.DueItem
	err := db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDueItems returns due items for ownerID ordered by due time ascending,
// optionally bounded to [from, to).
func ListDueItems(ctx context.Context, db *gorm.DB, ownerID string, from, to *time.Time) ([]domain.DueItem, error) {
	q := db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if from != nil {
		q = q.Where("due_at >= ?", from.UTC())
	}
	if to != nil {
		q = q.Where("due_at < ?", to.UTC())
	}
	var out []domain.DueItem
	err := q.Order("due_at asc").Find(&out).Error
	return out, err
}

// ListDueReminders returns reminder-kind items with status=pending and
// dueAt <= now. Each returned item is a candidate for the sweeper's
// conditional trigger.
func ListDueReminders(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.DueItem, error) {
	var out []domain.DueItem
	err := db.WithContext(ctx).
		Where("kind = ? AND status = ? AND due_at <= ?", domain.DueKindReminder, domain.DuePending, now.UTC()).
		Order("due_at asc").
		Find(&out).Error
	return out, err
}

// ListDueCallbacks returns callback-kind items with dueAt <= now that have
// not been completed. Callbacks have no triggered state of their own; the
// dispatcher's idempotency key keeps re-listing them harmless.
func ListDueCallbacks(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.DueItem, error) {
	var out []domain.DueItem
	err := db.WithContext(ctx).
		Where("kind = ? AND status <> ? AND due_at <= ?", domain.DueKindCallback, domain.DueDone, now.UTC()).
		Order("due_at asc").
		Find(&out).Error
	return out, err
}

// TriggerDueItem flips one reminder pending→triggered in a single conditional
// write. Returns ErrNotFound when the row was already triggered (lost the
// race to a concurrent sweep) or no longer matches; the caller skips the item
// without treating it as a failure.
func TriggerDueItem(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.DueItem{}).
		Where("id = ? AND status = ?", id, domain.DuePending).
		Updates(map[string]any{"status": domain.DueTriggered, "updated_at": now.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteDueItem marks a callback (or reminder) done for its owner.
// The write is conditional on not-yet-done so repeat completion is ErrNotFound.
func CompleteDueItem(ctx context.Context, db *gorm.DB, id, ownerID string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.DueItem{}).
		Where("id = ? AND owner_id = ? AND status <> ?", id, ownerID, domain.DueDone).
		Updates(map[string]any{
			"status":       domain.DueDone,
			"completed_at": now.UTC(),
			"updated_at":   now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RescheduleDueItem moves a due item to a new DueAt and, for reminders,
// resets the status to pending: a new due time is a logically new due
// instance that should trigger again.
func RescheduleDueItem(ctx context.Context, db *gorm.DB, id, ownerID string, dueAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.DueItem{}).
		Where("id = ? AND owner_id = ? AND status <> ?", id, ownerID, domain.DueDone).
		Updates(map[string]any{
			"due_at":     dueAt.UTC(),
			"status":     domain.DuePending,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
