// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Notification model, including the idempotency-key dedupe lookup used by the
// dispatcher.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
)

// ErrDuplicate indicates that a row violating a uniqueness constraint already
// exists, e.g. a second notification for the same (recipient_id,
// idempotency_key) pair or a second pending transfer for one lead.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateNotification inserts a notification row. When idemKey is non-empty it
// is stored in the indexed column; a unique violation on (recipient_id,
// idempotency_key) maps to ErrDuplicate so the dispatcher can fetch and
// return the existing record instead.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) (*domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return n, nil
}

// GetNotificationByIdemKey returns the notification persisted for
// (recipientID, idemKey), or ErrNotFound.
func GetNotificationByIdemKey(ctx context.Context, db *gorm.DB, recipientID, idemKey string) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).
		Where("recipient_id = ? AND idempotency_key = ?", recipientID, idemKey).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNotification fetches a notification by ID scoped to its recipient.
func GetNotification(ctx context.Context, db *gorm.DB, id, recipientID string) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNotificationsPage returns a page of notifications for recipientID in
// reverse-chronological order. This is the reconnect-sync read path: what it
// returns is exactly what was persisted, capped by the caller's limit.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, recipientID string, offset, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountNotifications returns the total number of notifications for recipientID.
func CountNotifications(ctx context.Context, db *gorm.DB, recipientID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ?", recipientID).
		Count(&total).Error
	return total, err
}

// CountUnreadNotifications returns the unread count for recipientID.
func CountUnreadNotifications(ctx context.Context, db *gorm.DB, recipientID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&total).Error
	return total, err
}

// MarkNotificationRead flags one notification read for its recipient.
// Returns ErrNotFound if the row is missing or owned by someone else.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id, recipientID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead flags every unread notification for recipientID
// and returns how many rows changed.
func MarkAllNotificationsRead(ctx context.Context, db *gorm.DB, recipientID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

// HasNotificationWithIdemKey reports whether a notification already exists
// for (recipientID, idemKey). Used by the sweeper for callback due items,
// whose triggering is derived from notification existence.
func HasNotificationWithIdemKey(ctx context.Context, db *gorm.DB, recipientID, idemKey string) (bool, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND idempotency_key = ?", recipientID, idemKey).
		Count(&total).Error
	return total > 0, err
}
