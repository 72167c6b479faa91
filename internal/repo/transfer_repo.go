// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// TransferRequest model.
//
// Every status transition here is a single conditional UPDATE keyed on the
// current status value, checked through RowsAffected. There is deliberately
// no read-then-write path: two concurrent deciders racing on the same request
// resolve to exactly one affected row, and the loser observes the settled
// state via a follow-up read.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
)

// CreateTransferRequest inserts a new pending TransferRequest. The caller is
// responsible for having checked the one-pending-per-lead rule; the insert
// itself guards it again with a NOT EXISTS condition so two concurrent
// proposers cannot both slip through the check.
//
// Returns ErrDuplicate if a pending request for the lead already exists.
func CreateTransferRequest(ctx context.Context, db *gorm.DB, leadID, fromID, toID, note string) (*domain.TransferRequest, error) {
	tr := &domain.TransferRequest{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		FromID:    fromID,
		ToID:      toID,
		Status:    domain.TransferPending,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).Exec(
		`INSERT INTO transfer_requests (id, lead_id, from_id, to_id, status, note, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
		   SELECT 1 FROM transfer_requests
		   WHERE lead_id = ? AND status = ? AND deleted_at IS NULL
		 )`,
		tr.ID, tr.LeadID, tr.FromID, tr.ToID, tr.Status, tr.Note, tr.CreatedAt, tr.CreatedAt,
		leadID, domain.TransferPending,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicate
	}
	return tr, nil
}

// GetTransferRequest fetches a transfer request by ID, or ErrNotFound.
func GetTransferRequest(ctx context.Context, db *gorm.DB, id string) (*domain.TransferRequest, error) {
	var tr domain.TransferRequest
	err := db.WithContext(ctx).Where("id = ?", id).First(&tr).Error
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// GetPendingTransferForLead returns the pending request for a lead, or
// ErrNotFound when the lead has none.
func GetPendingTransferForLead(ctx context.Context, db *gorm.DB, leadID string) (*domain.TransferRequest, error) {
	var tr domain.TransferRequest
	err := db.WithContext(ctx).
		Where("lead_id = ? AND status = ?", leadID, domain.TransferPending).
		First(&tr).Error
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// ListTransfersTo returns pending requests targeting toID (the caller's inbox),
// most recent first.
func ListTransfersTo(ctx context.Context, db *gorm.DB, toID string) ([]domain.TransferRequest, error) {
	var out []domain.TransferRequest
	err := db.WithContext(ctx).
		Where("to_id = ? AND status = ?", toID, domain.TransferPending).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListTransfersFrom returns pending requests proposed by fromID (the caller's
// outbox), most recent first.
func ListTransfersFrom(ctx context.Context, db *gorm.DB, fromID string) ([]domain.TransferRequest, error) {
	var out []domain.TransferRequest
	err := db.WithContext(ctx).
		Where("from_id = ? AND status = ?", fromID, domain.TransferPending).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// SettleTransferRequest flips one request pending→status (accepted or
// rejected) in a single conditional write, additionally keyed on toID so only
// the addressed principal can settle it. DecidedAt is stamped in the same
// statement.
//
// Returns ErrNotFound when no row was affected: the request is missing,
// already settled, or addressed to someone else. Callers distinguish those
// cases with a follow-up read.
func SettleTransferRequest(ctx context.Context, db *gorm.DB, id, toID, status string, decidedAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.TransferRequest{}).
		Where("id = ? AND to_id = ? AND status = ?", id, toID, domain.TransferPending).
		Updates(map[string]any{
			"status":     status,
			"decided_at": decidedAt,
			"updated_at": decidedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CascadeRejectSiblings rejects every other pending request for the same lead
// after one was accepted, and returns the rejected rows so the caller can
// notify their proposers. The UPDATE is conditional on status=pending, so a
// sibling settled concurrently is left untouched.
func CascadeRejectSiblings(ctx context.Context, db *gorm.DB, leadID, acceptedID string, decidedAt time.Time) ([]domain.TransferRequest, error) {
	var siblings []domain.TransferRequest
	err := db.WithContext(ctx).
		Where("lead_id = ? AND id <> ? AND status = ?", leadID, acceptedID, domain.TransferPending).
		Find(&siblings).Error
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(siblings))
	for _, s := range siblings {
		ids = append(ids, s.ID)
	}
	res := db.WithContext(ctx).
		Model(&domain.TransferRequest{}).
		Where("id IN ? AND status = ?", ids, domain.TransferPending).
		Updates(map[string]any{
			"status":     domain.TransferRejected,
			"decided_at": decidedAt,
			"updated_at": decidedAt,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	return siblings, nil
}
