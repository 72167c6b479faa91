// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Lead model
// and its ownership pointer.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a lead is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// The ownership pointer (leads.owner_id) is deliberately only mutable through
// UpdateLeadOwner, a conditional write keyed on the expected current owner.
// Services must never update owner_id with a plain save.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateLead inserts a new Lead row owned by ownerID.
// The lead ID is a randomly generated UUID (string), and CreatedAt is set to UTC.
func CreateLead(ctx context.Context, db *gorm.DB, ownerID, name, phone string) (*domain.Lead, error) {
	l := &domain.Lead{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Phone:     phone,
		Status:    "new",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// GetLead fetches a single lead by its ID, or ErrNotFound if missing.
func GetLead(ctx context.Context, db *gorm.DB, id string) (*domain.Lead, error) {
	var l domain.Lead
	err := db.WithContext(ctx).Where("id = ?", id).First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CountLeads returns the total number of leads owned by ownerID.
func CountLeads(ctx context.Context, db *gorm.DB, ownerID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("owner_id = ?", ownerID).
		Count(&total).Error
	return total, err
}

// ListLeadsPage returns a paginated slice of leads for ownerID, ordered by
// creation time descending. Use CountLeads to obtain the total for pagination
// metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListLeadsPage(ctx context.Context, db *gorm.DB, ownerID string, offset, limit int) ([]domain.Lead, error) {
	var out []domain.Lead
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateLeadOwner flips the ownership pointer of a lead from expectedOwnerID
// to newOwnerID in a single conditional write. If the lead is missing or its
// current owner no longer matches the expectation, no row is affected and
// ErrNotFound is returned; the caller observes the stale state and must not
// retry blindly.
func UpdateLeadOwner(ctx context.Context, db *gorm.DB, id, expectedOwnerID, newOwnerID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("id = ? AND owner_id = ?", id, expectedOwnerID).
		Updates(map[string]any{"owner_id": newOwnerID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLeadStatus updates the pipeline status of a lead owned by ownerID.
// Returns ErrNotFound if the lead does not exist or is not owned by ownerID.
func UpdateLeadStatus(ctx context.Context, db *gorm.DB, id, ownerID, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
