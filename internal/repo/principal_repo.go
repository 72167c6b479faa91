// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Principal
// model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
)

// CreatePrincipal inserts a principal with the given role.
func CreatePrincipal(ctx context.Context, db *gorm.DB, name, role string) (*domain.Principal, error) {
	p := &domain.Principal{
		ID:        uuid.NewString(),
		Name:      name,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetPrincipal fetches a principal by ID, or ErrNotFound.
func GetPrincipal(ctx context.Context, db *gorm.DB, id string) (*domain.Principal, error) {
	var p domain.Principal
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPrincipalActive toggles the active flag (deactivated principals cannot
// receive transfer proposals). Returns ErrNotFound when the row is missing.
func SetPrincipalActive(ctx context.Context, db *gorm.DB, id string, active bool) error {
	res := db.WithContext(ctx).
		Model(&domain.Principal{}).
		Where("id = ?", id).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
