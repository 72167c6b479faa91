// Package services – LeadService
//
// Thin lead lifecycle operations. Ownership changes never go through here;
// they are the transfer coordinator's exclusive concern.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/realtime"
	"github.com/leadops/go-leads-backend/internal/repo"
)

// LeadService provides lead CRUD scoped to the owning principal.
type LeadService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Bus receives lead_status_update events on status changes; may be nil.
	Bus EventBus
}

// NewLeadService constructs a LeadService.
func NewLeadService(db *gorm.DB, bus EventBus) *LeadService {
	return &LeadService{DB: db, Bus: bus}
}

// Create inserts a new lead owned by ownerID.
func (s *LeadService) Create(ctx context.Context, ownerID, name, phone string) (*domain.Lead, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("lead name is required")
	}
	l, err := repo.CreateLead(ctx, s.DB, ownerID, name, strings.TrimSpace(phone))
	if err != nil {
		return nil, storeErr(err)
	}
	return l, nil
}

// Get fetches a lead visible to callerID (its owner).
func (s *LeadService) Get(ctx context.Context, callerID, id string) (*domain.Lead, error) {
	l, err := repo.GetLead(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	if l.OwnerID != callerID {
		return nil, ErrNotFound
	}
	return l, nil
}

// ListPage returns a page of the caller's leads plus the total count.
func (s *LeadService) ListPage(ctx context.Context, ownerID string, page, pageSize int) ([]domain.Lead, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountLeads(ctx, s.DB, ownerID)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	if total == 0 {
		return []domain.Lead{}, 0, nil
	}
	items, err := repo.ListLeadsPage(ctx, s.DB, ownerID, offset, pageSize)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	return items, total, nil
}

// UpdateStatus moves a lead along the pipeline and announces the change.
func (s *LeadService) UpdateStatus(ctx context.Context, ownerID, id, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return validationf("status is required")
	}
	if err := repo.UpdateLeadStatus(ctx, s.DB, id, ownerID, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return storeErr(err)
	}
	if s.Bus != nil {
		s.Bus.PublishToPrincipal(ctx, ownerID, realtime.EventLeadStatusUpdate, LeadStatusPayload{
			LeadID: id, Status: status, ByID: ownerID, Timestamp: time.Now().UTC(),
		})
	}
	return nil
}
