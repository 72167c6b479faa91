// Package services – TransferService
//
// This file implements the ownership transfer coordinator: the state machine
// governing lead handoff between principals. It validates proposals, settles
// accept/reject decisions through conditional writes, cascades sibling
// requests, and moves the ownership pointer atomically with the accept that
// justifies it.
//
// Concurrency contract: every transition is a single conditional UPDATE keyed
// on the current status, executed inside one transaction together with its
// dependent writes. Two concurrent accepts on the same request resolve to
// exactly one winner; the loser observes the settled state and returns the
// idempotent no-op result.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/realtime"
	"github.com/leadops/go-leads-backend/internal/repo"
)

// TransferRepo defines the repository contract required by TransferService.
type TransferRepo interface {
	// GetLead fetches a lead by ID.
	GetLead(ctx context.Context, db *gorm.DB, id string) (*domain.Lead, error)

	// GetPrincipal fetches a principal by ID.
	GetPrincipal(ctx context.Context, db *gorm.DB, id string) (*domain.Principal, error)

	// GetPendingTransferForLead returns the lead's pending request, if any.
	GetPendingTransferForLead(ctx context.Context, db *gorm.DB, leadID string) (*domain.TransferRequest, error)

	// CreateTransferRequest inserts a pending request guarded against a
	// concurrent duplicate (repo.ErrDuplicate).
	CreateTransferRequest(ctx context.Context, db *gorm.DB, leadID, fromID, toID, note string) (*domain.TransferRequest, error)

	// GetTransferRequest fetches a request by ID.
	GetTransferRequest(ctx context.Context, db *gorm.DB, id string) (*domain.TransferRequest, error)

	// SettleTransferRequest is the pending→{accepted,rejected} CAS.
	SettleTransferRequest(ctx context.Context, db *gorm.DB, id, toID, status string, decidedAt time.Time) error

	// UpdateLeadOwner is the ownership-pointer CAS.
	UpdateLeadOwner(ctx context.Context, db *gorm.DB, id, expectedOwnerID, newOwnerID string) error

	// CascadeRejectSiblings rejects remaining pending requests for the lead.
	CascadeRejectSiblings(ctx context.Context, db *gorm.DB, leadID, acceptedID string, decidedAt time.Time) ([]domain.TransferRequest, error)

	// ListTransfersTo / ListTransfersFrom are the inbox/outbox reads.
	ListTransfersTo(ctx context.Context, db *gorm.DB, toID string) ([]domain.TransferRequest, error)
	ListTransfersFrom(ctx context.Context, db *gorm.DB, fromID string) ([]domain.TransferRequest, error)
}

// Dispatcher is the slice of NotificationService the coordinator needs.
// Notifications emitted here are best-effort side effects of a committed
// transition; an error is logged by the dispatcher, never surfaced to the
// transfer caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, in DispatchInput) (*domain.Notification, error)
}

// EventBus is the slice of the realtime bus used by services.
type EventBus interface {
	PublishToRoom(ctx context.Context, roomID, kind string, payload any)
	PublishToPrincipal(ctx context.Context, principalID, kind string, payload any)
}

// TransferService coordinates lead ownership handoff.
type TransferService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the transfer repository used by this service.
	Repo TransferRepo
	// Notifier persists and delivers the notifications each transition emits.
	Notifier Dispatcher
	// Bus receives the ownership-changed events.
	Bus EventBus
}

// NewTransferService constructs a TransferService over the package-level repo
// functions.
func NewTransferService(db *gorm.DB, notifier Dispatcher, bus EventBus) *TransferService {
	return &TransferService{DB: db, Repo: transferRepoShim{}, Notifier: notifier, Bus: bus}
}

// LeadSharedPayload is the wire payload of a lead_shared event.
type LeadSharedPayload struct {
	LeadID string `json:"leadId"`
	FromID string `json:"fromId"`
	ToID   string `json:"toId"`
}

// LeadStatusPayload is the wire payload of a lead_status_update event.
type LeadStatusPayload struct {
	LeadID    string    `json:"leadId"`
	Status    string    `json:"status"`
	ByID      string    `json:"byId"`
	Timestamp time.Time `json:"timestamp"`
}

// Propose creates a pending TransferRequest offering leadID from fromID to
// toID and notifies the target.
//
// Fails with ErrConflict when the lead already has a pending request, fromID
// does not currently own the lead, toID equals fromID, or the target is
// inactive. Fails with ErrNotFound when the lead or target does not exist.
func (s *TransferService) Propose(ctx context.Context, leadID, fromID, toID, note string) (*domain.TransferRequest, error) {
	if leadID == "" || fromID == "" || toID == "" {
		return nil, validationf("leadId, fromId and toId are required")
	}
	if toID == fromID {
		return nil, conflictf("cannot transfer a lead to its current owner")
	}

	lead, err := s.Repo.GetLead(ctx, s.DB, leadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	if lead.OwnerID != fromID {
		return nil, conflictf("proposer does not own the lead")
	}

	target, err := s.Repo.GetPrincipal(ctx, s.DB, toID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	if !target.Active {
		return nil, conflictf("target principal is inactive")
	}

	// Cheap pre-check for a clear error message; the insert itself re-guards
	// against a concurrent duplicate.
	if _, err := s.Repo.GetPendingTransferForLead(ctx, s.DB, leadID); err == nil {
		return nil, conflictf("lead already has a pending transfer")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeErr(err)
	}

	tr, err := s.Repo.CreateTransferRequest(ctx, s.DB, leadID, fromID, toID, note)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, conflictf("lead already has a pending transfer")
		}
		return nil, storeErr(err)
	}

	shared := LeadSharedPayload{LeadID: leadID, FromID: fromID, ToID: toID}
	if s.Notifier != nil {
		_, _ = s.Notifier.Dispatch(ctx, DispatchInput{
			RecipientID: toID,
			Kind:        realtime.EventLeadShared,
			Title:       "Lead shared with you",
			Message:     lead.Name,
			Priority:    "high",
			Payload:     shared,
		})
	}
	if s.Bus != nil {
		s.Bus.PublishToPrincipal(ctx, toID, realtime.EventLeadShared, shared)
	}
	return tr, nil
}

// Accept settles requestID as accepted on behalf of byID: it flips the status
// pending→accepted, moves the ownership pointer, and cascades every sibling
// pending request for the same lead to rejected — all in one transaction.
//
// Repeat accepts on an already-accepted request return the settled request
// with no further effect. A request unknown, settled as rejected, or
// addressed to someone else yields ErrNotFound.
func (s *TransferService) Accept(ctx context.Context, requestID, byID string) (*domain.TransferRequest, error) {
	tr, err := s.Repo.GetTransferRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	if tr.ToID != byID {
		return nil, ErrNotFound
	}
	if tr.Status == domain.TransferAccepted {
		return tr, nil // idempotent repeat
	}
	if tr.Status == domain.TransferRejected {
		return nil, ErrNotFound
	}

	decidedAt := time.Now().UTC()
	var cascaded []domain.TransferRequest
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Repo.SettleTransferRequest(ctx, tx, requestID, byID, domain.TransferAccepted, decidedAt); err != nil {
			return err
		}
		if err := s.Repo.UpdateLeadOwner(ctx, tx, tr.LeadID, tr.FromID, tr.ToID); err != nil {
			return err
		}
		var cErr error
		cascaded, cErr = s.Repo.CascadeRejectSiblings(ctx, tx, tr.LeadID, requestID, decidedAt)
		return cErr
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Lost the settle race or the ownership pointer moved underneath.
			// Re-read: a concurrent accept of the same request is the
			// idempotent no-op case; anything else is gone.
			settled, rErr := s.Repo.GetTransferRequest(ctx, s.DB, requestID)
			if rErr == nil && settled.Status == domain.TransferAccepted && settled.ToID == byID {
				return settled, nil
			}
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}

	tr.Status = domain.TransferAccepted
	tr.DecidedAt = &decidedAt
	s.emitSettled(ctx, tr, domain.TransferAccepted, byID, cascaded)
	return tr, nil
}

// Reject settles requestID as rejected on behalf of byID and notifies the
// proposer. Symmetric to Accept, without ownership or cascade effects.
// Repeat rejects on an already-rejected request are a no-op success.
func (s *TransferService) Reject(ctx context.Context, requestID, byID string) (*domain.TransferRequest, error) {
	tr, err := s.Repo.GetTransferRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	if tr.ToID != byID {
		return nil, ErrNotFound
	}
	if tr.Status == domain.TransferRejected {
		return tr, nil // idempotent repeat
	}
	if tr.Status == domain.TransferAccepted {
		return nil, ErrNotFound
	}

	decidedAt := time.Now().UTC()
	if err := s.Repo.SettleTransferRequest(ctx, s.DB, requestID, byID, domain.TransferRejected, decidedAt); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			settled, rErr := s.Repo.GetTransferRequest(ctx, s.DB, requestID)
			if rErr == nil && settled.Status == domain.TransferRejected && settled.ToID == byID {
				return settled, nil
			}
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}

	tr.Status = domain.TransferRejected
	tr.DecidedAt = &decidedAt
	s.emitSettled(ctx, tr, domain.TransferRejected, byID, nil)
	return tr, nil
}

// Inbox returns pending requests addressed to principalID.
func (s *TransferService) Inbox(ctx context.Context, principalID string) ([]domain.TransferRequest, error) {
	out, err := s.Repo.ListTransfersTo(ctx, s.DB, principalID)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// Outbox returns pending requests proposed by principalID.
func (s *TransferService) Outbox(ctx context.Context, principalID string) ([]domain.TransferRequest, error) {
	out, err := s.Repo.ListTransfersFrom(ctx, s.DB, principalID)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// emitSettled notifies the proposer (and any superseded proposers) and
// publishes the ownership-changed event after the transaction committed.
func (s *TransferService) emitSettled(ctx context.Context, tr *domain.TransferRequest, status, byID string, cascaded []domain.TransferRequest) {
	payload := LeadStatusPayload{
		LeadID:    tr.LeadID,
		Status:    status,
		ByID:      byID,
		Timestamp: time.Now().UTC(),
	}

	if s.Notifier != nil {
		kind := "transfer_rejected"
		title := "Transfer request rejected"
		if status == domain.TransferAccepted {
			kind = "transfer_accepted"
			title = "Transfer request accepted"
		}
		_, _ = s.Notifier.Dispatch(ctx, DispatchInput{
			RecipientID: tr.FromID,
			Kind:        kind,
			Title:       title,
			Priority:    "normal",
			Payload:     payload,
		})
		for _, sib := range cascaded {
			_, _ = s.Notifier.Dispatch(ctx, DispatchInput{
				RecipientID: sib.FromID,
				Kind:        "transfer_superseded",
				Title:       "Transfer request superseded",
				Message:     "another transfer for this lead was accepted",
				Priority:    "normal",
				Payload: LeadStatusPayload{
					LeadID: sib.LeadID, Status: domain.TransferRejected,
					ByID: byID, Timestamp: payload.Timestamp,
				},
			})
		}
	}

	if s.Bus != nil {
		s.Bus.PublishToPrincipal(ctx, tr.FromID, realtime.EventLeadStatusUpdate, payload)
		if status == domain.TransferAccepted {
			// Managers watch ownership churn through their role room.
			s.Bus.PublishToRoom(ctx, realtime.RoleRoom(domain.RoleManager), realtime.EventLeadStatusUpdate, payload)
		}
	}
}

// storeErr maps raw store failures onto the transient taxonomy entry.
func storeErr(err error) error {
	return errors.Join(ErrTransientStore, err)
}

// transferRepoShim adapts the repository free functions to the TransferRepo
// interface. This keeps the service decoupled from the concrete repo package
// while reusing the existing functions.
type transferRepoShim struct{}

func (transferRepoShim) GetLead(ctx context.Context, db *gorm.DB, id string) (*domain.Lead, error) {
	return repo.GetLead(ctx, db, id)
}

func (transferRepoShim) GetPrincipal(ctx context.Context, db *gorm.DB, id string) (*domain.Principal, error) {
	return repo.GetPrincipal(ctx, db, id)
}

func (transferRepoShim) GetPendingTransferForLead(ctx context.Context, db *gorm.DB, leadID string) (*domain.TransferRequest, error) {
	return repo.GetPendingTransferForLead(ctx, db, leadID)
}

func (transferRepoShim) CreateTransferRequest(ctx context.Context, db *gorm.DB, leadID, fromID, toID, note string) (*domain.TransferRequest, error) {
	return repo.CreateTransferRequest(ctx, db, leadID, fromID, toID, note)
}

func (transferRepoShim) GetTransferRequest(ctx context.Context, db *gorm.DB, id string) (*domain.TransferRequest, error) {
	return repo.GetTransferRequest(ctx, db, id)
}

func (transferRepoShim) SettleTransferRequest(ctx context.Context, db *gorm.DB, id, toID, status string, decidedAt time.Time) error {
	return repo.SettleTransferRequest(ctx, db, id, toID, status, decidedAt)
}

func (transferRepoShim) UpdateLeadOwner(ctx context.Context, db *gorm.DB, id, expectedOwnerID, newOwnerID string) error {
	return repo.UpdateLeadOwner(ctx, db, id, expectedOwnerID, newOwnerID)
}

func (transferRepoShim) CascadeRejectSiblings(ctx context.Context, db *gorm.DB, leadID, acceptedID string, decidedAt time.Time) ([]domain.TransferRequest, error) {
	return repo.CascadeRejectSiblings(ctx, db, leadID, acceptedID, decidedAt)
}

func (transferRepoShim) ListTransfersTo(ctx context.Context, db *gorm.DB, toID string) ([]domain.TransferRequest, error) {
	return repo.ListTransfersTo(ctx, db, toID)
}

func (transferRepoShim) ListTransfersFrom(ctx context.Context, db *gorm.DB, fromID string) ([]domain.TransferRequest, error) {
	return repo.ListTransfersFrom(ctx, db, fromID)
}
