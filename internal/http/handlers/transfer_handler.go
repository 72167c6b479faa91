// Transfer HTTP handlers.
//
// This file exposes REST endpoints for lead ownership transfers:
//   - POST /transfers                (propose a handoff)
//   - POST /transfers/{id}/accept    (settle in favor of the target)
//   - POST /transfers/{id}/reject    (settle against the target)
//   - GET  /transfers/inbox          (requests addressed to the caller)
//   - GET  /transfers/outbox         (requests the caller has proposed)
//
// Handlers are transport-thin: validation and HTTP mapping live here, the
// transfer state machine lives in the service layer.
//
// Idempotency:
// Accept and reject are idempotent by construction (repeating a settled
// decision returns the settled request). Propose additionally supports the
// Idempotency-Key header: a retried propose with the same key returns the
// previously created request and sets `Idempotency-Replayed: true`.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/http/middleware"
	"github.com/leadops/go-leads-backend/internal/repo"
	"github.com/leadops/go-leads-backend/internal/services"
)

//
// DTOs
//

// ProposeTransferRequest is the JSON payload for proposing a handoff.
type ProposeTransferRequest struct {
	// LeadID identifies the lead being offered (must be owned by the caller).
	LeadID string `json:"lead_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// ToID identifies the principal the lead is offered to.
	ToID string `json:"to_id" binding:"required" example:"agent-2"`
	// Note optionally explains the handoff (max 512 chars).
	Note string `json:"note" binding:"max=512" example:"Client asked for an English-speaking agent"`
}

// TransferResponse is the JSON envelope for a single transfer request.
type TransferResponse struct {
	Transfer *domain.TransferRequest `json:"transfer"`
}

// ListTransfersResponse wraps the caller's inbox or outbox.
type ListTransfersResponse struct {
	Transfers []domain.TransferRequest `json:"transfers"`
}

//
// Handlers
//

// ProposeTransfer godoc
// @ID          proposeTransfer
// @Summary     Propose a lead handoff
// @Description Creates a pending transfer request offering one of the caller's leads to another principal.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Transfers
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.ProposeTransferRequest  true  "Propose payload"
//
// @Success     201  {object}  handlers.TransferResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Lead or target not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Lead already pending, not owned, or target unavailable"
// @Router      /transfers [post]
func (h *Handlers) ProposeTransfer(c *gin.Context) {
	ctx := c.Request.Context()

	var req ProposeTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lead_id and to_id required")
		return
	}
	if _, err := uuid.Parse(req.LeadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lead_id must be a UUID")
		return
	}

	pid := principalID(c)
	scope := c.FullPath()

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey == "" {
		idemKey = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	if idemKey != "" {
		if db := h.transferDB(); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, pid, scope, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetTransferRequest(ctx, db, rec.ResourceID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, rec.Status, TransferResponse{Transfer: prev})
					return
				}
			}
		}
	}

	tr, err := h.transferSvc.Propose(ctx, req.LeadID, pid, req.ToID, strings.TrimSpace(req.Note))
	if err != nil {
		svcFail(c, err, ErrCodeProposeFailed)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if db := h.transferDB(); db != nil {
			ttl := h.idemTTL
			if ttl <= 0 {
				ttl = 24 * time.Hour
			}
			_, _ = repo.CreateIdempotency(ctx, db, pid, scope, idemKey, tr.ID, http.StatusCreated, ttl)
		}
	}

	ok(c, http.StatusCreated, TransferResponse{Transfer: tr})
}

// AcceptTransfer godoc
// @ID          acceptTransfer
// @Summary     Accept a pending transfer
// @Description Settles the request in favor of the caller: ownership of the lead moves to the caller
// @Description and every other pending request for the same lead is rejected. Repeating an accept
// @Description already settled by the caller returns the settled request.
// @Tags        Transfers
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-2)
// @Param       id         path    string  true  "Transfer request ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.TransferResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found or not addressed to caller"
// @Failure     409  {object}  handlers.ErrorResponse  "Request already settled otherwise"
// @Router      /transfers/{id}/accept [post]
func (h *Handlers) AcceptTransfer(c *gin.Context) {
	requestID := c.Param("id")
	if _, err := uuid.Parse(requestID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "transfer id must be a UUID")
		return
	}

	tr, err := h.transferSvc.Accept(c.Request.Context(), requestID, principalID(c))
	if err != nil {
		svcFail(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, TransferResponse{Transfer: tr})
}

// RejectTransfer godoc
// @ID          rejectTransfer
// @Summary     Reject a pending transfer
// @Description Settles the request against the caller; lead ownership is unchanged. Repeating a
// @Description reject already settled by the caller returns the settled request.
// @Tags        Transfers
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-2)
// @Param       id         path    string  true  "Transfer request ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.TransferResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found or not addressed to caller"
// @Failure     409  {object}  handlers.ErrorResponse  "Request already settled otherwise"
// @Router      /transfers/{id}/reject [post]
func (h *Handlers) RejectTransfer(c *gin.Context) {
	requestID := c.Param("id")
	if _, err := uuid.Parse(requestID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "transfer id must be a UUID")
		return
	}

	tr, err := h.transferSvc.Reject(c.Request.Context(), requestID, principalID(c))
	if err != nil {
		svcFail(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, TransferResponse{Transfer: tr})
}

// TransferInbox godoc
// @ID          transferInbox
// @Summary     List transfers addressed to the caller
// @Tags        Transfers
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-2)
//
// @Success     200  {object}  handlers.ListTransfersResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /transfers/inbox [get]
func (h *Handlers) TransferInbox(c *gin.Context) {
	items, err := h.transferSvc.Inbox(c.Request.Context(), principalID(c))
	if err != nil {
		svcFail(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListTransfersResponse{Transfers: items})
}

// TransferOutbox godoc
// @ID          transferOutbox
// @Summary     List transfers proposed by the caller
// @Tags        Transfers
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
//
// @Success     200  {object}  handlers.ListTransfersResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /transfers/outbox [get]
func (h *Handlers) TransferOutbox(c *gin.Context) {
	items, err := h.transferSvc.Outbox(c.Request.Context(), principalID(c))
	if err != nil {
		svcFail(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListTransfersResponse{Transfers: items})
}

// transferDB surfaces the GORM handle when the transfer service is the
// concrete implementation; interface fakes in tests return nil and skip the
// idempotency record path.
func (h *Handlers) transferDB() *gorm.DB {
	if svc, okc := h.transferSvc.(*services.TransferService); okc {
		return svc.DB
	}
	return nil
}
