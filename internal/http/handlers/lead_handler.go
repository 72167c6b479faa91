// Lead HTTP handlers.
//
// This file exposes REST endpoints for lead resources:
//   - POST   /leads               (create)
//   - GET    /leads               (list, paginated, ETag support)
//   - GET    /leads/{id}          (fetch one)
//   - PUT    /leads/{id}/status   (update pipeline status)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/http/middleware"
	"github.com/leadops/go-leads-backend/internal/realtime"
	"github.com/leadops/go-leads-backend/internal/repo"
	"github.com/leadops/go-leads-backend/internal/services"
	"github.com/leadops/go-leads-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// LeadService defines lead lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type LeadService interface {
	// Create registers a new lead owned by ownerID.
	Create(ctx context.Context, ownerID, name, phone string) (*domain.Lead, error)
	// Get returns a lead visible to callerID.
	Get(ctx context.Context, callerID, id string) (*domain.Lead, error)
	// ListPage returns a page of the owner's leads and the total count.
	ListPage(ctx context.Context, ownerID string, page, pageSize int) ([]domain.Lead, int64, error)
	// UpdateStatus moves a lead the caller owns to a new pipeline status.
	UpdateStatus(ctx context.Context, ownerID, id, status string) error
}

// TransferService defines the ownership handoff operations consumed by HTTP
// handlers. All transitions are idempotent on repeat by the same decider.
type TransferService interface {
	// Propose offers leadID from fromID to toID.
	Propose(ctx context.Context, leadID, fromID, toID, note string) (*domain.TransferRequest, error)
	// Accept settles a pending request in favor of the target.
	Accept(ctx context.Context, requestID, byID string) (*domain.TransferRequest, error)
	// Reject settles a pending request against the target.
	Reject(ctx context.Context, requestID, byID string) (*domain.TransferRequest, error)
	// Inbox lists requests addressed to the principal.
	Inbox(ctx context.Context, principalID string) ([]domain.TransferRequest, error)
	// Outbox lists requests the principal has proposed.
	Outbox(ctx context.Context, principalID string) ([]domain.TransferRequest, error)
}

// NotificationReader defines the notification operations consumed by HTTP
// handlers (dispatch happens server-side, never through this surface).
type NotificationReader interface {
	// ListPage returns a page of the recipient's notifications and the total.
	ListPage(ctx context.Context, recipientID string, page, pageSize int) ([]domain.Notification, int64, error)
	// History returns the most recent notifications for reconnect sync.
	History(ctx context.Context, recipientID string, n int) ([]domain.Notification, error)
	// UnreadCount returns the recipient's unread tally.
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	// MarkRead flags one notification as read.
	MarkRead(ctx context.Context, recipientID, id string) error
	// MarkAllRead flags every unread notification as read.
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// DueItemService defines scheduled reminder/callback operations consumed by
// HTTP handlers.
type DueItemService interface {
	// Create schedules a reminder or callback on a lead the caller owns.
	Create(ctx context.Context, ownerID, leadID, kind, note string, dueAt time.Time) (*domain.DueItem, error)
	// List returns the caller's due items, optionally bounded by time.
	List(ctx context.Context, ownerID string, from, to *time.Time) ([]domain.DueItem, error)
	// Complete marks an item done.
	Complete(ctx context.Context, ownerID, id string) error
	// Reschedule moves an item to a new due time and re-arms it.
	Reschedule(ctx context.Context, ownerID, id string, dueAt time.Time) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for leads, transfers, notifications, due
// items, and the websocket entry point. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	leadSvc     LeadService
	transferSvc TransferService
	notifSvc    NotificationReader
	dueSvc      DueItemService

	registry *realtime.Registry
	idemTTL  time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
// The registry powers the websocket endpoint; idemTTL bounds the replay
// window for Idempotency-Key protected endpoints.
func New(leadSvc LeadService, transferSvc TransferService, notifSvc NotificationReader, dueSvc DueItemService, registry *realtime.Registry, idemTTL time.Duration) *Handlers {
	return &Handlers{
		leadSvc:     leadSvc,
		transferSvc: transferSvc,
		notifSvc:    notifSvc,
		dueSvc:      dueSvc,
		registry:    registry,
		idemTTL:     idemTTL,
	}
}

// principalID extracts the authenticated principal id from Gin context (set by
// the auth middleware). If absent, it falls back to "X-User-ID" header (tests
// use it), and finally to "demo-user". It never touches c.Request if it's nil.
func principalID(c *gin.Context) string {
	if pid, ok := middleware.PrincipalID(c); ok {
		return pid
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// svcFail translates the service error taxonomy into the HTTP envelope.
// fallbackCode is used for errors without a mapped sentinel.
func svcFail(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrTransientStore):
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreDown, "storage temporarily unavailable")
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

//
// DTOs
//

// CreateLeadRequest is the JSON payload for creating a lead.
type CreateLeadRequest struct {
	// Name is the prospect's display name (1–255 chars).
	Name string `json:"name" binding:"required,min=1,max=255" example:"Maria Papadopoulou"`
	// Phone optionally records a contact number.
	Phone string `json:"phone" example:"+30 210 1234567"`
}

// UpdateLeadStatusRequest is the JSON payload for moving a lead through the
// pipeline.
type UpdateLeadStatusRequest struct {
	// Status is the new pipeline status (1–32 chars).
	Status string `json:"status" binding:"required,min=1,max=32" example:"contacted"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListLeadsResponse wraps a page of leads and pagination information.
type ListLeadsResponse struct {
	Leads      []domain.Lead `json:"leads"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

func paginationOf(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// CreateLead godoc
// @ID          createLead
// @Summary     Create a new lead
// @Description Registers a lead owned by the current principal and returns the lead resource.
// @Tags        Leads
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       body       body    handlers.CreateLeadRequest  true  "Create lead payload"
//
// @Success     201  {object}  domain.Lead
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /leads [post]
func (h *Handlers) CreateLead(c *gin.Context) {
	var req CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	lead, err := h.leadSvc.Create(c.Request.Context(), principalID(c), strings.TrimSpace(req.Name), strings.TrimSpace(req.Phone))
	if err != nil {
		svcFail(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, lead)
}

// ListLeads godoc
// @ID          listLeads
// @Summary     List leads (paginated)
// @Description Returns a page of the principal's leads. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Leads
// @Produce     json
//
// @Param       X-User-ID      header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListLeadsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /leads [get]
func (h *Handlers) ListLeads(c *gin.Context) {
	ctx := c.Request.Context()
	pid := principalID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if db := h.leadDB(); db != nil {
		count, maxTS, err := repo.LeadsStats(ctx, db, pid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"leads:%s:%d:%d"`, pid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.leadSvc.ListPage(ctx, pid, page, pageSize)
	if err != nil {
		svcFail(c, err, ErrCodeListFailed)
		return
	}

	ok(c, http.StatusOK, ListLeadsResponse{
		Leads:      items,
		Pagination: paginationOf(page, pageSize, total),
	})
}

// GetLead godoc
// @ID          getLead
// @Summary     Fetch a lead
// @Description Returns a single lead visible to the current principal.
// @Tags        Leads
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       id         path    string  true  "Lead ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Lead
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Lead not found"
// @Router      /leads/{id} [get]
func (h *Handlers) GetLead(c *gin.Context) {
	leadID := c.Param("id")
	if _, err := uuid.Parse(leadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lead id must be a UUID")
		return
	}

	lead, err := h.leadSvc.Get(c.Request.Context(), principalID(c), leadID)
	if err != nil {
		svcFail(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, lead)
}

// UpdateLeadStatus godoc
// @ID          updateLeadStatus
// @Summary     Update a lead's pipeline status
// @Description Moves a lead owned by the current principal to a new status and broadcasts the change.
// @Tags        Leads
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       id         path    string  true  "Lead ID (UUID)"  format(uuid)
// @Param       body       body    handlers.UpdateLeadStatusRequest  true  "New status"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Lead not found"
// @Router      /leads/{id}/status [put]
func (h *Handlers) UpdateLeadStatus(c *gin.Context) {
	leadID := c.Param("id")
	if _, err := uuid.Parse(leadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lead id must be a UUID")
		return
	}

	var req UpdateLeadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required (1–32 chars)")
		return
	}

	if err := h.leadSvc.UpdateStatus(c.Request.Context(), principalID(c), leadID, strings.TrimSpace(req.Status)); err != nil {
		svcFail(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// leadDB surfaces the GORM handle when the lead service is the concrete
// implementation; interface fakes in tests return nil and skip the ETag path.
func (h *Handlers) leadDB() *gorm.DB {
	if svc, okc := h.leadSvc.(*services.LeadService); okc {
		return svc.DB
	}
	return nil
}
