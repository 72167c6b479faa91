// Due item HTTP handlers.
//
// This file exposes REST endpoints for scheduled reminders and callbacks:
//   - POST /due-items                    (schedule one)
//   - GET  /due-items                    (list, optional time window)
//   - PUT  /due-items/{id}/complete      (mark done)
//   - PUT  /due-items/{id}/reschedule    (move to a new due time)
//
// The sweeper fires the items; these endpoints only manage them.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/leadops/go-leads-backend/internal/domain"
)

//
// DTOs
//

// CreateDueItemRequest is the JSON payload for scheduling a reminder or
// callback on a lead.
type CreateDueItemRequest struct {
	// LeadID identifies the lead (must be owned by the caller).
	LeadID string `json:"lead_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Kind is either "reminder" or "callback".
	Kind string `json:"kind" binding:"required" example:"reminder"`
	// Note optionally describes the task (max 512 chars).
	Note string `json:"note" binding:"max=512" example:"Send the mortgage pre-approval checklist"`
	// DueAt is when the item fires (RFC 3339).
	DueAt time.Time `json:"due_at" binding:"required" example:"2025-03-01T09:00:00Z"`
}

// RescheduleDueItemRequest is the JSON payload for moving a due item.
type RescheduleDueItemRequest struct {
	// DueAt is the new due time (RFC 3339).
	DueAt time.Time `json:"due_at" binding:"required" example:"2025-03-02T09:00:00Z"`
}

// ListDueItemsResponse wraps the caller's due items.
type ListDueItemsResponse struct {
	DueItems []domain.DueItem `json:"due_items"`
}

//
// Handlers
//

// CreateDueItem godoc
// @ID          createDueItem
// @Summary     Schedule a reminder or callback
// @Description Schedules a due item on a lead the caller owns. Reminders fire once;
// @Description callbacks re-fire after each reschedule to a new due time.
// @Tags        DueItems
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       body       body    handlers.CreateDueItemRequest  true  "Schedule payload"
//
// @Success     201  {object}  domain.DueItem
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Lead not found or not owned"
// @Router      /due-items [post]
func (h *Handlers) CreateDueItem(c *gin.Context) {
	var req CreateDueItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lead_id, kind and due_at required")
		return
	}
	if _, err := uuid.Parse(req.LeadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lead_id must be a UUID")
		return
	}

	item, err := h.dueSvc.Create(c.Request.Context(), principalID(c), req.LeadID, strings.TrimSpace(req.Kind), strings.TrimSpace(req.Note), req.DueAt)
	if err != nil {
		svcFail(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, item)
}

// ListDueItems godoc
// @ID          listDueItems
// @Summary     List due items
// @Description Returns the caller's due items ordered by due time, optionally bounded
// @Description by the from/to query parameters (RFC 3339).
// @Tags        DueItems
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       from       query   string  false "Lower bound (RFC 3339)"  example(2025-03-01T00:00:00Z)
// @Param       to         query   string  false "Upper bound (RFC 3339)"  example(2025-03-08T00:00:00Z)
//
// @Success     200  {object}  handlers.ListDueItemsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /due-items [get]
func (h *Handlers) ListDueItems(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from must be RFC 3339")
			return
		}
		from = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to must be RFC 3339")
			return
		}
		to = &t
	}

	items, err := h.dueSvc.List(c.Request.Context(), principalID(c), from, to)
	if err != nil {
		svcFail(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListDueItemsResponse{DueItems: items})
}

// CompleteDueItem godoc
// @ID          completeDueItem
// @Summary     Mark a due item done
// @Description Marks the item done so the sweeper will not fire it again. Idempotent.
// @Tags        DueItems
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       id         path    string  true  "Due item ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Due item not found"
// @Router      /due-items/{id}/complete [put]
func (h *Handlers) CompleteDueItem(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "due item id must be a UUID")
		return
	}

	if err := h.dueSvc.Complete(c.Request.Context(), principalID(c), id); err != nil {
		svcFail(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// RescheduleDueItem godoc
// @ID          rescheduleDueItem
// @Summary     Reschedule a due item
// @Description Moves the item to a new due time and re-arms it; a callback moved to a new
// @Description time becomes a logically new due instance and will notify again.
// @Tags        DueItems
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       id         path    string  true  "Due item ID (UUID)"  format(uuid)
// @Param       body       body    handlers.RescheduleDueItemRequest  true  "New due time"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Due item not found"
// @Router      /due-items/{id}/reschedule [put]
func (h *Handlers) RescheduleDueItem(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "due item id must be a UUID")
		return
	}

	var req RescheduleDueItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DueAt.IsZero() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "due_at required (RFC 3339)")
		return
	}

	if err := h.dueSvc.Reschedule(c.Request.Context(), principalID(c), id, req.DueAt); err != nil {
		svcFail(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
