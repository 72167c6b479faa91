// Notification HTTP handlers.
//
// This file exposes REST endpoints for the caller's notification feed:
//   - GET  /notifications               (list, paginated, ETag support)
//   - GET  /notifications/recent        (capped recent history for reconnect sync)
//   - GET  /notifications/unread-count  (badge counter)
//   - PUT  /notifications/{id}/read     (mark one read)
//   - PUT  /notifications/read-all      (mark everything read)
//
// Dispatch is server-side only; nothing here creates notifications.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/repo"
	"github.com/leadops/go-leads-backend/internal/services"
	"github.com/leadops/go-leads-backend/internal/utils"
)

//
// DTOs
//

// ListNotificationsResponse wraps a page of notifications and pagination
// information.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

// RecentNotificationsResponse wraps the capped recent history.
type RecentNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
}

// UnreadCountResponse carries the unread badge counter.
type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}

// ReadAllResponse reports how many notifications were newly marked read.
type ReadAllResponse struct {
	Updated int64 `json:"updated"`
}

//
// Handlers
//

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications (paginated)
// @Description Returns a reverse-chronological page of the caller's notifications.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID      header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListNotificationsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	pid := principalID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if db := h.notifDB(); db != nil {
		count, maxTS, err := repo.NotificationsStats(ctx, db, pid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"notifs:%s:%d:%d"`, pid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.notifSvc.ListPage(ctx, pid, page, pageSize)
	if err != nil {
		svcFail(c, err, ErrCodeListFailed)
		return
	}

	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: items,
		Pagination:    paginationOf(page, pageSize, total),
	})
}

// RecentNotifications godoc
// @ID          recentNotifications
// @Summary     Recent notifications (reconnect sync)
// @Description Returns the most recent notifications, newest first, capped by the limit
// @Description parameter. Served from the ephemeral history cache when warm, from the
// @Description store otherwise; clients call this after a websocket reconnect.
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       limit      query   int     false "Max items"  minimum(1) maximum(100) default(50)
//
// @Success     200  {object} handlers.RecentNotificationsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/recent [get]
func (h *Handlers) RecentNotifications(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 50)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	items, err := h.notifSvc.History(c.Request.Context(), principalID(c), limit)
	if err != nil {
		svcFail(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, RecentNotificationsResponse{Notifications: items})
}

// UnreadNotificationCount godoc
// @ID          unreadNotificationCount
// @Summary     Unread notification count
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
//
// @Success     200  {object} handlers.UnreadCountResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/unread-count [get]
func (h *Handlers) UnreadNotificationCount(c *gin.Context) {
	n, err := h.notifSvc.UnreadCount(c.Request.Context(), principalID(c))
	if err != nil {
		svcFail(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{Unread: n})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark one notification read
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
// @Param       id         path    string  true  "Notification ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Notification not found"
// @Router      /notifications/{id}/read [put]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "notification id must be a UUID")
		return
	}

	if err := h.notifSvc.MarkRead(c.Request.Context(), principalID(c), id); err != nil {
		svcFail(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// MarkAllNotificationsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark every notification read
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Principal ID (demo header)"  example(agent-1)
//
// @Success     200  {object} handlers.ReadAllResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/read-all [put]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.notifSvc.MarkAllRead(c.Request.Context(), principalID(c))
	if err != nil {
		svcFail(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, ReadAllResponse{Updated: n})
}

// notifDB surfaces the GORM handle when the notification service is the
// concrete implementation; interface fakes in tests return nil and skip the
// ETag path.
func (h *Handlers) notifDB() *gorm.DB {
	if svc, okc := h.notifSvc.(*services.NotificationService); okc {
		return svc.DB
	}
	return nil
}
