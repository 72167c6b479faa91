// Package services – NotificationService
//
// This file implements the notification dispatcher: it persists notifications
// (with idempotency-key dedupe), maintains the capped per-recipient history
// in the ephemeral cache, and hands events to the realtime bus. Persistence
// is the durable guarantee; cache and delivery failures are logged and never
// roll it back.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/leadops/go-leads-backend/internal/cache"
	"github.com/leadops/go-leads-backend/internal/domain"
	"github.com/leadops/go-leads-backend/internal/realtime"
	"github.com/leadops/go-leads-backend/internal/repo"
)

var notifsDispatched = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Notifications handled by the dispatcher, by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

func init() {
	prometheus.MustRegister(notifsDispatched)
}

// Cache key prefixes for per-recipient derived state.
const (
	histKeyPrefix   = "notif:hist:"
	unreadKeyPrefix = "notif:unread:"
)

// DispatchInput describes one notification to persist and deliver.
//
// IdempotencyKey, when non-empty, dedupes the dispatch per recipient: a
// repeat with the same (recipient, key) returns the original record with no
// new persistence or delivery.
type DispatchInput struct {
	RecipientID    string
	Kind           string
	Title          string
	Message        string
	Priority       string
	Payload        any
	IdempotencyKey string
}

// NotificationService persists notifications and forwards them to delivery.
type NotificationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache holds the capped history and the unread-count cache.
	Cache cache.Cache
	// Bus is the realtime delivery layer; nil disables live push.
	Bus EventBus

	// HistoryMax caps the per-recipient ephemeral history length.
	HistoryMax int
	// HistoryTTL expires an idle recipient's history.
	HistoryTTL time.Duration

	lg zerolog.Logger
}

// NewNotificationService constructs a dispatcher with the default history cap.
func NewNotificationService(db *gorm.DB, c cache.Cache, bus EventBus) *NotificationService {
	return &NotificationService{
		DB:         db,
		Cache:      c,
		Bus:        bus,
		HistoryMax: 50,
		HistoryTTL: 24 * time.Hour,
		lg:         log.With().Str("component", "notifications").Logger(),
	}
}

// Dispatch persists a notification and hands it to the delivery bus.
//
// When IdempotencyKey is set and a notification already exists for
// (recipient, key), the existing record is returned and nothing else happens.
// Cache and bus failures after a successful persist are logged, not returned:
// the persisted row is the durable record.
func (s *NotificationService) Dispatch(ctx context.Context, in DispatchInput) (*domain.Notification, error) {
	if in.RecipientID == "" || in.Kind == "" {
		return nil, validationf("recipientId and kind are required")
	}
	if in.Priority == "" {
		in.Priority = "normal"
	}

	var payloadJSON string
	if in.Payload != nil {
		raw, err := json.Marshal(in.Payload)
		if err != nil {
			return nil, validationf("payload not serializable: %v", err)
		}
		payloadJSON = string(raw)
	}

	if in.IdempotencyKey != "" {
		if existing, err := repo.GetNotificationByIdemKey(ctx, s.DB, in.RecipientID, in.IdempotencyKey); err == nil {
			notifsDispatched.WithLabelValues(in.Kind, "deduped").Inc()
			return existing, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.lg.Error().Err(err).Str("recipient_id", in.RecipientID).Str("kind", in.Kind).Msg("notification dedupe lookup failed")
			return nil, storeErr(err)
		}
	}

	n := &domain.Notification{
		RecipientID: in.RecipientID,
		Kind:        in.Kind,
		Title:       in.Title,
		Message:     in.Message,
		Priority:    in.Priority,
		Payload:     payloadJSON,
	}
	if in.IdempotencyKey != "" {
		k := in.IdempotencyKey
		n.IdempotencyKey = &k
	}

	created, err := repo.CreateNotification(ctx, s.DB, n)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Raced another dispatcher on the same key; theirs is the record.
			existing, gErr := repo.GetNotificationByIdemKey(ctx, s.DB, in.RecipientID, in.IdempotencyKey)
			if gErr != nil {
				s.lg.Error().Err(gErr).Str("recipient_id", in.RecipientID).Str("kind", in.Kind).Msg("notification dedupe lookup failed")
				return nil, storeErr(gErr)
			}
			notifsDispatched.WithLabelValues(in.Kind, "deduped").Inc()
			return existing, nil
		}
		notifsDispatched.WithLabelValues(in.Kind, "error").Inc()
		// Callers treat dispatch as a best-effort side effect of a committed
		// transition and may discard this error; the log line is the trace of
		// the lost durable record.
		s.lg.Error().Err(err).Str("recipient_id", in.RecipientID).Str("kind", in.Kind).Msg("notification persist failed")
		return nil, storeErr(err)
	}
	notifsDispatched.WithLabelValues(in.Kind, "created").Inc()

	s.appendHistory(ctx, created)
	s.invalidateUnread(ctx, created.RecipientID)

	if s.Bus != nil {
		s.Bus.PublishToPrincipal(ctx, created.RecipientID, realtime.EventNotification, wireNotification(created))
	}
	return created, nil
}

// WireNotification is the payload shape of a notification event.
type WireNotification struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Priority  string          `json:"priority"`
	CreatedAt time.Time       `json:"createdAt"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

func wireNotification(n *domain.Notification) WireNotification {
	w := WireNotification{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		Priority:  n.Priority,
		CreatedAt: n.CreatedAt,
	}
	if n.Payload != "" {
		w.Metadata = json.RawMessage(n.Payload)
	}
	return w
}

// appendHistory prepends the notification to the recipient's capped history.
func (s *NotificationService) appendHistory(ctx context.Context, n *domain.Notification) {
	if s.Cache == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	if err := s.Cache.PushCapped(ctx, histKeyPrefix+n.RecipientID, data, s.HistoryMax, s.HistoryTTL); err != nil {
		s.lg.Warn().Err(err).Str("recipient_id", n.RecipientID).Msg("history append failed")
	}
}

func (s *NotificationService) invalidateUnread(ctx context.Context, recipientID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, unreadKeyPrefix+recipientID); err != nil {
		s.lg.Warn().Err(err).Str("recipient_id", recipientID).Msg("unread invalidation failed")
	}
}

// ListPage returns a page of persisted notifications for recipientID in
// reverse-chronological order, plus the total count.
func (s *NotificationService) ListPage(ctx context.Context, recipientID string, page, pageSize int) ([]domain.Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > s.HistoryMax {
		pageSize = s.HistoryMax
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountNotifications(ctx, s.DB, recipientID)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, recipientID, offset, pageSize)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	return items, total, nil
}

// History returns the recipient's last n notifications, newest first, served
// from the capped cache when warm and falling through to the store otherwise.
// This is the reconnect-sync read path.
func (s *NotificationService) History(ctx context.Context, recipientID string, n int) ([]domain.Notification, error) {
	if n <= 0 || n > s.HistoryMax {
		n = s.HistoryMax
	}
	if s.Cache != nil {
		if rows, err := s.Cache.ListRange(ctx, histKeyPrefix+recipientID, n); err == nil && len(rows) > 0 {
			out := make([]domain.Notification, 0, len(rows))
			for _, row := range rows {
				var item domain.Notification
				if json.Unmarshal(row, &item) == nil {
					out = append(out, item)
				}
			}
			if len(out) == len(rows) {
				return out, nil
			}
		}
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, recipientID, 0, n)
	if err != nil {
		return nil, storeErr(err)
	}
	return items, nil
}

// UnreadCount returns the recipient's unread total, cached briefly.
func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	key := unreadKeyPrefix + recipientID
	if s.Cache != nil {
		if raw, err := s.Cache.Get(ctx, key); err == nil {
			var cached int64
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}
	total, err := repo.CountUnreadNotifications(ctx, s.DB, recipientID)
	if err != nil {
		return 0, storeErr(err)
	}
	if s.Cache != nil {
		if raw, err := json.Marshal(total); err == nil {
			_ = s.Cache.Set(ctx, key, raw, time.Minute)
		}
	}
	return total, nil
}

// MarkRead flags one notification read for its recipient.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, id string) error {
	if err := repo.MarkNotificationRead(ctx, s.DB, id, recipientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return storeErr(err)
	}
	s.invalidateUnread(ctx, recipientID)
	// The cached history embeds the read flag; drop it so the next sync
	// reflects the change.
	if s.Cache != nil {
		_ = s.Cache.Delete(ctx, histKeyPrefix+recipientID)
	}
	return nil
}

// MarkAllRead flags every unread notification for the recipient and returns
// how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	changed, err := repo.MarkAllNotificationsRead(ctx, s.DB, recipientID)
	if err != nil {
		return 0, storeErr(err)
	}
	if changed > 0 {
		s.invalidateUnread(ctx, recipientID)
		if s.Cache != nil {
			_ = s.Cache.Delete(ctx, histKeyPrefix+recipientID)
		}
	}
	return changed, nil
}

// HasWithIdemKey reports whether a notification exists for (recipient, key).
// The sweeper uses it to derive callback triggering from notification
// existence without a status column.
func (s *NotificationService) HasWithIdemKey(ctx context.Context, recipientID, key string) (bool, error) {
	ok, err := repo.HasNotificationWithIdemKey(ctx, s.DB, recipientID, key)
	if err != nil {
		return false, storeErr(err)
	}
	return ok, nil
}
