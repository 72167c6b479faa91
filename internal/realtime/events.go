// Package realtime implements presence tracking, room membership, and
// best-effort fan-out delivery of domain events to connected sessions.
//
// The package is organized as:
//   - events.go:   wire event kinds and envelope
//   - registry.go: sessions and rooms (process-local presence state)
//   - bus.go:      room/principal publish over the registry
//   - bridge.go:   cluster-wide publish abstraction (loopback + Redis pub/sub)
//   - session.go:  websocket transport adapter
package realtime

import (
	"encoding/json"
	"time"
)

// Wire-level event kinds pushed to sessions.
const (
	EventLeadShared        = "lead_shared"
	EventLeadStatusUpdate  = "lead_status_update"
	EventNotification      = "notification"
	EventReminderTriggered = "reminder_triggered"
	EventCallbackReminder  = "callback_reminder"
	EventSessionHello      = "session_hello"
)

// Room name prefixes. Every session auto-joins its principal room and its
// role room on connect.
const (
	RoomPrefixPrincipal = "principal:"
	RoomPrefixRole      = "role:"
)

// PrincipalRoom returns the private room name for a principal.
func PrincipalRoom(principalID string) string { return RoomPrefixPrincipal + principalID }

// RoleRoom returns the shared room name for a role.
func RoleRoom(role string) string { return RoomPrefixRole + role }

// Event is the envelope written to sessions. Payload is produced by the
// publisher and forwarded verbatim.
type Event struct {
	Kind      string          `json:"kind"`
	Room      string          `json:"room,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// encode marshals the envelope once per publish so fan-out to N sessions
// shares a single serialization.
func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
