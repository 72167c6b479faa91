package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var busPublishes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "realtime_publishes_total",
		Help: "Total events published to the realtime bus, by kind and target.",
	},
	[]string{"kind", "target"},
)

func init() {
	prometheus.MustRegister(busPublishes)
}

// Bus fans events out to sessions in a room or to a specific principal.
// Delivery is best-effort: offline recipients miss the live push and recover
// state from the persisted notification on reconnect. Per-session order is
// preserved by each session's outbox; there is no cross-session ordering.
//
// Every local publish is also forwarded to the Bridge, and publishes arriving
// from the Bridge (originating on sibling processes) are delivered to local
// sessions only, so horizontal scaling does not drop messages and does not
// double-deliver locally.
type Bus struct {
	registry *Registry
	bridge   Bridge
	lg       zerolog.Logger
}

// NewBus wires a Bus over the registry and a cluster bridge. A nil bridge
// degrades to the in-process loopback (single-process deployment).
func NewBus(registry *Registry, bridge Bridge) *Bus {
	if bridge == nil {
		bridge = NewLoopback()
	}
	b := &Bus{
		registry: registry,
		bridge:   bridge,
		lg:       log.With().Str("component", "realtime.bus").Logger(),
	}
	return b
}

// Start subscribes to the bridge for events published by sibling processes.
// The subscription ends when ctx is canceled.
func (b *Bus) Start(ctx context.Context) {
	b.bridge.Subscribe(ctx, func(env BridgeEnvelope) {
		b.deliverLocal(env.Room, env.Event)
	})
}

// PublishToRoom delivers the event to every session currently in roomID (on
// any process). Encoding or bridge failures are logged, never returned as
// fatal: the persisted notification remains the record of truth.
func (b *Bus) PublishToRoom(ctx context.Context, roomID, kind string, payload any) {
	b.publish(ctx, roomID, kind, "room", payload)
}

// PublishToPrincipal delivers the event to every session of principalID. When
// the principal has no session anywhere this is a no-op at the delivery
// layer.
func (b *Bus) PublishToPrincipal(ctx context.Context, principalID, kind string, payload any) {
	b.publish(ctx, PrincipalRoom(principalID), kind, "principal", payload)
}

// publish encodes, counts once under the caller's target label, and fans out
// locally and over the bridge.
func (b *Bus) publish(ctx context.Context, roomID, kind, target string, payload any) {
	ev, data, ok := b.makeEvent(roomID, kind, payload)
	if !ok {
		return
	}
	busPublishes.WithLabelValues(kind, target).Inc()
	b.deliverLocal(roomID, data)
	if err := b.bridge.Publish(ctx, BridgeEnvelope{Room: roomID, Event: data}); err != nil {
		b.lg.Warn().Err(err).Str("room", roomID).Str("kind", ev.Kind).Msg("bridge publish failed")
	}
}

func (b *Bus) makeEvent(roomID, kind string, payload any) (Event, []byte, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.lg.Error().Err(err).Str("kind", kind).Msg("payload marshal failed")
		return Event{}, nil, false
	}
	ev := Event{
		Kind:      kind,
		Room:      roomID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
	data, err := ev.encode()
	if err != nil {
		b.lg.Error().Err(err).Str("kind", kind).Msg("event encode failed")
		return Event{}, nil, false
	}
	return ev, data, true
}

// deliverLocal pushes the encoded event to local members of the room. A full
// session outbox drops the event for that session only.
func (b *Bus) deliverLocal(roomID string, data []byte) {
	for _, s := range b.registry.RoomMembers(roomID) {
		if !s.conn.Send(data) {
			b.lg.Debug().
				Str("session_id", s.ID).
				Str("principal_id", s.PrincipalID).
				Str("room", roomID).
				Msg("session outbox full, event dropped")
		}
	}
}
