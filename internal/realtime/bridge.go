package realtime

import (
	"context"
	"encoding/json"
)

// BridgeEnvelope carries one encoded event across processes. Origin is the
// publishing process's instance ID so a process can ignore its own messages
// echoed back by the broker (local delivery already happened synchronously).
type BridgeEnvelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Event  json.RawMessage `json:"event"`
}

// Bridge is the cluster-wide publish primitive behind the Bus. The presence
// registry is process-local; the bridge is what lets a publish on one process
// reach a session connected to a sibling process.
type Bridge interface {
	// Publish sends the envelope to every other process.
	Publish(ctx context.Context, env BridgeEnvelope) error
	// Subscribe invokes fn for every envelope published by a sibling process
	// until ctx is canceled. Implementations must filter out the caller's own
	// publishes.
	Subscribe(ctx context.Context, fn func(BridgeEnvelope))
}

// Loopback is the single-process bridge: there are no siblings, so Publish
// and Subscribe are no-ops. Local delivery is handled synchronously by the
// Bus before the bridge is consulted.
type Loopback struct{}

// NewLoopback returns the no-op bridge.
func NewLoopback() Loopback { return Loopback{} }

// Publish implements Bridge.
func (Loopback) Publish(context.Context, BridgeEnvelope) error { return nil }

// Subscribe implements Bridge.
func (Loopback) Subscribe(context.Context, func(BridgeEnvelope)) {}
