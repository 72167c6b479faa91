package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeBridge records publishes and lets a test inject sibling-process events.
type fakeBridge struct {
	mu        sync.Mutex
	published []BridgeEnvelope
	fn        func(BridgeEnvelope)
}

func (b *fakeBridge) Publish(ctx context.Context, env BridgeEnvelope) error {
	b.mu.Lock()
	b.published = append(b.published, env)
	b.mu.Unlock()
	return nil
}

func (b *fakeBridge) Subscribe(ctx context.Context, fn func(BridgeEnvelope)) {
	b.fn = fn
}

func (b *fakeBridge) inject(env BridgeEnvelope) {
	b.fn(env)
}

func TestPublishToRoom_FansOutToMembersOnly(t *testing.T) {
	r := NewRegistry()
	inRoom1 := &fakeConn{}
	inRoom2 := &fakeConn{}
	outside := &fakeConn{}
	s1 := r.Connect("p1", "agent", inRoom1)
	s2 := r.Connect("p2", "agent", inRoom2)
	r.Connect("p3", "manager", outside)
	r.Join(s1, "deal:42")
	r.Join(s2, "deal:42")

	b := NewBus(r, nil)
	b.PublishToRoom(context.Background(), "deal:42", EventLeadStatusUpdate, map[string]string{"leadId": "l1"})

	if inRoom1.count() != 1 || inRoom2.count() != 1 {
		t.Fatalf("room members got %d/%d frames; want 1/1", inRoom1.count(), inRoom2.count())
	}
	if outside.count() != 0 {
		t.Fatalf("non-member received %d frames", outside.count())
	}
	ev := inRoom1.frame(0)
	if ev.Kind != EventLeadStatusUpdate || ev.Room != "deal:42" {
		t.Fatalf("envelope = %+v", ev)
	}
	var payload map[string]string
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload["leadId"] != "l1" {
		t.Fatalf("payload = %s (%v)", ev.Payload, err)
	}
}

func TestPublishToPrincipal_ReachesEverySession(t *testing.T) {
	r := NewRegistry()
	phone := &fakeConn{}
	desktop := &fakeConn{}
	other := &fakeConn{}
	r.Connect("p1", "agent", phone)
	r.Connect("p1", "agent", desktop)
	r.Connect("p2", "agent", other)

	b := NewBus(r, nil)
	b.PublishToPrincipal(context.Background(), "p1", EventNotification, map[string]string{"id": "n1"})

	if phone.count() != 1 || desktop.count() != 1 {
		t.Fatalf("principal sessions got %d/%d frames; want 1/1", phone.count(), desktop.count())
	}
	if other.count() != 0 {
		t.Fatalf("foreign principal received %d frames", other.count())
	}
	// No session anywhere: publish is a quiet no-op.
	b.PublishToPrincipal(context.Background(), "offline", EventNotification, nil)
}

func TestPublish_CountsOncePerTarget(t *testing.T) {
	r := NewRegistry()
	b := NewBus(r, nil)

	const kind = "counter_check"
	baseRoom := testutil.ToFloat64(busPublishes.WithLabelValues(kind, "room"))
	basePrincipal := testutil.ToFloat64(busPublishes.WithLabelValues(kind, "principal"))

	b.PublishToPrincipal(context.Background(), "p1", kind, map[string]string{"id": "n1"})

	if got := testutil.ToFloat64(busPublishes.WithLabelValues(kind, "principal")); got != basePrincipal+1 {
		t.Fatalf("principal publishes = %v; want %v", got, basePrincipal+1)
	}
	if got := testutil.ToFloat64(busPublishes.WithLabelValues(kind, "room")); got != baseRoom {
		t.Fatalf("room publishes = %v; want %v (principal publish must not double-count)", got, baseRoom)
	}

	b.PublishToRoom(context.Background(), "deal:7", kind, map[string]string{"id": "n2"})
	if got := testutil.ToFloat64(busPublishes.WithLabelValues(kind, "room")); got != baseRoom+1 {
		t.Fatalf("room publishes = %v; want %v", got, baseRoom+1)
	}
}

func TestPublish_PerSessionFIFO(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Connect("p1", "agent", conn)

	b := NewBus(r, nil)
	for i := 0; i < 5; i++ {
		b.PublishToPrincipal(context.Background(), "p1", EventNotification, map[string]int{"seq": i})
	}

	if conn.count() != 5 {
		t.Fatalf("frames = %d; want 5", conn.count())
	}
	for i := 0; i < 5; i++ {
		var payload map[string]int
		if err := json.Unmarshal(conn.frame(i).Payload, &payload); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if payload["seq"] != i {
			t.Fatalf("frame %d carries seq %d; order broken", i, payload["seq"])
		}
	}
}

func TestPublish_SaturatedSessionDropsOnlyItsOwnCopy(t *testing.T) {
	r := NewRegistry()
	healthy := &fakeConn{}
	saturated := &fakeConn{full: true}
	r.Connect("p1", "agent", healthy)
	r.Connect("p1", "agent", saturated)

	b := NewBus(r, nil)
	b.PublishToPrincipal(context.Background(), "p1", EventNotification, nil)

	if healthy.count() != 1 {
		t.Fatalf("healthy session got %d frames; want 1", healthy.count())
	}
	if saturated.count() != 0 {
		t.Fatalf("saturated session got %d frames; want 0", saturated.count())
	}
}

func TestPublish_ForwardsToBridge(t *testing.T) {
	r := NewRegistry()
	bridge := &fakeBridge{}
	b := NewBus(r, bridge)

	b.PublishToRoom(context.Background(), "deal:42", EventLeadStatusUpdate, nil)

	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	if len(bridge.published) != 1 || bridge.published[0].Room != "deal:42" {
		t.Fatalf("bridge publishes = %+v", bridge.published)
	}
}

func TestBridgeEvents_DeliverToLocalSessions(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	s := r.Connect("p1", "agent", conn)
	r.Join(s, "deal:42")

	bridge := &fakeBridge{}
	b := NewBus(r, bridge)
	b.Start(context.Background())

	ev := Event{Kind: EventLeadShared, Room: "deal:42", Payload: json.RawMessage(`{}`)}
	data, err := ev.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	bridge.inject(BridgeEnvelope{Origin: "sibling", Room: "deal:42", Event: data})

	if conn.count() != 1 {
		t.Fatalf("frames = %d; want 1", conn.count())
	}
	if got := conn.frame(0); got.Kind != EventLeadShared {
		t.Fatalf("kind = %q", got.Kind)
	}
	// A sibling event never echoes back out through the bridge.
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	if len(bridge.published) != 0 {
		t.Fatalf("bridge event re-published: %+v", bridge.published)
	}
}

func TestPublish_UnserializablePayloadIsDropped(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Connect("p1", "agent", conn)

	b := NewBus(r, nil)
	b.PublishToPrincipal(context.Background(), "p1", EventNotification, make(chan int))

	if conn.count() != 0 {
		t.Fatalf("broken payload still delivered %d frames", conn.count())
	}
}
