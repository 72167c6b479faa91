package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// bridgeChannel is the Redis pub/sub channel all processes share.
const bridgeChannel = "realtime:events"

// RedisBridge implements Bridge over Redis pub/sub. Each process carries a
// random instance ID; envelopes echoed back with our own origin are dropped
// so local sessions never see a publish twice.
type RedisBridge struct {
	client   *redis.Client
	instance string
	lg       zerolog.Logger
}

// NewRedisBridge wraps an existing go-redis client (typically the cache's).
func NewRedisBridge(client *redis.Client) *RedisBridge {
	return &RedisBridge{
		client:   client,
		instance: uuid.NewString(),
		lg:       log.With().Str("component", "realtime.bridge").Logger(),
	}
}

// Publish implements Bridge.
func (b *RedisBridge) Publish(ctx context.Context, env BridgeEnvelope) error {
	env.Origin = b.instance
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, bridgeChannel, data).Err()
}

// Subscribe implements Bridge. It runs the receive loop in a goroutine that
// exits when ctx is canceled; malformed envelopes are logged and skipped.
func (b *RedisBridge) Subscribe(ctx context.Context, fn func(BridgeEnvelope)) {
	sub := b.client.Subscribe(ctx, bridgeChannel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env BridgeEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.lg.Warn().Err(err).Msg("bad bridge envelope")
					continue
				}
				if env.Origin == b.instance {
					continue
				}
				fn(env)
			}
		}
	}()
}
