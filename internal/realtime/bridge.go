package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultBridgeChannel is the Redis channel carrying cluster-wide fan-out.
const DefaultBridgeChannel = "medride:fanout"

type envelope struct {
	Channel string          `json:"channel"`
	Frame   json.RawMessage `json:"frame"`
}

// RedisBridge is a Publisher for multi-node deployments. Publish sends the
// frame through Redis Pub/Sub; Run receives every published frame, including
// this node's own, and delivers it to the local hub.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     zerolog.Logger
}

// NewRedisBridge creates a bridge. An empty channel selects DefaultBridgeChannel.
func NewRedisBridge(client *redis.Client, channel string, hub *Hub, log zerolog.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultBridgeChannel
	}
	return &RedisBridge{client: client, channel: channel, hub: hub, log: log}
}

// Publish implements Publisher.
func (b *RedisBridge) Publish(ctx context.Context, channel string, frame []byte) error {
	payload, err := json.Marshal(envelope{Channel: channel, Frame: frame})
	if err != nil {
		return fmt.Errorf("encode fan-out envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe opens the subscription and waits for Redis to confirm it. The
// returned PubSub is handed to Run.
func (b *RedisBridge) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	return sub, nil
}

// Run delivers every frame received on sub to the local hub until ctx is
// cancelled. It closes sub on return.
func (b *RedisBridge) Run(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn().Err(err).Msg("malformed fan-out envelope")
				continue
			}
			b.hub.Deliver(env.Channel, env.Frame)
		}
	}
}
