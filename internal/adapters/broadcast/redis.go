package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/musicroom/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultChannel = "musicroom:broadcast"

// RedisGateway publishes events to a Redis channel; every instance relays
// what it receives on that channel to its local Hub.
type RedisGateway struct {
	rdb     *redis.Client
	channel string
	local   *Hub
	timeout time.Duration
}

func NewRedisGateway(rdb *redis.Client, channel string, local *Hub) *RedisGateway {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisGateway{rdb: rdb, channel: channel, local: local, timeout: 2 * time.Second}
}

// Publish implements core.Gateway. If Redis refuses the frame it is still
// delivered to this instance's observers.
func (g *RedisGateway) Publish(room domain.RoomID, event string, payload any) {
	b, err := Encode(room, event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "broadcast.redis").Str("event", event).Msg("encode event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	if err := g.rdb.Publish(ctx, g.channel, b).Err(); err != nil {
		log.Error().Err(err).Str("module", "broadcast.redis").Str("room", string(room)).Msg("publish failed, delivering locally")
		g.local.Deliver(room, b)
	}
}

// Run relays channel messages to the local hub until ctx is done. It returns
// once the subscription is confirmed or fails; relaying continues in the
// background.
func (g *RedisGateway) Run(ctx context.Context) error {
	sub := g.rdb.Subscribe(ctx, g.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", g.channel, err)
	}
	log.Info().Str("module", "broadcast.redis").Str("channel", g.channel).Msg("subscribed")

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
				g.relay(msg.Payload)
			}
		}
	}()
	return nil
}

func (g *RedisGateway) relay(payload string) {
	var env struct {
		Room domain.RoomID `json:"room"`
	}
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.Room == "" {
		log.Warn().Str("module", "broadcast.redis").Msg("drop malformed frame")
		return
	}
	g.local.Deliver(env.Room, []byte(payload))
}
