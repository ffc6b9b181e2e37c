package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Relay carries live updates between service instances.
type Relay interface {
	// Publish sends msg to every instance holding sockets for session id.
	Publish(ctx context.Context, id string, msg []byte) error
	// Run delivers published messages until ctx is done.
	Run(ctx context.Context, deliver func(id string, msg []byte)) error
}

// DefaultRelayPrefix is the channel prefix used by [RedisRelay].
const DefaultRelayPrefix = "panelgrid:artifact:"

// RedisRelay publishes updates on one Redis channel per session.
type RedisRelay struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRelay uses client. An empty prefix selects DefaultRelayPrefix.
func NewRedisRelay(client redis.UniversalClient, prefix string) *RedisRelay {
	if prefix == "" {
		prefix = DefaultRelayPrefix
	}
	return &RedisRelay{client: client, prefix: prefix}
}

func (r *RedisRelay) Publish(ctx context.Context, id string, msg []byte) error {
	if err := r.client.Publish(ctx, r.prefix+id, msg).Err(); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}

func (r *RedisRelay) Run(ctx context.Context, deliver func(id string, msg []byte)) error {
	ps := r.client.PSubscribe(ctx, r.prefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe updates: %w", err)
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			deliver(strings.TrimPrefix(msg.Channel, r.prefix), []byte(msg.Payload))
		}
	}
}

var _ Relay = (*RedisRelay)(nil)
