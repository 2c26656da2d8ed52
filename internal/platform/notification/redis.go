package notification

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSender publishes to hospital:<id> or user:<id> channels, which the
// dashboard gateways subscribe to.
type RedisSender struct {
	client publisher
}

func NewRedisSender(client *redis.Client) *RedisSender {
	return &RedisSender{client: client}
}

func (s *RedisSender) Send(ctx context.Context, n Notification) error {
	data, err := n.payload()
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, n.Channel(), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.Channel(), err)
	}
	return nil
}
