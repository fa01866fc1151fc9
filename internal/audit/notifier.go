package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const DefaultNotificationQueue = "payment_notifications"

// RedisNotifier pushes events onto a Redis list drained by the mail worker
// (pending-payment and checkout emails).
type RedisNotifier struct {
	redis *redis.Client
	queue string
}

func NewRedisNotifier(client *redis.Client, queue string) *RedisNotifier {
	if queue == "" {
		queue = DefaultNotificationQueue
	}
	return &RedisNotifier{redis: client, queue: queue}
}

func (n *RedisNotifier) AfterCommit(ctx context.Context, event Event) error {
	if n.redis == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	if err := n.redis.RPush(ctx, n.queue, data).Err(); err != nil {
		return fmt.Errorf("queue notification for booking %s: %w", event.BookingID, err)
	}
	return nil
}
