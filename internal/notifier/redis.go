package notifier

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
)

const redisPublishTimeout = 2 * time.Second

// RedisPublisher mirrors events onto Redis pub/sub channels named
// "<prefix>:<topic>" so other processes can follow captures.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "modr"
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Channel(topic string) string {
	return p.prefix + ":" + topic
}

// Publish never returns an error; a failed mirror is logged and forgotten.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, ev model.Event) {
	if p == nil || p.client == nil {
		return
	}
	payload, err := encode(topic, ev)
	if err != nil {
		logger.Error("encode event failed", "error", err, "topic", topic)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisPublishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.Channel(topic), payload).Err(); err != nil {
		logger.LogError(ctx, err, "redis publish failed", "channel", p.Channel(topic))
	}
}
