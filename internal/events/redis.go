package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentwatch/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisClient is the subset of *redis.Client the publisher uses
type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes changes to a Redis pub/sub channel
type RedisPublisher struct {
	client  redisClient
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher connects to Redis and verifies the connection with a ping
func NewRedisPublisher(cfg *config.EventsConfig, logger *zap.Logger) (*RedisPublisher, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("redis configuration is nil or empty")
	}

	rc := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		PoolSize:    10,
	})

	timeout, cancelFunc := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancelFunc()
	if err := rc.Ping(timeout).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis connect error: %w", err)
	}

	return newRedisPublisher(rc, cfg.Channel, logger), nil
}

func newRedisPublisher(client redisClient, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.Named("events"),
	}
}

// Publish sends change as JSON. A zero At is stamped with the current time.
func (p *RedisPublisher) Publish(ctx context.Context, change Change) error {
	if change.Type == "" {
		change.Type = TypeChanged
	}
	if change.At.IsZero() {
		change.At = time.Now()
	}

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}

	p.logger.Debug("Published change",
		zap.String("channel", p.channel),
		zap.Int64("receivers", receivers))
	return nil
}

// Close closes the redis client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
