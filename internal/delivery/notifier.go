// Package delivery publishes cleaned articles to downstream consumers
// over a Redis channel.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orbitwire/newsclean/internal/domain"
	"github.com/orbitwire/newsclean/internal/logging"
)

const connectionTimeout = 5 * time.Second

// DefaultChannel is the publish channel when none is configured.
const DefaultChannel = "newsclean:cleaned"

// RedisNotifier publishes cleaned articles as JSON on a Redis pub/sub
// channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  logging.Logger
}

// NewRedisNotifier connects to Redis and verifies the connection.
func NewRedisNotifier(addr, password string, db int, channel string, logger logging.Logger) (*RedisNotifier, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info("redis connection established",
		logging.String("addr", addr),
		logging.String("channel", channel))

	return &RedisNotifier{client: client, channel: channel, logger: logger}, nil
}

// NotifyCleaned publishes one cleaned article.
func (n *RedisNotifier) NotifyCleaned(ctx context.Context, article *domain.Article) error {
	payload, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("encode article: %w", err)
	}

	if err = n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish article %s: %w", article.ID, err)
	}

	n.logger.Debug("cleaned article published",
		logging.String("article_id", article.ID),
		logging.String("channel", n.channel))
	return nil
}

// Close releases the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
