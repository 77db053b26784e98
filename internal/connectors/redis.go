// Package connectors wraps the raw client handles (Redis, Postgres) the
// way the teacher's pkg/connectors does, so components depend on a small
// interface instead of a concrete driver type.
package connectors

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConnector exposes the raw *redis.Client for components that need
// pub/sub primitives beyond what the Bus Client interface covers.
type RedisConnector interface {
	Client() *redis.Client
	Close() error
}

type redisConnector struct {
	client *redis.Client
}

// NewRedisConnector parses a redis:// URL and opens a client.
func NewRedisConnector(url string) (RedisConnector, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &redisConnector{client: redis.NewClient(opts)}, nil
}

// NewRedisConnectorFromClient wraps an existing client (used by tests to
// inject a redismock client).
func NewRedisConnectorFromClient(client *redis.Client) RedisConnector {
	return &redisConnector{client: client}
}

func (c *redisConnector) Client() *redis.Client { return c.client }

func (c *redisConnector) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Ping verifies connectivity by issuing a Redis PING.
func Ping(ctx context.Context, c RedisConnector) error {
	return c.Client().Ping(ctx).Err()
}
