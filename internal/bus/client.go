// Package bus implements the Mesh's C1 Bus Client: publish/subscribe
// over Redis with auto-reconnect, grounded on
// original_source/backend/orchestrator/src/orchestrator/utils/redis_client.py's
// RedisClient (ping-based keepalive, ~1s poll timeout, backoff on
// connection errors) re-expressed as a goroutine instead of an asyncio task.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/mesh/internal/commons"
)

// Handler processes one message delivered on a channel. Handler panics
// are recovered and logged — they must never tear down the subscriber
// loop, per spec.md §4.1's "handler exceptions never propagate".
type Handler func(channel string, payload []byte)

// Client is the C1 contract.
type Client interface {
	// Publish is fire-and-forget; it connects on demand.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe runs until ctx is cancelled, auto-reconnecting on
	// transport failure. It blocks the calling goroutine.
	Subscribe(ctx context.Context, channels []string, handler Handler)
	// Close is idempotent; it drops the underlying connection.
	Close() error
}

const (
	reconnectBackoff = 5 * time.Second
	pollTimeout      = 1 * time.Second
)

type redisClient struct {
	client    *redis.Client
	logger    commons.Logger
	closeOnce sync.Once
}

// New builds a Bus Client over a *redis.Client. Tests inject a
// redismock-backed client here instead of dialing a real broker.
func New(client *redis.Client, logger commons.Logger) Client {
	return &redisClient{client: client, logger: logger}
}

func (c *redisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.client.Publish(ctx, channel, payload).Err()
}

func (c *redisClient) Subscribe(ctx context.Context, channels []string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pubsub := c.client.Subscribe(ctx, channels...)
		if _, err := pubsub.Receive(ctx); err != nil {
			c.logger.Warnf("bus subscribe: connect failed, retrying: %v", err)
			_ = pubsub.Close()
			if !sleepOrDone(ctx, reconnectBackoff) {
				return
			}
			continue
		}

		c.receiveLoop(ctx, pubsub, channels, handler)
		_ = pubsub.Close()

		if !sleepOrDone(ctx, 1*time.Second) {
			return
		}
	}
}

func (c *redisClient) receiveLoop(ctx context.Context, pubsub *redis.PubSub, channels []string, handler Handler) {
	allowed := make(map[string]bool, len(channels))
	for _, ch := range channels {
		allowed[ch] = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		recvCtx, cancel := context.WithTimeout(ctx, pollTimeout)
		msg, err := pubsub.Receive(recvCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isTimeout(err) {
				continue
			}
			c.logger.Warnf("bus subscribe: transport error, reconnecting: %v", err)
			return
		}

		dispatch(msg, allowed, handler, c.logger)
	}
}

// dispatch decodes one raw pubsub reply and invokes handler only for
// *redis.Message values whose channel is in the allowed set — subscribe
// confirmations and messages on channels we didn't ask for are ignored,
// per spec.md §4.1.
func dispatch(msg interface{}, allowed map[string]bool, handler Handler, logger commons.Logger) {
	m, ok := msg.(*redis.Message)
	if !ok {
		return
	}
	if !allowed[m.Channel] {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("bus handler panic on channel %s: %v", m.Channel, r)
		}
	}()
	handler(m.Channel, []byte(m.Payload))
}

func (c *redisClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.client.Close()
	})
	return err
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
