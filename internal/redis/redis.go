// Package redis wraps go-redis for the session event channel.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guidechat/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis client to centralize configuration.
type Client struct {
	inner   *redis.Client
	channel string
}

var errNotInitialized = errors.New("redis client not initialized")

// NewRedisClient creates the redis client from app config and pings it.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	host := cfg.Redis.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}

	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &Client{inner: client, channel: cfg.Redis.Channel}, nil
}

// Channel is the pub/sub channel session events are published on.
func (c *Client) Channel() string {
	if c == nil {
		return ""
	}
	return c.channel
}

// Publish sends payload to the event channel.
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.Publish(ctx, c.channel, payload).Err()
}

// Subscribe delivers payloads from the event channel until ctx is cancelled.
// The returned channel is closed when the subscription ends.
func (c *Client) Subscribe(ctx context.Context) (<-chan []byte, error) {
	if c == nil || c.inner == nil {
		return nil, errNotInitialized
	}
	pubsub := c.inner.Subscribe(ctx, c.channel)
	// wait for the subscription confirmation so nothing published afterwards is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c.channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
