package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisClient implements Client over Redis pub/sub. Each subscription
// holds its own PubSub connection so Unsubscribe tears down exactly one
// channel.
type RedisClient struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisClient(rdb *redis.Client, logger *slog.Logger) *RedisClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisClient{rdb: rdb, logger: logger}
}

func (c *RedisClient) Channel(name string) Channel {
	return &redisChannel{client: c, name: name}
}

func (c *RedisClient) Publish(ctx context.Context, name string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, name, payload).Err()
}

func (c *RedisClient) Close() error { return c.rdb.Close() }

type redisChannel struct {
	client   *RedisClient
	name     string
	handlers []struct {
		event string
		fn    Handler
	}
}

func (ch *redisChannel) On(event string, h Handler) Channel {
	ch.handlers = append(ch.handlers, struct {
		event string
		fn    Handler
	}{event, h})
	return ch
}

func (ch *redisChannel) Subscribe(ctx context.Context) (Handle, error) {
	pubsub := ch.client.rdb.Subscribe(ctx, ch.name)

	// Force the subscription onto the wire before returning so callers
	// never miss events published right after Subscribe.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	h := &redisHandle{pubsub: pubsub, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		for m := range pubsub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				ch.client.logger.Warn("realtime: dropping malformed message",
					slog.String("channel", ch.name), slog.String("error", err.Error()))
				continue
			}
			for _, reg := range ch.handlers {
				if reg.event == EventAll || reg.event == msg.Event {
					reg.fn(msg)
				}
			}
		}
	}()

	return h, nil
}

type redisHandle struct {
	pubsub *redis.PubSub
	once   sync.Once
	done   chan struct{}
}

// Unsubscribe closes the subscription. It does not wait for the
// dispatch goroutine to drain: handlers may hold locks that the caller
// of Unsubscribe also holds.
func (h *redisHandle) Unsubscribe() error {
	var err error
	h.once.Do(func() {
		err = h.pubsub.Close()
	})
	return err
}
