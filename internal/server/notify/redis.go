package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"github.com/redis/go-redis/v9"
)

// RedisChannel is the pub/sub channel change events travel on.
const RedisChannel = "geocapsule:capsule-changes"

// RedisBus shares change events between server instances over Redis
// pub/sub. Delivery is best effort, like the websocket push it feeds.
type RedisBus struct {
	rdb *redis.Client
	log logging.Logger
}

func NewRedisBus(rdb *redis.Client, log logging.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, log: log.With("module", "redis_bus")}
}

func (b *RedisBus) Publish(ctx context.Context, ev api.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, RedisChannel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan api.ChangeEvent, error) {
	pubsub := b.rdb.Subscribe(ctx, RedisChannel)
	// Receive waits for the subscription to be confirmed so connection
	// errors surface here rather than as a silent empty stream.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan api.ChangeEvent, subscriberBuffer)
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
				ev, err := decodeEvent(msg.Payload)
				if err != nil {
					b.log.Warn(ctx, "dropping malformed change event", "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeEvent(payload string) (api.ChangeEvent, error) {
	var ev api.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, err
	}
	if ev.CapsuleID == "" {
		return ev, fmt.Errorf("change event without capsule id")
	}
	return ev, nil
}
