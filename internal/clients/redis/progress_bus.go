package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/feastline/feastline-backend/internal/platform/envutil"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/sse"
)

// ProgressBus mirrors workflow step transitions over Redis pub/sub so that
// replicas other than the one running a workflow can serve its SSE stream.
type ProgressBus interface {
	Publish(ctx context.Context, msg sse.Message) error
	StartForwarder(ctx context.Context, onMsg func(m sse.Message))
	Close() error
}

type progressBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	// id marks this replica's publishes; Redis delivers a publisher its own
	// messages, and the forwarder must not replay them into the local hub.
	id string
}

func NewProgressBus(log *logger.Logger) (ProgressBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := envutil.Str("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := envutil.Str("REDIS_PROGRESS_CHANNEL", "workflow_progress")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &progressBus{
		log:     log.With("service", "RedisProgressBus"),
		rdb:     rdb,
		channel: channel,
		id:      uuid.NewString(),
	}, nil
}

func (b *progressBus) Publish(ctx context.Context, msg sse.Message) error {
	msg.Origin = b.id
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// decode parses a bus payload and reports whether it should reach the local
// hub. Self-originated messages were already broadcast by this replica's own
// observer.
func (b *progressBus) decode(payload string) (sse.Message, bool) {
	var msg sse.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.log.Warn("Dropping malformed progress message", "error", err)
		return sse.Message{}, false
	}
	if msg.Origin == b.id {
		return sse.Message{}, false
	}
	return msg, true
}

func (b *progressBus) StartForwarder(ctx context.Context, onMsg func(m sse.Message)) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				msg, forward := b.decode(m.Payload)
				if !forward {
					continue
				}
				onMsg(msg)
			}
		}
	}()
}

func (b *progressBus) Close() error {
	return b.rdb.Close()
}
