package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

// Bus publishes session events. In a single-process deployment the
// local bus delivers straight to the hub; with REDIS_ADDR set, events
// travel through a redis channel so every replica's hub sees them.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NewBusFromEnv wires the hub behind a redis bus when REDIS_ADDR is
// set, and falls back to direct in-process delivery otherwise.
func NewBusFromEnv(ctx context.Context, log *logger.Logger, hub *Hub) (Bus, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		log.Info("REDIS_ADDR not set; using in-process event bus")
		return NewLocalBus(hub), nil
	}
	bus, err := NewRedisBus(log, addr)
	if err != nil {
		return nil, err
	}
	if err := bus.StartForwarder(ctx, hub.Broadcast); err != nil {
		_ = bus.Close()
		return nil, err
	}
	return bus, nil
}

type localBus struct {
	hub *Hub
}

func NewLocalBus(hub *Hub) Bus {
	return &localBus{hub: hub}
}

func (b *localBus) Publish(_ context.Context, ev Event) error {
	b.hub.Broadcast(ev)
	return nil
}

func (b *localBus) Close() error { return nil }

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisBus(log *logger.Logger, addr string) (*redisBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "session-events"
	}

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

	return &redisBus{
		log:     log.With("service", "RedisEventBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, ev Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis event bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the redis channel and feeds every
// decoded event to onEvent until the context ends.
func (b *redisBus) StartForwarder(ctx context.Context, onEvent func(ev Event)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis event bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad redis event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
