package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	jobrt "github.com/Ladvien/self-sensored-sub003/internal/jobs/runtime"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

const DefaultChannel = "healthingest:jobs"

type Config struct {
	Addr     string
	Password string
	DB       int
	// Channel prefixes the wake and event channels.
	Channel string
}

// JobBus carries job wake-ups from ingest nodes to workers and job
// lifecycle events to anyone listening. Delivery is best effort: workers
// still poll, and events are informational.
type JobBus interface {
	NotifyJob(ctx context.Context, jobID uuid.UUID) error
	PublishJobEvent(ctx context.Context, ev jobrt.Event) error
	StartWakeForwarder(ctx context.Context, wake chan<- struct{}) error
	StartEventForwarder(ctx context.Context, onEvent func(ev jobrt.Event)) error
	Ping(ctx context.Context) error
	Close() error
}

type jobBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewJobBus(log *logger.Logger, cfg Config) (JobBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewJobBusFromClient(log, rdb, cfg.Channel), nil
}

func NewJobBusFromClient(log *logger.Logger, rdb *goredis.Client, channel string) JobBus {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	return &jobBus{
		log:     log.With("service", "RedisJobBus"),
		rdb:     rdb,
		channel: channel,
	}
}

func (b *jobBus) wakeChannel() string  { return b.channel + ":wake" }
func (b *jobBus) eventChannel() string { return b.channel + ":events" }

func (b *jobBus) NotifyJob(ctx context.Context, jobID uuid.UUID) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis job bus not initialized")
	}
	return b.rdb.Publish(ctx, b.wakeChannel(), jobID.String()).Err()
}

func (b *jobBus) PublishJobEvent(ctx context.Context, ev jobrt.Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis job bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.eventChannel(), raw).Err()
}

// StartWakeForwarder turns wake-up messages into non-blocking sends on wake.
// A full channel already guarantees a pending wake-up, so extra messages
// are dropped.
func (b *jobBus) StartWakeForwarder(ctx context.Context, wake chan<- struct{}) error {
	if wake == nil {
		return fmt.Errorf("wake channel required")
	}
	return b.forward(ctx, b.wakeChannel(), func(string) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
}

func (b *jobBus) StartEventForwarder(ctx context.Context, onEvent func(ev jobrt.Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	return b.forward(ctx, b.eventChannel(), func(payload string) {
		var ev jobrt.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			b.log.Warn("bad redis job event payload", "error", err)
			return
		}
		onEvent(ev)
	})
}

func (b *jobBus) forward(ctx context.Context, channel string, onMsg func(payload string)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis job bus not initialized")
	}
	sub := b.rdb.Subscribe(ctx, channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe %s: %w", channel, err)
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
				onMsg(m.Payload)
			}
		}
	}()
	return nil
}

func (b *jobBus) Ping(ctx context.Context) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis job bus not initialized")
	}
	return b.rdb.Ping(ctx).Err()
}

func (b *jobBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
