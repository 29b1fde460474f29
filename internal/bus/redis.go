// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/huddleworks/livesession/internal/metrics"
)

// RedisBus is a Redis pub/sub implementation of Bus. Redis channels match
// the protocol contract exactly: fire-and-forget fan-out with no replay for
// late subscribers.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// NewRedisBus connects to Redis and verifies the connection with a ping.
func NewRedisBus(config RedisConfig, logger zerolog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", config.Addr).
		Int("db", config.DB).
		Msg("connected to Redis bus")

	return &RedisBus{client: client, logger: logger}, nil
}

// NewRedisBusFromClient wraps an existing client (used by tests).
func NewRedisBusFromClient(client *redis.Client, logger zerolog.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for topic %q: %w", topic, err)
	}
	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)

	// Force the subscription onto the wire before returning, so a publish
	// that follows Subscribe is not silently missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe topic %q: %w", topic, err)
	}

	sub := &redisSub{
		ps:     ps,
		ch:     make(chan Message, subscriberBuffer),
		logger: b.logger,
	}
	go sub.pump(ps.Channel())
	return sub, nil
}

// Close closes the underlying Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSub struct {
	ps     *redis.PubSub
	ch     chan Message
	logger zerolog.Logger

	closeOnce sync.Once
}

// pump converts raw Redis messages into envelopes. It must never block on
// the local buffer; a full buffer drops the message.
func (s *redisSub) pump(in <-chan *redis.Message) {
	defer close(s.ch)
	for raw := range in {
		var msg Message
		if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
			metrics.IncDropReason("decode")
			s.logger.Warn().Err(err).Str("channel", raw.Channel).Msg("dropping undecodable bus message")
			continue
		}
		select {
		case s.ch <- msg:
		default:
			metrics.IncDropReason("buffer_full")
		}
	}
}

func (s *redisSub) C() <-chan Message {
	return s.ch
}

func (s *redisSub) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ps.Close()
	})
	return err
}

var _ Bus = (*RedisBus)(nil)
