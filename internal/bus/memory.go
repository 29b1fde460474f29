package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/huddleworks/livesession/internal/metrics"
)

// MemoryBus is an in-process pub/sub used for unit tests and local
// prototyping. It mirrors the broadcast channel contract: no ordering
// across publishers and drop-on-full subscriber buffers.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]chan Message
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan Message)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	if err := ctx.Err(); err != nil {
		metrics.IncDropReason("canceled")
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}
	// The read lock spans the sends so Close cannot close a channel
	// mid-publish. Sends are non-blocking, so holding it is cheap.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
			// At-most-once: a slow subscriber loses the message.
			metrics.IncDropReason("buffer_full")
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ch := make(chan Message, subscriberBuffer)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	return &memSub{b: b, topic: topic, ch: ch}, nil
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Message

	closeOnce sync.Once
}

func (s *memSub) C() <-chan Message {
	return s.ch
}

func (s *memSub) Close() error {
	s.closeOnce.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s.ch {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		close(s.ch)
	})
	return nil
}

// Ensure compliance
var _ Bus = (*MemoryBus)(nil)
