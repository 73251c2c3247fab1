package eventbus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
)

// MemoryBus implements Bus with in-process channels/goroutines. It is
// the default when no NATS URL is configured, grounded on the teacher's
// MemoryEventBus (internal/events/bus/memory.go), trimmed to exact-subject
// subscriptions since this module has no wildcard consumers.
type MemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*memorySub
	log           *logger.Logger
	closed        bool
}

type memorySub struct {
	bus     *MemoryBus
	subject string
	handler Handler
	mu      sync.Mutex
	active  bool
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	return &MemoryBus{
		subscriptions: make(map[string][]*memorySub),
		log:           log,
	}
}

// Publish delivers event to every active subscriber of subject.
func (b *MemoryBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("eventbus: bus is closed")
	}

	for _, sub := range b.subscriptions[subject] {
		sub.mu.Lock()
		active := sub.active
		sub.mu.Unlock()
		if !active {
			continue
		}
		go func(s *memorySub, e *Event) {
			if err := s.handler(ctx, e); err != nil {
				b.log.Error("eventbus handler error", zap.String("subject", subject), zap.Error(err))
			}
		}(sub, event)
	}
	return nil
}

// Subscribe registers handler for subject.
func (b *MemoryBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("eventbus: bus is closed")
	}

	sub := &memorySub{bus: b, subject: subject, handler: handler, active: true}
	b.subscriptions[subject] = append(b.subscriptions[subject], sub)
	return sub, nil
}

// Close deactivates every subscription.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, subs := range b.subscriptions {
		for _, s := range subs {
			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
		}
	}
	b.subscriptions = make(map[string][]*memorySub)
}

// IsConnected always reports true for an open in-memory bus.
func (b *MemoryBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Unsubscribe removes this subscription from its bus.
func (s *memorySub) Unsubscribe() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs := s.bus.subscriptions[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.bus.subscriptions[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

// IsValid reports whether the subscription is still active.
func (s *memorySub) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
