package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is an in-process fan-out for single-instance deployments and tests.
type Memory struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
}

// NewMemory creates a notifier whose subscriptions buffer up to buffer events.
func NewMemory(buffer int) *Memory {
	return &Memory{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Publish delivers evt to every matching subscriber.
func (m *Memory) Publish(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for s := range m.subs {
		if !s.wants(evt.Table) {
			continue
		}
		if !s.offer(evt) {
			m.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a new subscriber.
func (m *Memory) Subscribe(ctx context.Context, tables ...string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := newSubscription(m.buffer, tables)
	s.release = func() {
		m.mu.Lock()
		delete(m.subs, s)
		m.mu.Unlock()
		close(s.ch)
	}

	m.mu.Lock()
	m.subs[s] = struct{}{}
	m.mu.Unlock()

	s.closeOnCancel(ctx)
	return s, nil
}

// Subscribers returns the number of live subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (m *Memory) Dropped() int64 {
	return m.dropped.Load()
}
