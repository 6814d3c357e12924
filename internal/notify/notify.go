// Package notify delivers insert notifications for ledger and identity rows to
// subscribed observers.
//
// Delivery is asynchronous and best-effort: a subscriber that falls behind its
// buffer loses events, and a Redis subscriber can miss events published while
// it reconnects. Consumers treat events as refresh hints and re-query the
// store when they (re)connect.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Tables that emit change events.
const (
	TableScans    = "meal_scans"
	TableProfiles = "profiles"
)

// TypeInsert is the only change type emitted; rows are never updated or deleted.
const TypeInsert = "INSERT"

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 64

// Event describes one inserted row.
type Event struct {
	Table  string          `json:"table"`
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
	At     time.Time       `json:"at"`
}

// NewInsert builds an insert event carrying record serialized as JSON.
func NewInsert(table string, record any) (Event, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Event{}, fmt.Errorf("notify: encode %s record: %w", table, err)
	}
	return Event{Table: table, Type: TypeInsert, Record: raw, At: time.Now().UTC()}, nil
}

// Decode unmarshals the event's record into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Record, v)
}

// Notifier is the abstraction over different backends.
type Notifier interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe returns a subscription receiving events for the given tables,
	// or for every table when none are given. It ends when ctx is cancelled
	// or Close is called.
	Subscribe(ctx context.Context, tables ...string) (*Subscription, error)
}

// Subscription is a live feed of events. Its channel is closed once the
// subscription has been torn down.
type Subscription struct {
	ch      chan Event
	done    chan struct{}
	tables  map[string]struct{}
	once    sync.Once
	release func()
}

func newSubscription(buffer int, tables []string) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	if len(tables) > 0 {
		s.tables = make(map[string]struct{}, len(tables))
		for _, t := range tables {
			s.tables[t] = struct{}{}
		}
	}
	return s
}

// C returns the event channel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})
}

func (s *Subscription) wants(table string) bool {
	if s.tables == nil {
		return true
	}
	_, ok := s.tables[table]
	return ok
}

// offer hands evt to the subscriber without blocking the publisher.
func (s *Subscription) offer(evt Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// closeOnCancel tears the subscription down when ctx ends.
func (s *Subscription) closeOnCancel(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}
