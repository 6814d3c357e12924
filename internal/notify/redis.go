package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis fans events out across API instances using Redis Pub/Sub.
// Each table maps to the channel "<prefix>:<table>".
type Redis struct {
	client  *redis.Client
	prefix  string
	buffer  int
	logger  *zap.Logger
	dropped atomic.Int64
}

// NewRedis builds a notifier publishing under prefix.
func NewRedis(client *redis.Client, prefix string, logger *zap.Logger) *Redis {
	if prefix == "" {
		prefix = "foodforge:changes"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, prefix: prefix, buffer: DefaultBuffer, logger: logger}
}

func (r *Redis) channel(table string) string {
	return r.prefix + ":" + table
}

// Publish sends evt on the table's channel.
func (r *Redis) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	return r.client.Publish(ctx, r.channel(evt.Table), body).Err()
}

// Subscribe opens a Pub/Sub connection for the given tables. With no tables it
// pattern-subscribes to every table under the prefix. It returns once Redis
// has confirmed the subscription.
func (r *Redis) Subscribe(ctx context.Context, tables ...string) (*Subscription, error) {
	var ps *redis.PubSub
	if len(tables) == 0 {
		ps = r.client.PSubscribe(ctx, r.prefix+":*")
	} else {
		channels := make([]string, 0, len(tables))
		for _, t := range tables {
			channels = append(channels, r.channel(t))
		}
		ps = r.client.Subscribe(ctx, channels...)
	}
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("notify: subscribe: %w", err)
	}

	s := newSubscription(r.buffer, tables)
	s.release = func() { _ = ps.Close() }

	msgs := ps.Channel()
	go func() {
		defer close(s.ch)
		for {
			select {
			case <-s.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					r.logger.Warn("discarding undecodable change event",
						zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				if !s.offer(evt) {
					r.dropped.Add(1)
				}
			}
		}
	}()

	s.closeOnCancel(ctx)
	return s, nil
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (r *Redis) Dropped() int64 {
	return r.dropped.Load()
}
