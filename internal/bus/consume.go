package bus

import (
	"context"
	"sync"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

// Delivery is an event received by a Consumer, with the topic it came from.
type Delivery struct {
	Topic string `json:"topic" yaml:"topic"`
	Event Event  `json:"event" yaml:"event"`
}

// Consumer funnels events from one or more topics into a single stream.
// Handlers block until Next takes the event or the consumer is closed.
type Consumer struct {
	deliveries chan Delivery
	done       chan struct{}
	once       sync.Once
}

// NewConsumer subscribes to every topic on b.
func NewConsumer(ctx context.Context, b Bus, topics ...string) (*Consumer, error) {
	if len(topics) == 0 {
		return nil, errors.ValidationError("at least one topic is required")
	}

	c := &Consumer{
		deliveries: make(chan Delivery, 64),
		done:       make(chan struct{}),
	}

	for _, topic := range topics {
		if err := b.Subscribe(ctx, topic, c.handler(topic)); err != nil {
			c.Close()
			return nil, errors.Wrap(errors.CodeUnavailable, "subscribe to "+topic, err)
		}
	}
	return c, nil
}

func (c *Consumer) handler(topic string) Handler {
	return func(ctx context.Context, event Event) error {
		select {
		case c.deliveries <- Delivery{Topic: topic, Event: event}:
			return nil
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Next blocks until an event arrives or ctx is done.
func (c *Consumer) Next(ctx context.Context) (Delivery, error) {
	select {
	case d := <-c.deliveries:
		return d, nil
	case <-c.done:
		return Delivery{}, errors.New(errors.CodeUnavailable, "consumer is closed")
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

// Close releases blocked handlers. Later events are dropped.
func (c *Consumer) Close() {
	c.once.Do(func() { close(c.done) })
}
