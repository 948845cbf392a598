package bus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/rice-chunk/internal/pkg/logger"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(logger.Nop())
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	// Subscribe to topic
	err := bus.Subscribe(context.Background(), "test.topic", func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Publish events
	wg.Add(3)
	for i := 0; i < 3; i++ {
		err := bus.Publish(context.Background(), "test.topic", Event{
			ID:   fmt.Sprintf("test-%d", i),
			Type: TypeChunkRecord,
		})
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	// Wait for handlers
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Success
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for events")
	}

	if got := received.Load(); got != 3 {
		t.Errorf("Received %d events, want 3", got)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.Nop())
	defer bus.Close()

	var count1, count2 atomic.Int32
	var wg sync.WaitGroup

	// First subscriber
	bus.Subscribe(context.Background(), "test.topic", func(ctx context.Context, event Event) error {
		count1.Add(1)
		wg.Done()
		return nil
	})

	// Second subscriber
	bus.Subscribe(context.Background(), "test.topic", func(ctx context.Context, event Event) error {
		count2.Add(1)
		wg.Done()
		return nil
	})

	// Publish one event - both subscribers should receive
	wg.Add(2)
	bus.Publish(context.Background(), "test.topic", Event{ID: "test", Type: "test"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timeout")
	}

	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("Expected both subscribers to receive 1 event, got %d and %d", count1.Load(), count2.Load())
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.Nop())
	defer bus.Close()

	// Publishing to a topic with no subscribers should not error
	err := bus.Publish(context.Background(), "empty.topic", Event{ID: "test", Type: "test"})
	if err != nil {
		t.Errorf("Publish() to empty topic error = %v", err)
	}
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(logger.Nop())

	// Close the bus
	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Operations should fail after close
	err := bus.Publish(context.Background(), "test", Event{})
	if err == nil {
		t.Error("Publish() after Close() should error")
	}

	err = bus.Subscribe(context.Background(), "test", func(ctx context.Context, event Event) error {
		return nil
	})
	if err == nil {
		t.Error("Subscribe() after Close() should error")
	}
}

func TestMemoryBus_Concurrent(t *testing.T) {
	bus := NewMemoryBus(logger.Nop())
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	// Subscribe
	bus.Subscribe(context.Background(), "concurrent", func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	// Publish concurrently
	numPublishers := 10
	eventsPerPublisher := 100
	wg.Add(numPublishers * eventsPerPublisher)

	for p := 0; p < numPublishers; p++ {
		go func(publisher int) {
			for i := 0; i < eventsPerPublisher; i++ {
				bus.Publish(context.Background(), "concurrent", Event{
					ID:   "test",
					Type: "test",
				})
			}
		}(p)
	}

	// Wait with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Timeout: received %d events, expected %d", received.Load(), numPublishers*eventsPerPublisher)
	}

	expected := int32(numPublishers * eventsPerPublisher)
	if got := received.Load(); got != expected {
		t.Errorf("Received %d events, want %d", got, expected)
	}
}

func TestMemoryBus_HandlerErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	bus := NewMemoryBus(logger.NewWithWriter(&buf, "debug", "text"))

	bus.Subscribe(context.Background(), TopicChunks, func(ctx context.Context, event Event) error {
		return errors.New("sink full")
	})

	if err := bus.Publish(context.Background(), TopicChunks, Event{ID: "e1"}); err != nil {
		t.Fatalf("Publish() error = %v, handler errors must not fail the publish", err)
	}
	if !bus.DrainTimeout(time.Second) {
		t.Fatal("handlers did not drain")
	}
	bus.Close()

	if !bytes.Contains(buf.Bytes(), []byte("sink full")) {
		t.Errorf("log output = %q, want handler error", buf.String())
	}
}

func TestMemoryBus_CloseDrainsHandlers(t *testing.T) {
	bus := NewMemoryBus(logger.Nop())

	var done atomic.Bool
	bus.Subscribe(context.Background(), TopicDiagnostics, func(ctx context.Context, event Event) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	})

	bus.Publish(context.Background(), TopicDiagnostics, Event{ID: "d1"})
	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !done.Load() {
		t.Error("Close() returned before in-flight handler finished")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now().UnixMilli()
	e := NewEvent("id-1", TypeDiagnostic, "index", "payload")

	if e.ID != "id-1" || e.Type != TypeDiagnostic || e.Source != "index" || e.Payload != "payload" {
		t.Errorf("NewEvent() = %+v", e)
	}
	if e.Timestamp < before {
		t.Errorf("Timestamp = %d, want >= %d", e.Timestamp, before)
	}
}
