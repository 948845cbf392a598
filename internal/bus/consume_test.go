package bus

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/ricesearch/rice-chunk/internal/pkg/logger"
)

func TestNewConsumer_NoTopics(t *testing.T) {
	if _, err := NewConsumer(context.Background(), NewMemoryBus(logger.Nop())); err == nil {
		t.Error("NewConsumer() without topics should fail")
	}
}

func TestNewConsumer_ClosedBus(t *testing.T) {
	b := NewMemoryBus(logger.Nop())
	b.Close()

	if _, err := NewConsumer(context.Background(), b, TopicChunks); err == nil {
		t.Error("NewConsumer() on a closed bus should fail")
	}
}

func TestConsumer_ReceivesReplayedEvents(t *testing.T) {
	b := NewMemoryBus(logger.Nop())
	defer b.Close()

	c, err := NewConsumer(context.Background(), b, TopicChunks, TopicDiagnostics)
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}
	defer c.Close()

	events := []LoggedEvent{
		{Topic: TopicChunks, Event: Event{ID: "1", Type: TypeChunkRecord}},
		{Topic: TopicDiagnostics, Event: Event{ID: "2", Type: TypeDiagnostic}},
		{Topic: "other", Event: Event{ID: "3"}},
		{Topic: TopicChunks, Event: Event{ID: "4", Type: TypeChunkRemoved}},
	}
	if _, err := Replay(context.Background(), b, events); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var got []string
	for j := 0; j < 3; j++ {
		d, err := c.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		got = append(got, d.Topic+"/"+d.Event.ID)
	}
	sort.Strings(got)

	want := []string{TopicChunks + "/1", TopicChunks + "/4", TopicDiagnostics + "/2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("deliveries = %v, want %v", got, want)
			break
		}
	}
}

func TestConsumer_NextCancelled(t *testing.T) {
	b := NewMemoryBus(logger.Nop())
	defer b.Close()

	c, err := NewConsumer(context.Background(), b, TopicChunks)
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestConsumer_CloseReleasesHandlers(t *testing.T) {
	b := NewMemoryBus(logger.Nop())

	c, err := NewConsumer(context.Background(), b, TopicChunks)
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}

	// More events than the buffer holds, none of them read.
	for i := 0; i < 100; i++ {
		if err := b.Publish(context.Background(), TopicChunks, Event{ID: string(rune('a' + i%26))}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	c.Close()
	c.Close()

	if !b.DrainTimeout(time.Second) {
		t.Fatal("handlers still blocked after Close()")
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
