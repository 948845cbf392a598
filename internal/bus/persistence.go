package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

// LoggedEvent is an event as recorded in the event log.
type LoggedEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLogger appends published events to a JSON lines file so a run can be
// inspected or replayed onto another bus later.
type EventLogger struct {
	logPath string
	mu      sync.Mutex
	file    *os.File
	enabled bool
	encoder *json.Encoder
}

// NewEventLogger creates a new event logger.
// A disabled logger accepts every call and writes nothing.
func NewEventLogger(logPath string, enabled bool) (*EventLogger, error) {
	l := &EventLogger{
		logPath: logPath,
		enabled: enabled,
	}

	if !enabled {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, errors.IOError("create event log directory", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.IOError("open event log", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)

	return l, nil
}

// Log appends an event to the log file.
func (l *EventLogger) Log(topic string, event Event) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeInternal, "event logger is closed")
	}

	entry := LoggedEvent{
		Event:     event,
		Topic:     topic,
		Timestamp: time.Now(),
	}
	if err := l.encoder.Encode(entry); err != nil {
		return errors.IOError("write event", err)
	}
	return nil
}

// GetEvents reads logged events newer than since, oldest first.
// If limit > 0, at most limit events are returned.
func (l *EventLogger) GetEvents(since time.Time, limit int) ([]LoggedEvent, error) {
	if !l.enabled {
		return nil, errors.New(errors.CodeUnavailable, "event logging is disabled")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return ReadEvents(l.logPath, since, limit)
}

// ReadEvents reads an event log file written by an EventLogger.
// Malformed lines are skipped; a missing file yields no events.
func ReadEvents(path string, since time.Time, limit int) ([]LoggedEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []LoggedEvent{}, nil
		}
		return nil, errors.IOError("open event log", err)
	}
	defer file.Close()

	var events []LoggedEvent
	scanner := bufio.NewScanner(file)

	// Chunk records can be large.
	const maxScanTokenSize = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		var entry LoggedEvent
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}

		if entry.Timestamp.After(since) {
			events = append(events, entry)
			if limit > 0 && len(events) >= limit {
				break
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.IOError("scan event log", err)
	}

	return events, nil
}

// Replay publishes events onto bus in order and returns how many were sent.
func Replay(ctx context.Context, bus Bus, events []LoggedEvent) (int, error) {
	for i, entry := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := bus.Publish(ctx, entry.Topic, entry.Event); err != nil {
			return i, errors.Wrap(errors.CodeUnavailable, "replay event "+entry.Event.ID, err)
		}
	}
	return len(events), nil
}

// Close closes the log file.
func (l *EventLogger) Close() error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return errors.IOError("close event log", err)
		}
		l.file = nil
		l.encoder = nil
	}

	return nil
}

// IsEnabled returns true if the logger is enabled.
func (l *EventLogger) IsEnabled() bool {
	return l.enabled
}
