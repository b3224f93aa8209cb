// Package eventlog implements the append-only event log of spec.md §6:
// a coalescing slog sink that also publishes each emitted record to NATS
// JetStream so the event log survives beyond the local log file.
package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Publisher is the subset of queue.Producer this package depends on.
type Publisher interface {
	PublishEvent(ctx context.Context, subjectKey string, data interface{}) error
}

// Record is one event-log entry, matching spec.md §6's field list.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	Classification string    `json:"classification"` // "recognized" | "tracked" | "collecting"
	IDOrName       string    `json:"id_or_name"`
	Confidence     float64   `json:"confidence"`
	BoundingBox    [4]float32 `json:"bounding_box"`
}

type lastEvent struct {
	record Record
	at     time.Time
}

// Logger coalesces consecutive identical events within window into one
// record; a changed classification or id always emits immediately.
type Logger struct {
	mu     sync.Mutex
	last   map[string]lastEvent // keyed by id_or_name
	window time.Duration
	pub    Publisher
}

func New(window time.Duration, pub Publisher) *Logger {
	if window <= 0 {
		window = 3 * time.Second
	}
	return &Logger{last: map[string]lastEvent{}, window: window, pub: pub}
}

// Emit logs rec unless it is identical to the immediately preceding event
// for the same id_or_name within the coalescing window.
func (l *Logger) Emit(rec Record) {
	l.mu.Lock()
	prev, ok := l.last[rec.IDOrName]
	same := ok && prev.record.Classification == rec.Classification &&
		prev.record.IDOrName == rec.IDOrName &&
		rec.Timestamp.Sub(prev.at) < l.window
	l.last[rec.IDOrName] = lastEvent{record: rec, at: rec.Timestamp}
	l.mu.Unlock()

	if same {
		return
	}

	slog.Info("event",
		"classification", rec.Classification,
		"id_or_name", rec.IDOrName,
		"confidence", rec.Confidence,
		"bounding_box", rec.BoundingBox,
	)

	if l.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := rec.IDOrName
	if key == "" {
		key = "unknown"
	}
	if err := l.pub.PublishEvent(ctx, key, rec); err != nil {
		slog.Warn("event log: publish to nats failed", "error", err)
	}
}
