package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stubPublisher struct {
	mu    sync.Mutex
	calls int
}

func (s *stubPublisher) PublishEvent(ctx context.Context, subjectKey string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil
}

func (s *stubPublisher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestEmitCoalescesIdenticalConsecutiveEvents(t *testing.T) {
	pub := &stubPublisher{}
	l := New(3*time.Second, pub)

	base := time.Now()
	l.Emit(Record{Timestamp: base, Classification: "tracked", IDOrName: "person_001", Confidence: 1})
	l.Emit(Record{Timestamp: base.Add(1 * time.Second), Classification: "tracked", IDOrName: "person_001", Confidence: 1})
	l.Emit(Record{Timestamp: base.Add(2 * time.Second), Classification: "tracked", IDOrName: "person_001", Confidence: 1})

	if got := pub.count(); got != 1 {
		t.Fatalf("expected 1 publish after coalescing, got %d", got)
	}
}

func TestEmitAfterWindowExpiresPublishesAgain(t *testing.T) {
	pub := &stubPublisher{}
	l := New(2*time.Second, pub)

	base := time.Now()
	l.Emit(Record{Timestamp: base, Classification: "tracked", IDOrName: "person_001", Confidence: 1})
	l.Emit(Record{Timestamp: base.Add(5 * time.Second), Classification: "tracked", IDOrName: "person_001", Confidence: 1})

	if got := pub.count(); got != 2 {
		t.Fatalf("expected 2 publishes once the window has elapsed, got %d", got)
	}
}

func TestEmitClassificationChangeAlwaysPublishes(t *testing.T) {
	pub := &stubPublisher{}
	l := New(3*time.Second, pub)

	base := time.Now()
	l.Emit(Record{Timestamp: base, Classification: "collecting", IDOrName: "cand-1", Confidence: 0})
	l.Emit(Record{Timestamp: base.Add(100 * time.Millisecond), Classification: "tracked", IDOrName: "cand-1", Confidence: 1})

	if got := pub.count(); got != 2 {
		t.Fatalf("expected 2 publishes on classification change, got %d", got)
	}
}

func TestEmitDistinctIDsDoNotCoalesceTogether(t *testing.T) {
	pub := &stubPublisher{}
	l := New(3*time.Second, pub)

	base := time.Now()
	l.Emit(Record{Timestamp: base, Classification: "tracked", IDOrName: "person_001", Confidence: 1})
	l.Emit(Record{Timestamp: base.Add(10 * time.Millisecond), Classification: "tracked", IDOrName: "person_002", Confidence: 1})

	if got := pub.count(); got != 2 {
		t.Fatalf("expected 2 publishes for distinct ids, got %d", got)
	}
}
