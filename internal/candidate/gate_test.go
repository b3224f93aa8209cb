package candidate

import (
	"testing"
	"time"

	"github.com/yourco/faceid/internal/models"
)

func TestObserveRequiresConsecutiveMatchesBeforeReady(t *testing.T) {
	g := New(0.45, 5, 2*time.Second)
	now := time.Now()
	e := models.Embedding{1, 0, 0}

	var id string
	var ready bool
	for i := 0; i < 4; i++ {
		id, ready = g.Observe(e, now)
		if ready {
			t.Fatalf("expected not ready before reaching stability count, iteration %d", i)
		}
		now = now.Add(100 * time.Millisecond)
	}
	id2, ready := g.Observe(e, now)
	if !ready {
		t.Fatal("expected ready after N_stability consecutive matches")
	}
	if id != id2 {
		t.Fatalf("expected same candidate id across matches, got %q then %q", id, id2)
	}
}

func TestObserveDistinctEmbeddingsCreateDistinctCandidates(t *testing.T) {
	g := New(0.45, 5, 2*time.Second)
	now := time.Now()
	id1, _ := g.Observe(models.Embedding{1, 0, 0}, now)
	id2, _ := g.Observe(models.Embedding{0, 1, 0}, now)
	if id1 == id2 {
		t.Fatal("expected distinct candidates for far-apart embeddings")
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 candidates, got %d", g.Len())
	}
}

func TestEvictDropsStaleCandidates(t *testing.T) {
	g := New(0.45, 5, 2*time.Second)
	now := time.Now()
	g.Observe(models.Embedding{1, 0, 0}, now)
	if g.Len() != 1 {
		t.Fatal("expected 1 candidate before eviction")
	}

	g.Evict(now.Add(3 * time.Second))
	if g.Len() != 0 {
		t.Fatalf("expected stale candidate evicted, got %d remaining", g.Len())
	}
}

func TestEvictKeepsFreshCandidates(t *testing.T) {
	g := New(0.45, 5, 2*time.Second)
	now := time.Now()
	g.Observe(models.Embedding{1, 0, 0}, now)

	g.Evict(now.Add(1 * time.Second))
	if g.Len() != 1 {
		t.Fatalf("expected fresh candidate to survive, got %d", g.Len())
	}
}

func TestRemoveDropsCandidate(t *testing.T) {
	g := New(0.45, 5, 2*time.Second)
	now := time.Now()
	id, _ := g.Observe(models.Embedding{1, 0, 0}, now)
	g.Remove(id)
	if g.Len() != 0 {
		t.Fatalf("expected candidate removed, got %d", g.Len())
	}
}

func TestFlickerRejectionRestartsStabilityCount(t *testing.T) {
	// S4: a face seen 3 frames then absent past T_candidate_stale must
	// restart stability counting from 1 on reappearance.
	g := New(0.45, 5, 2*time.Second)
	now := time.Now()
	e := models.Embedding{1, 0, 0}

	for i := 0; i < 3; i++ {
		g.Observe(e, now)
		now = now.Add(100 * time.Millisecond)
	}

	now = now.Add(3 * time.Second)
	g.Evict(now)
	if g.Len() != 0 {
		t.Fatal("expected candidate evicted after stale window")
	}

	_, ready := g.Observe(e, now)
	if ready {
		t.Fatal("expected stability count to restart from 1 on reappearance")
	}
}
