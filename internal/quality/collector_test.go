package quality

import (
	"image"
	"testing"
	"time"

	"github.com/yourco/faceid/internal/models"
)

func stubCrop() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func TestOfferNotReadyUntilSampleCount(t *testing.T) {
	c := New(0.45, 3, 2*time.Second)
	now := time.Now()
	e := models.Embedding{1, 0, 0}

	h1, ready := c.Offer(e, stubCrop(), 50, now)
	if ready {
		t.Fatal("expected not ready after 1 of 3 frames")
	}
	h2, ready := c.Offer(e, stubCrop(), 80, now)
	if ready {
		t.Fatal("expected not ready after 2 of 3 frames")
	}
	if h1 != h2 {
		t.Fatalf("expected same handle for similar embeddings, got %q then %q", h1, h2)
	}
	_, ready = c.Offer(e, stubCrop(), 120, now)
	if !ready {
		t.Fatal("expected ready after 3rd frame")
	}
}

func TestSelectPicksMaxSharpness(t *testing.T) {
	c := New(0.45, 3, 2*time.Second)
	now := time.Now()
	e := models.Embedding{1, 0, 0}

	h, _ := c.Offer(e, stubCrop(), 50, now)
	c.Offer(e, stubCrop(), 200, now)
	c.Offer(e, stubCrop(), 90, now)

	best, ok := c.Select(h)
	if !ok {
		t.Fatal("expected selection to succeed")
	}
	if best.Sharpness != 200 {
		t.Fatalf("expected max sharpness 200, got %v", best.Sharpness)
	}
}

func TestSelectRemovesCollection(t *testing.T) {
	c := New(0.45, 1, 2*time.Second)
	now := time.Now()
	h, _ := c.Offer(models.Embedding{1, 0, 0}, stubCrop(), 50, now)
	c.Select(h)
	if c.Len() != 0 {
		t.Fatalf("expected collection removed after selection, got %d", c.Len())
	}
	if _, ok := c.Select(h); ok {
		t.Fatal("expected second select on same handle to fail")
	}
}

func TestOfferPairsByEmbeddingProximityNotPosition(t *testing.T) {
	// Two offers for the same underlying face but with jittered embeddings
	// within tau_dup must land in the same collection.
	c := New(0.45, 5, 2*time.Second)
	now := time.Now()
	h1, _ := c.Offer(models.Embedding{1, 0, 0}, stubCrop(), 50, now)
	h2, _ := c.Offer(models.Embedding{0.99, 0.01, 0}, stubCrop(), 60, now)
	if h1 != h2 {
		t.Fatalf("expected jittered-but-close embeddings to pair into one collection, got %q and %q", h1, h2)
	}
}

func TestEvictDropsStaleCollections(t *testing.T) {
	c := New(0.45, 5, 2*time.Second)
	now := time.Now()
	c.Offer(models.Embedding{1, 0, 0}, stubCrop(), 50, now)

	c.Evict(now.Add(3 * time.Second))
	if c.Len() != 0 {
		t.Fatalf("expected stale collection evicted, got %d", c.Len())
	}
}
