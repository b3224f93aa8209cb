// Package quality implements C3: the quality collection a stabilized
// candidate feeds frames into before one is selected and admitted.
package quality

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/yourco/faceid/internal/models"
)

type collection struct {
	firstEmbedding models.Embedding
	frames         []models.QualityFrame
	startedAt      time.Time
	lastOfferedAt  time.Time
}

// Collector holds pending quality collections keyed by an internally
// assigned handle. Collections are paired to an offered embedding by
// proximity to the first stored embedding (spec.md §4.2's "candidate /
// collection pairing rule") — never by candidate id or bounding box,
// because box coordinates jitter frame to frame.
type Collector struct {
	mu         sync.Mutex
	byHandle   map[string]*collection
	nextHandle int64
	dupThresh  float64
	sampleN    int
	staleAfter time.Duration
}

func New(dupThreshold float64, sampleCount int, staleAfter time.Duration) *Collector {
	return &Collector{
		byHandle:   map[string]*collection{},
		dupThresh:  dupThreshold,
		sampleN:    sampleCount,
		staleAfter: staleAfter,
	}
}

// Offer appends (crop, sharpness) to the collection whose first stored
// embedding is within the duplicate threshold of e, or starts a new one.
// Returns the handle and whether the collection now holds N_quality
// samples.
func (c *Collector) Offer(e models.Embedding, crop image.Image, sharpness float64, now time.Time) (handle string, ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for h, col := range c.byHandle {
		if e.Distance(col.firstEmbedding) <= c.dupThresh {
			col.frames = append(col.frames, models.QualityFrame{Crop: crop, Sharpness: sharpness})
			col.lastOfferedAt = now
			return h, len(col.frames) >= c.sampleN
		}
	}

	c.nextHandle++
	h := fmt.Sprintf("qcoll-%d", c.nextHandle)
	c.byHandle[h] = &collection{
		firstEmbedding: e,
		frames:         []models.QualityFrame{{Crop: crop, Sharpness: sharpness}},
		startedAt:      now,
		lastOfferedAt:  now,
	}
	return h, c.sampleN <= 1
}

// Select returns the max-sharpness frame for handle, breaking ties by
// earliest insertion (a single forward scan keeping the first strict max
// already satisfies this), and removes the collection. ok=false if handle
// is unknown.
func (c *Collector) Select(handle string) (models.QualityFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	col, ok := c.byHandle[handle]
	if !ok || len(col.frames) == 0 {
		return models.QualityFrame{}, false
	}
	delete(c.byHandle, handle)

	best := col.frames[0]
	for _, f := range col.frames[1:] {
		if f.Sharpness > best.Sharpness {
			best = f
		}
	}
	return best, true
}

// Evict drops collections that received no new frame within staleAfter
// (spec.md §4.2 "quality collections that receive no new frame within the
// same window are also dropped").
func (c *Collector) Evict(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, col := range c.byHandle {
		if now.Sub(col.lastOfferedAt) > c.staleAfter {
			delete(c.byHandle, h)
		}
	}
}

// Len reports the current collection count, used for metrics/tests.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byHandle)
}
