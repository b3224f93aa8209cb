// Package candidate implements C4: the short-lived stability gate a face
// must pass through (N_stability consecutive matches) before it is handed
// to the quality collector.
package candidate

import (
	"fmt"
	"sync"
	"time"

	"github.com/yourco/faceid/internal/models"
)

// Gate holds provisional identities keyed by an internally assigned
// opaque id. Every method takes the gate's mutex, so concurrent calls are
// safe; in practice the pipeline's single frame-processing goroutine is
// the only caller.
type Gate struct {
	mu          sync.Mutex
	candidates  map[string]*models.DetectionCandidate
	nextID      int64
	dupThresh   float64
	stabilityN  int
	staleAfter  time.Duration
}

func New(dupThreshold float64, stabilityCount int, staleAfter time.Duration) *Gate {
	return &Gate{
		candidates: map[string]*models.DetectionCandidate{},
		dupThresh:  dupThreshold,
		stabilityN: stabilityCount,
		staleAfter: staleAfter,
	}
}

// Observe implements spec.md §4.2 steps 3-4: match e against the nearest
// existing candidate within the duplicate threshold, or start a new one;
// report whether the stability gate (N_stability) has now been reached.
// When ready=true the caller must remove the candidate via Evict's sibling
// Remove before handing off to quality collection.
func (g *Gate) Observe(e models.Embedding, now time.Time) (id string, ready bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	bestID := ""
	bestDist := -1.0
	for cid, c := range g.candidates {
		d := e.Distance(c.Embedding)
		if bestID == "" || d < bestDist {
			bestID, bestDist = cid, d
		}
	}

	if bestID != "" && bestDist <= g.dupThresh {
		c := g.candidates[bestID]
		c.ConsecutiveCount++
		c.LastSeenAt = now
		c.Embedding = e
		return bestID, c.ConsecutiveCount >= g.stabilityN
	}

	g.nextID++
	newID := fmt.Sprintf("cand-%d", g.nextID)
	g.candidates[newID] = &models.DetectionCandidate{
		CandidateID:      newID,
		Embedding:        e,
		ConsecutiveCount: 1,
		LastSeenAt:       now,
	}
	return newID, g.stabilityN <= 1
}

// Remove drops a candidate that has passed the stability gate and is
// being handed off to quality collection.
func (g *Gate) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.candidates, id)
}

// Evict drops every candidate whose last observation is older than
// staleAfter (spec.md §4.2 "candidate eviction"). Tracker.Step runs it
// just before the candidate probe, only for faces that matched neither a
// known identity nor a registry entry.
func (g *Gate) Evict(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, c := range g.candidates {
		if now.Sub(c.LastSeenAt) > g.staleAfter {
			delete(g.candidates, id)
		}
	}
}

// Len reports the current candidate count, used for metrics/tests.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.candidates)
}
