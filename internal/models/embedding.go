// Package models holds the data types shared across the tracking and
// enrichment pipeline: embeddings, detections, registry entries, and the
// enrichment state machine.
package models

import "math"

// Embedding is a fixed-length face representation. All embeddings in one
// deployment are produced by the same extractor and share one dimension.
type Embedding []float32

// Distance returns the Euclidean distance between two embeddings.
func (e Embedding) Distance(other Embedding) float64 {
	n := len(e)
	if len(other) < n {
		n = len(other)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(e[i]) - float64(other[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Clone returns an independent copy so callers can retain a reference
// without aliasing a caller-owned slice.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Normalized returns e scaled to unit L2 norm, as both recognition and
// duplicate-suppression distances (spec.md §4.2) assume every stored and
// probed embedding is unit-length. The zero vector is returned unchanged.
func (e Embedding) Normalized() Embedding {
	var sumSq float64
	for _, x := range e {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return e.Clone()
	}
	out := make(Embedding, len(e))
	for i, x := range e {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
