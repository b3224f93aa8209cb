package models

import "testing"

func TestEmbeddingNormalizedHasUnitNorm(t *testing.T) {
	e := Embedding{3, 4}
	n := e.Normalized()
	if got := n.Distance(Embedding{0, 0}); got < 0.999 || got > 1.001 {
		t.Fatalf("expected unit norm, got distance from origin %v", got)
	}
	if e[0] != 3 || e[1] != 4 {
		t.Fatal("Normalized must not mutate the receiver")
	}
}

func TestEmbeddingNormalizedZeroVector(t *testing.T) {
	e := Embedding{0, 0, 0}
	n := e.Normalized()
	if len(n) != 3 {
		t.Fatalf("expected length preserved, got %d", len(n))
	}
}

func TestEmbeddingDistance(t *testing.T) {
	a := Embedding{0, 0}
	b := Embedding{3, 4}
	if got := a.Distance(b); got != 5 {
		t.Fatalf("expected distance 5, got %v", got)
	}
}
