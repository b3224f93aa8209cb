package models

import (
	"image"
	"time"
)

// DetectionCandidate is a short-lived provisional identity awaiting
// stability (§3, §4.2 step 3-4). Owned exclusively by internal/candidate;
// evicted if not matched within T_candidate_stale.
type DetectionCandidate struct {
	CandidateID      string
	Embedding        Embedding
	ConsecutiveCount int
	LastSeenAt       time.Time
}

// QualityFrame is one offered crop plus its sharpness score, held by a
// QualityCollection while waiting for N_quality samples.
type QualityFrame struct {
	Crop      image.Image
	Sharpness float64
}
