package models

import "time"

// QualityRating buckets a saved still's sharpness for display purposes.
// Downgrading below Q_min never blocks admission — it only changes this
// label (see RatingFor in quality.go).
type QualityRating string

const (
	QualityExcellent QualityRating = "excellent"
	QualityVeryGood  QualityRating = "very_good"
	QualityGood      QualityRating = "good"
	QualityFair      QualityRating = "fair"
	QualityPoor      QualityRating = "poor"
)

// RegistryEntry is the durable record for one admitted identity. Once
// ImageKey is set it never changes; ReferenceEmbedding is set exactly once
// at admission and is thereafter immutable. Only LastSeen, DetectionCount,
// Enrichment, and RemoteURL are mutable after creation.
type RegistryEntry struct {
	PersonID           string          `json:"person_id"`
	FirstSeen          time.Time       `json:"first_seen"`
	LastSeen           time.Time       `json:"last_seen"`
	DetectionCount     int             `json:"detection_count"`
	ImageKey           string          `json:"image_key"`
	Sharpness          float64         `json:"sharpness"`
	QualityRating      QualityRating   `json:"quality_rating"`
	ReferenceEmbedding Embedding       `json:"reference_embedding"`
	Enrichment         EnrichmentState `json:"enrichment"`
	RemoteURL          string          `json:"remote_url,omitempty"`
}

// Clone returns a deep-enough copy for safe use outside the registry's lock
// (the embedding and image-url slices are copied; all other fields are
// value types).
func (e RegistryEntry) Clone() RegistryEntry {
	out := e
	out.ReferenceEmbedding = e.ReferenceEmbedding.Clone()
	out.Enrichment = e.Enrichment.clone()
	return out
}

// PersonInfo is the read-only overlay projection of a RegistryEntry. It is
// never cached independently of the registry (spec §9: ban any secondary
// cached person info) — ProjectPersonInfo computes it on demand from a
// registry snapshot.
type PersonInfo struct {
	PersonID  string
	Status    EnrichmentTag
	Summary   string
	FullName  string
	ImageURLs []string
}

// ProjectPersonInfo derives the overlay-facing view of an entry.
func ProjectPersonInfo(entry RegistryEntry) PersonInfo {
	return PersonInfo{
		PersonID:  entry.PersonID,
		Status:    entry.Enrichment.Tag,
		Summary:   entry.Enrichment.DisplayText,
		FullName:  entry.Enrichment.FullName,
		ImageURLs: entry.Enrichment.ImageURLs,
	}
}
