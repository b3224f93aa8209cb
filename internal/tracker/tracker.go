// Package tracker implements C5: the six-step per-face decision function
// that turns one detected face into a Recognized, Tracked, or Collecting
// result, admitting new identities into the registry when a candidate
// clears both the stability and quality gates.
package tracker

import (
	"image"
	"time"

	"github.com/yourco/faceid/internal/candidate"
	"github.com/yourco/faceid/internal/models"
	"github.com/yourco/faceid/internal/quality"
)

// KnownMatcher is the subset of knownset.KnownSet the tracker needs.
type KnownMatcher interface {
	Nearest(e models.Embedding) (label string, dist float64, ok bool)
}

// RegistryProbe is the subset of registry.Registry the tracker needs for
// duplicate suppression and admission.
type RegistryProbe interface {
	AllReferenceEmbeddings() []RefEmbedding
	Touch(id string, now time.Time) error
	Admit(entry models.RegistryEntry) (models.RegistryEntry, error)
}

// RefEmbedding mirrors registry.ReferenceEmbedding so this package does not
// need to import internal/registry just for one struct shape.
type RefEmbedding struct {
	PersonID  string
	Embedding models.Embedding
}

// OnAdmit is invoked synchronously on the pipeline goroutine immediately
// after a new RegistryEntry is durably admitted, so the caller can enqueue
// the upload task (C6) and register the enrichment poller (C7) without the
// tracker importing either package.
type OnAdmit func(entry models.RegistryEntry, crop image.Image)

// Tracker wires C1-C4 together and executes spec.md §4.2's per-face step
// function. Not safe for concurrent Step calls — the pipeline's single
// frame-processing goroutine is the only caller.
type Tracker struct {
	known      KnownMatcher
	reg        RegistryProbe
	candidates *candidate.Gate
	quality    *quality.Collector

	recogThresh float64
	dupThresh   float64
	qMin        float64
	enableQC    bool

	onAdmit OnAdmit
}

func New(known KnownMatcher, reg RegistryProbe, candidates *candidate.Gate, qc *quality.Collector,
	recogThresh, dupThresh, qMin float64, enableQualityCheck bool, onAdmit OnAdmit) *Tracker {
	return &Tracker{
		known:       known,
		reg:         reg,
		candidates:  candidates,
		quality:     qc,
		recogThresh: recogThresh,
		dupThresh:   dupThresh,
		qMin:        qMin,
		enableQC:    enableQualityCheck,
		onAdmit:     onAdmit,
	}
}

// Step executes the six-step decision function of spec.md §4.2 for one
// detected face.
func (t *Tracker) Step(face models.DetectedFace, now time.Time) models.TrackResult {
	// Step 1: recognition probe.
	var recognizedName string
	if label, dist, ok := t.known.Nearest(face.Embedding); ok && dist <= t.recogThresh {
		recognizedName = label
	}

	// Step 2: registry probe (duplicate suppression). Always run, even
	// when step 1 already matched, per spec.md §4.2 step 1's "do not
	// short-circuit the tracked-id check".
	if personID, matched := t.nearestRegistryMatch(face.Embedding); matched {
		_ = t.reg.Touch(personID, now)
		if recognizedName != "" {
			return models.TrackResult{Kind: models.Recognized, Name: recognizedName, PersonID: personID}
		}
		return models.TrackResult{Kind: models.Tracked, PersonID: personID}
	}

	if recognizedName != "" {
		return models.TrackResult{Kind: models.Recognized, Name: recognizedName}
	}

	// Candidate eviction runs here, before the candidate probe; a face that
	// matched a known identity or a registry entry has already returned.
	t.candidates.Evict(now)
	if t.quality != nil {
		t.quality.Evict(now)
	}

	// Step 3-4: candidate probe + stability gate.
	candID, stable := t.candidates.Observe(face.Embedding, now)
	if !stable {
		return models.TrackResult{Kind: models.Collecting}
	}
	t.candidates.Remove(candID)

	// ENABLE_QUALITY_CHECK=false skips C3 entirely: admission occurs
	// immediately at step 5 with N_quality effectively 1 (spec.md §4.2).
	if !t.enableQC {
		entry, err := t.admit(face, now)
		if err != nil {
			return models.TrackResult{Kind: models.Collecting}
		}
		return models.TrackResult{Kind: models.Tracked, PersonID: entry.PersonID}
	}

	// Step 5: quality handoff.
	handle, ready := t.quality.Offer(face.Embedding, face.Crop, face.Sharpness, now)
	_ = handle
	if !ready {
		return models.TrackResult{Kind: models.Collecting}
	}

	selected, ok := t.quality.Select(handle)
	if !ok {
		return models.TrackResult{Kind: models.Collecting}
	}

	// Step 6: admission. reference_embedding is the admitted face's own
	// embedding, not the selected frame's (spec.md §4.2 step 6 and
	// DESIGN.md's Open Question resolution).
	entry, err := t.admitWithCrop(face, selected, now)
	if err != nil {
		return models.TrackResult{Kind: models.Collecting}
	}
	return models.TrackResult{Kind: models.Tracked, PersonID: entry.PersonID}
}

func (t *Tracker) nearestRegistryMatch(e models.Embedding) (personID string, matched bool) {
	best := -1.0
	for _, ref := range t.reg.AllReferenceEmbeddings() {
		d := e.Distance(ref.Embedding)
		if best < 0 || d < best {
			best, personID = d, ref.PersonID
		}
	}
	return personID, best >= 0 && best <= t.dupThresh
}

func (t *Tracker) admit(face models.DetectedFace, now time.Time) (models.RegistryEntry, error) {
	entry := models.RegistryEntry{
		FirstSeen:          now,
		LastSeen:           now,
		DetectionCount:     1,
		Sharpness:          face.Sharpness,
		QualityRating:      models.RatingFor(face.Sharpness, t.qMin),
		ReferenceEmbedding: face.Embedding.Clone(),
	}
	admitted, err := t.reg.Admit(entry)
	if err != nil {
		return models.RegistryEntry{}, err
	}
	if t.onAdmit != nil {
		t.onAdmit(admitted, face.Crop)
	}
	return admitted, nil
}

func (t *Tracker) admitWithCrop(face models.DetectedFace, selected models.QualityFrame, now time.Time) (models.RegistryEntry, error) {
	entry := models.RegistryEntry{
		FirstSeen:          now,
		LastSeen:           now,
		DetectionCount:     1,
		Sharpness:          selected.Sharpness,
		QualityRating:      models.RatingFor(selected.Sharpness, t.minSharpnessForRating()),
		ReferenceEmbedding: face.Embedding.Clone(),
	}
	admitted, err := t.reg.Admit(entry)
	if err != nil {
		return models.RegistryEntry{}, err
	}
	if t.onAdmit != nil {
		t.onAdmit(admitted, selected.Crop)
	}
	return admitted, nil
}

// minSharpnessForRating returns Q_min (the qMin constructor field) for
// rating the selected still in admitWithCrop; admit reads t.qMin directly.
func (t *Tracker) minSharpnessForRating() float64 {
	return t.qMin
}
