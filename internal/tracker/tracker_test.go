package tracker

import (
	"image"
	"testing"
	"time"

	"github.com/yourco/faceid/internal/candidate"
	"github.com/yourco/faceid/internal/models"
	"github.com/yourco/faceid/internal/quality"
)

type stubKnownSet struct {
	label string
	dist  float64
	ok    bool
}

func (s stubKnownSet) Nearest(e models.Embedding) (string, float64, bool) {
	return s.label, s.dist, s.ok
}

// memRegistry is a minimal in-memory stand-in satisfying RegistryProbe,
// avoiding a dependency on internal/registry's file persistence in tests
// that only exercise the tracker's decision logic.
type memRegistry struct {
	entries []models.RegistryEntry
	next    int
}

func (m *memRegistry) AllReferenceEmbeddings() []RefEmbedding {
	out := make([]RefEmbedding, len(m.entries))
	for i, e := range m.entries {
		out[i] = RefEmbedding{PersonID: e.PersonID, Embedding: e.ReferenceEmbedding}
	}
	return out
}

func (m *memRegistry) Touch(id string, now time.Time) error {
	for i := range m.entries {
		if m.entries[i].PersonID == id {
			m.entries[i].LastSeen = now
			m.entries[i].DetectionCount++
		}
	}
	return nil
}

func (m *memRegistry) Admit(entry models.RegistryEntry) (models.RegistryEntry, error) {
	m.next++
	entry.PersonID = "person_" + itoa(m.next)
	m.entries = append(m.entries, entry)
	return entry, nil
}

func itoa(n int) string {
	digits := "000"
	s := ""
	for n > 0 {
		s = string(rune('0'+n%10)) + s
		n /= 10
	}
	for len(s) < 3 {
		s = "0" + s
	}
	_ = digits
	return s
}

func stubCrop() image.Image { return image.NewRGBA(image.Rect(0, 0, 4, 4)) }

func newTracker(reg *memRegistry, known KnownMatcher) (*Tracker, *candidate.Gate, *quality.Collector) {
	cg := candidate.New(0.45, 5, 2*time.Second)
	qc := quality.New(0.45, 5, 2*time.Second)
	var admitted []models.RegistryEntry
	tr := New(known, reg, cg, qc, 0.6, 0.45, 100.0, true, func(e models.RegistryEntry, _ image.Image) {
		admitted = append(admitted, e)
	})
	return tr, cg, qc
}

func TestS1Admission(t *testing.T) {
	reg := &memRegistry{}
	tr, _, _ := newTracker(reg, stubKnownSet{})
	e := models.Embedding{1, 0, 0}
	now := time.Now()

	var last models.TrackResult
	for i := 0; i < 10; i++ {
		face := models.DetectedFace{Embedding: e, Crop: stubCrop(), Sharpness: float64(100 + i)}
		last = tr.Step(face, now)
		now = now.Add(100 * time.Millisecond)
	}

	if last.Kind != models.Tracked {
		t.Fatalf("expected Tracked after 10 consecutive frames, got %v", last.Kind)
	}
	if len(reg.entries) != 1 {
		t.Fatalf("expected exactly one admitted entry, got %d", len(reg.entries))
	}
	if reg.entries[0].DetectionCount != 1 {
		t.Fatalf("expected detection_count 1 at admission, got %d", reg.entries[0].DetectionCount)
	}
}

func TestS2ReRecognitionNoNewCandidate(t *testing.T) {
	reg := &memRegistry{entries: []models.RegistryEntry{{
		PersonID:           "person_001",
		ReferenceEmbedding: models.Embedding{1, 0, 0},
		DetectionCount:     1,
	}}}
	tr, cg, _ := newTracker(reg, stubKnownSet{})

	vPrime := models.Embedding{0.7, 0, 0} // distance 0.3 from {1,0,0}
	result := tr.Step(models.DetectedFace{Embedding: vPrime, Crop: stubCrop()}, time.Now())

	if result.Kind != models.Tracked || result.PersonID != "person_001" {
		t.Fatalf("expected Tracked(person_001), got %+v", result)
	}
	if cg.Len() != 0 {
		t.Fatal("expected no candidate created for a registry duplicate match")
	}
	if reg.entries[0].DetectionCount != 2 {
		t.Fatalf("expected detection_count incremented to 2, got %d", reg.entries[0].DetectionCount)
	}
}

func TestS3TwoPersonSeparation(t *testing.T) {
	reg := &memRegistry{}
	tr, _, _ := newTracker(reg, stubKnownSet{})
	a := models.Embedding{1, 0, 0}
	b := models.Embedding{0, 1, 0} // distance sqrt(2) ~ 1.41, far beyond tau_dup 0.45
	now := time.Now()

	for i := 0; i < 10; i++ {
		tr.Step(models.DetectedFace{Embedding: a, Crop: stubCrop(), Sharpness: 150}, now)
		tr.Step(models.DetectedFace{Embedding: b, Crop: stubCrop(), Sharpness: 150}, now)
		now = now.Add(100 * time.Millisecond)
	}

	if len(reg.entries) != 2 {
		t.Fatalf("expected 2 distinct registry entries, got %d", len(reg.entries))
	}
	for _, e := range reg.entries {
		if e.DetectionCount != 1 {
			t.Fatalf("expected detection_count 1 for %s, got %d", e.PersonID, e.DetectionCount)
		}
	}
}

func TestS4FlickerRejectionNoAdmission(t *testing.T) {
	reg := &memRegistry{}
	tr, _, _ := newTracker(reg, stubKnownSet{})
	e := models.Embedding{1, 0, 0}
	now := time.Now()

	for i := 0; i < 3; i++ {
		tr.Step(models.DetectedFace{Embedding: e, Crop: stubCrop(), Sharpness: 150}, now)
		now = now.Add(100 * time.Millisecond)
	}

	now = now.Add(3 * time.Second) // exceeds T_candidate_stale (2s)
	result := tr.Step(models.DetectedFace{Embedding: e, Crop: stubCrop(), Sharpness: 150}, now)

	if result.Kind != models.Collecting {
		t.Fatalf("expected Collecting on restart after flicker, got %v", result.Kind)
	}
	if len(reg.entries) != 0 {
		t.Fatalf("expected no admission after flicker rejection, got %d entries", len(reg.entries))
	}
}

func TestRecognizedDoesNotShortCircuitTrackedCheck(t *testing.T) {
	reg := &memRegistry{entries: []models.RegistryEntry{{
		PersonID:           "person_001",
		ReferenceEmbedding: models.Embedding{1, 0, 0},
	}}}
	tr, _, _ := newTracker(reg, stubKnownSet{label: "alice", dist: 0.1, ok: true})

	result := tr.Step(models.DetectedFace{Embedding: models.Embedding{1, 0, 0}, Crop: stubCrop()}, time.Now())
	if result.Kind != models.Recognized || result.Name != "alice" {
		t.Fatalf("expected Recognized(alice), got %+v", result)
	}
	if result.PersonID != "person_001" {
		t.Fatalf("expected PersonID still attached per step 2, got %q", result.PersonID)
	}
}

func TestBoundaryAtExactlyTauDupIsDuplicate(t *testing.T) {
	reg := &memRegistry{entries: []models.RegistryEntry{{
		PersonID:           "person_001",
		ReferenceEmbedding: models.Embedding{1, 0, 0},
	}}}
	tr, _, _ := newTracker(reg, stubKnownSet{})

	// distance exactly 0.45 along the x-axis.
	e := models.Embedding{float32(1 - 0.45), 0, 0}
	result := tr.Step(models.DetectedFace{Embedding: e, Crop: stubCrop()}, time.Now())
	if result.Kind != models.Tracked {
		t.Fatalf("expected tau_dup to be upper-inclusive, got %v", result.Kind)
	}
}

func TestQualityCheckDisabledAdmitsImmediatelyAfterStability(t *testing.T) {
	reg := &memRegistry{}
	cg := candidate.New(0.45, 5, 2*time.Second)
	tr := New(stubKnownSet{}, reg, cg, nil, 0.6, 0.45, 100.0, false, nil)

	e := models.Embedding{1, 0, 0}
	now := time.Now()
	var last models.TrackResult
	for i := 0; i < 5; i++ {
		last = tr.Step(models.DetectedFace{Embedding: e, Crop: stubCrop(), Sharpness: 150}, now)
		now = now.Add(100 * time.Millisecond)
	}
	if last.Kind != models.Tracked {
		t.Fatalf("expected immediate admission with quality check disabled, got %v", last.Kind)
	}
	if len(reg.entries) != 1 {
		t.Fatalf("expected one admission, got %d", len(reg.entries))
	}
}
