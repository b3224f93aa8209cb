package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourco/faceid/internal/models"
)

func newEntry(embedding models.Embedding) models.RegistryEntry {
	now := time.Now()
	return models.RegistryEntry{
		FirstSeen:          now,
		LastSeen:           now,
		DetectionCount:     1,
		ImageKey:           "faces/x.png",
		Sharpness:          150,
		QualityRating:      models.QualityGood,
		ReferenceEmbedding: embedding,
	}
}

func TestAdmitAllocatesMonotonicIDs(t *testing.T) {
	r := New("")
	a, err := r.Admit(newEntry(models.Embedding{1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Admit(newEntry(models.Embedding{0, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if a.PersonID == b.PersonID {
		t.Fatalf("expected distinct ids, got %q twice", a.PersonID)
	}
	if a.PersonID == "" || b.PersonID == "" {
		t.Fatal("expected non-empty ids")
	}
	if a.PersonID != "person_001" || b.PersonID != "person_002" {
		t.Fatalf("expected person_NNN zero-padded ordinals, got %q and %q", a.PersonID, b.PersonID)
	}
}

func TestAllReferenceEmbeddingsSnapshotAfterAdmit(t *testing.T) {
	r := New("")
	entry, err := r.Admit(newEntry(models.Embedding{1, 0, 0}))
	if err != nil {
		t.Fatal(err)
	}

	refs := r.AllReferenceEmbeddings()
	found := false
	for _, ref := range refs {
		if ref.PersonID == entry.PersonID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected snapshot taken after Admit to include %s", entry.PersonID)
	}
}

func TestTouchUpdatesLastSeenAndCount(t *testing.T) {
	r := New("")
	entry, err := r.Admit(newEntry(models.Embedding{1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	later := entry.LastSeen.Add(5 * time.Second)
	if err := r.Touch(entry.PersonID, later); err != nil {
		t.Fatal(err)
	}
	got, ok := r.Get(entry.PersonID)
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if got.DetectionCount != 2 {
		t.Fatalf("expected detection count 2, got %d", got.DetectionCount)
	}
	if !got.LastSeen.Equal(later) {
		t.Fatalf("expected last seen %v, got %v", later, got.LastSeen)
	}
}

func TestTouchUnknownIDIsNoop(t *testing.T) {
	r := New("")
	if err := r.Touch("nonexistent", time.Now()); err != nil {
		t.Fatalf("expected no error for unknown id, got %v", err)
	}
}

func TestUpdateEnrichmentEnforcesMonotonicity(t *testing.T) {
	r := New("")
	entry, err := r.Admit(newEntry(models.Embedding{1, 0}))
	if err != nil {
		t.Fatal(err)
	}

	if err := r.UpdateEnrichment(entry.PersonID, models.ScrapingState()); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateEnrichment(entry.PersonID, models.CompletedState("Jane Doe", "summary", nil)); err != nil {
		t.Fatal(err)
	}

	// terminal: a later transition back to Scraping must be rejected.
	if err := r.UpdateEnrichment(entry.PersonID, models.ScrapingState()); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get(entry.PersonID)
	if got.Enrichment.Tag != models.EnrichmentCompleted {
		t.Fatalf("expected terminal Completed state to stick, got %s", got.Enrichment.Tag)
	}
}

func TestUpdateEnrichmentAllowsPendingToErrorSkippingScraping(t *testing.T) {
	// Not disallowed by spec - pending may jump straight to Completed/Error
	// if a record already exists on first poll. Verify that path works too.
	r := New("")
	entry, err := r.Admit(newEntry(models.Embedding{1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateEnrichment(entry.PersonID, models.ErrorState("no record found")); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get(entry.PersonID)
	if got.Enrichment.Tag != models.EnrichmentError {
		t.Fatalf("expected Error, got %s", got.Enrichment.Tag)
	}
}

func TestPersistAndLoadFromDiskRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")

	r := New(path)
	entry, err := r.Admit(newEntry(models.Embedding{1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}

	r2 := New(path)
	if err := r2.LoadFromDisk(); err != nil {
		t.Fatal(err)
	}
	got, ok := r2.Get(entry.PersonID)
	if !ok {
		t.Fatalf("expected %s to survive reload", entry.PersonID)
	}
	if got.ImageKey != entry.ImageKey {
		t.Fatalf("expected image key %q, got %q", entry.ImageKey, got.ImageKey)
	}
}

func TestLoadFromDiskCorruptFileIsRenamedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(path)
	if err := r.LoadFromDisk(); err != nil {
		t.Fatalf("expected corrupt file to be handled, got error: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry after corrupt load, got %d entries", r.Len())
	}

	matches, err := filepath.Glob(path + ".corrupt.*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one renamed-aside corrupt file, got %v", matches)
	}
}

func TestLoadFromDiskMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	r := New(filepath.Join(dir, "missing.json"))
	if err := r.LoadFromDisk(); err != nil {
		t.Fatalf("expected missing file to be a no-op, got %v", err)
	}
}
