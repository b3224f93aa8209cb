// Package registry implements C2: the durable store of admitted identities.
// One sync.RWMutex guards an in-memory map; the JSON file on disk is the
// source of truth (spec.md §6), written with a write-temp-then-rename
// sequence so a crash mid-write never corrupts the live file.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yourco/faceid/internal/models"
)

// Registry holds every admitted identity. allocate+insert are combined
// into Admit so an ordinal is only ever persisted once an entry for it
// durably exists.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*models.RegistryEntry
	nextOrd int64
	path    string
}

func New(path string) *Registry {
	return &Registry{entries: map[string]*models.RegistryEntry{}, path: path}
}

// Admit allocates a new person id and inserts entry under it in one
// critical section, then persists to disk before returning (spec.md §4.3:
// "entry is durable before this call returns"). entry.PersonID is ignored
// and overwritten with the allocated id.
func (r *Registry) Admit(entry models.RegistryEntry) (models.RegistryEntry, error) {
	r.mu.Lock()
	r.nextOrd++
	id := fmt.Sprintf("person_%03d", r.nextOrd)
	entry.PersonID = id
	if entry.Enrichment.Tag == "" {
		entry.Enrichment = models.PendingState()
	}
	stored := entry.Clone()
	r.entries[id] = &stored
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.persist(snapshot); err != nil {
		return models.RegistryEntry{}, fmt.Errorf("admit %s: %w", id, err)
	}
	return stored.Clone(), nil
}

// Touch updates LastSeen and increments DetectionCount for an existing
// entry (spec.md §4.2 step 2's duplicate-suppression path). No-op if id is
// unknown.
func (r *Registry) Touch(id string, now time.Time) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	e.LastSeen = now
	e.DetectionCount++
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	return r.persist(snapshot)
}

// SetImageKey records the object-store key for an admitted entry's saved
// still. Called once, after the local PNG write (spec.md §4.5: the local
// file is always written before the upload is attempted, so the key is
// known before the upload's outcome is).
func (r *Registry) SetImageKey(id, imageKey string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	e.ImageKey = imageKey
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	return r.persist(snapshot)
}

// SetRemoteURL records the object store's URL for an admitted entry's
// saved still after a successful upload. Left empty on upload failure
// (spec.md §4.5, §7) — this is never retried from here.
func (r *Registry) SetRemoteURL(id, url string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	e.RemoteURL = url
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	return r.persist(snapshot)
}

// Get returns a copy of the entry for id, or ok=false.
func (r *Registry) Get(id string) (models.RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return models.RegistryEntry{}, false
	}
	return e.Clone(), true
}

// AllReferenceEmbeddings returns a snapshot of (person_id, reference
// embedding) pairs taken under the read lock. Because Admit takes the
// write lock, a snapshot requested after an Admit call returns is
// guaranteed to include that entry — the ordering property P-DUP depends
// on (spec.md §5).
func (r *Registry) AllReferenceEmbeddings() []ReferenceEmbedding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ReferenceEmbedding, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, ReferenceEmbedding{PersonID: id, Embedding: e.ReferenceEmbedding.Clone()})
	}
	return out
}

// ReferenceEmbedding pairs a person id with its immutable admission-time
// embedding, the shape the duplicate-suppression probe (C5 step 2) scans.
type ReferenceEmbedding struct {
	PersonID  string
	Embedding models.Embedding
}

// UpdateEnrichment moves id's enrichment state to next (spec.md §4.7). It
// is a no-op if id is unknown or if isValidTransition rejects the move
// (including any move out of a terminal state) — isValidTransition is the
// single place the allowed transition graph is encoded.
func (r *Registry) UpdateEnrichment(id string, next models.EnrichmentState) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if !isValidTransition(e.Enrichment.Tag, next.Tag) {
		r.mu.Unlock()
		return nil
	}
	e.Enrichment = next
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	return r.persist(snapshot)
}

// isValidTransition enforces the monotonicity table of spec.md §4.7:
// Pending -> Scraping -> {Completed | Error}, and Pending may also go
// straight to Completed or Error; terminal states never leave.
func isValidTransition(from, to models.EnrichmentTag) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case "", models.EnrichmentPending:
		return to == models.EnrichmentScraping || to == models.EnrichmentCompleted || to == models.EnrichmentError
	case models.EnrichmentScraping:
		return to == models.EnrichmentCompleted || to == models.EnrichmentError
	default:
		return false
	}
}

func (r *Registry) snapshotLocked() document {
	doc := document{NextOrdinal: r.nextOrd, Entries: make([]models.RegistryEntry, 0, len(r.entries))}
	for _, e := range r.entries {
		doc.Entries = append(doc.Entries, e.Clone())
	}
	return doc
}

// document is the on-disk JSON shape of spec.md §6.
type document struct {
	NextOrdinal int64                  `json:"next_ordinal"`
	Entries     []models.RegistryEntry `json:"entries"`
}

// persist writes doc to r.path via write-temp-then-rename so a crash
// mid-write never corrupts the live file.
func (r *Registry) persist(doc document) error {
	if r.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("rename registry file: %w", err)
	}
	return nil
}

// LoadFromDisk populates the registry from r.path. A missing file is not
// an error (fresh start). A corrupt file is renamed aside with a unix-time
// suffix and the registry starts empty (spec.md §7 "Corrupt registry at
// startup").
func (r *Registry) LoadFromDisk() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read registry file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		corrupt := fmt.Sprintf("%s.corrupt.%d", r.path, time.Now().Unix())
		if renameErr := os.Rename(r.path, corrupt); renameErr != nil {
			return fmt.Errorf("parse registry file: %w (and rename aside failed: %v)", err, renameErr)
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextOrd = doc.NextOrdinal
	r.entries = make(map[string]*models.RegistryEntry, len(doc.Entries))
	for i := range doc.Entries {
		e := doc.Entries[i].Clone()
		r.entries[e.PersonID] = &e
	}
	return nil
}

// SaveToDisk forces a persist of the current state, used at shutdown.
func (r *Registry) SaveToDisk() error {
	r.mu.RLock()
	snapshot := r.snapshotLocked()
	r.mu.RUnlock()
	return r.persist(snapshot)
}

// Len reports the current entry count, used by the registry-size metric.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
