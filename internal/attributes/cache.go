// Package attributes holds a best-effort gender/age estimate per admitted
// identity. It is purely additive to spec.md's RegistryEntry: never
// persisted, never consulted by the tracker's admission decision, and
// exists only to give the operator overlay a richer PersonOverlay.
package attributes

import (
	"image"
	"log/slog"
	"sync"

	"github.com/yourco/faceid/internal/models"
	"github.com/yourco/faceid/internal/vision"
)

// Estimator predicts gender/age from a face crop. Satisfied by
// vision.ONNXAttributePredictor; kept as a small interface so tests can
// stub it without an ONNX runtime.
type Estimator interface {
	Predict(crop image.Image) (*vision.GenderAge, error)
}

// Cache holds the most recent estimate per person id.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]vision.GenderAge
}

func NewCache() *Cache {
	return &Cache{entries: map[string]vision.GenderAge{}}
}

func (c *Cache) Get(personID string) (vision.GenderAge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ga, ok := c.entries[personID]
	return ga, ok
}

func (c *Cache) set(personID string, ga vision.GenderAge) {
	c.mu.Lock()
	c.entries[personID] = ga
	c.mu.Unlock()
}

// OnAdmit returns a tracker admission hook (tracker.OnAdmit's shape) that
// estimates gender/age for a newly admitted identity's reference crop. A
// nil est disables estimation; a failed estimate is logged and otherwise
// ignored, never blocking or retrying admission.
func OnAdmit(est Estimator, cache *Cache) func(models.RegistryEntry, image.Image) {
	return func(entry models.RegistryEntry, crop image.Image) {
		if est == nil {
			return
		}
		ga, err := est.Predict(crop)
		if err != nil {
			slog.Warn("gender/age estimation failed", "person_id", entry.PersonID, "error", err)
			return
		}
		cache.set(entry.PersonID, *ga)
	}
}
