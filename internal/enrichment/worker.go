// Package enrichment implements C7: one polling goroutine per admitted id
// that derives a PersonInfo from an external record store and writes it
// into the registry's enrichment state machine.
package enrichment

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/yourco/faceid/internal/models"
)

// RecordStore is the external lookup C7 polls.
type RecordStore interface {
	FindByTriggerSuffix(ctx context.Context, suffix string) (*Record, error)
}

// Record is the abstracted external schema of spec.md §4.6.
type Record struct {
	Trigger     string
	FullName    string
	DisplayText string
	ImageURLs   []string
}

// IsTransientError classifies a RecordStore error as retryable. Injected
// so this package does not depend on internal/storage's Postgres-specific
// error types.
type IsTransientError func(error) bool

// RegistryWriter is the subset of registry.Registry the worker needs.
type RegistryWriter interface {
	UpdateEnrichment(id string, state models.EnrichmentState) error
	Get(id string) (models.RegistryEntry, bool)
}

// Worker spawns and tracks one polling goroutine per admitted id. Ensure
// is idempotent: a no-op if a poller for id is already running or the id's
// enrichment state is already terminal.
type Worker struct {
	store       RecordStore
	reg         RegistryWriter
	isTransient IsTransientError

	pollInterval time.Duration
	pollMax      time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func New(store RecordStore, reg RegistryWriter, isTransient IsTransientError, pollInterval, pollMax time.Duration) *Worker {
	return &Worker{
		store:        store,
		reg:          reg,
		isTransient:  isTransient,
		pollInterval: pollInterval,
		pollMax:      pollMax,
		running:      map[string]context.CancelFunc{},
	}
}

// Ensure starts a poller for id if one is not already running and the id's
// current state is not terminal. Safe to call repeatedly — spec.md §9's
// "always call and rely on cache" contract requires the overlay path to
// call this every time it renders an id still in Scraping.
func (w *Worker) Ensure(ctx context.Context, id string) {
	entry, ok := w.reg.Get(id)
	if !ok || entry.Enrichment.Tag.Terminal() {
		return
	}

	w.mu.Lock()
	if _, running := w.running[id]; running {
		w.mu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	w.running[id] = cancel
	w.mu.Unlock()

	go w.poll(pollCtx, id, cancel)
}

// Shutdown cancels every running poller.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cancel := range w.running {
		cancel()
	}
}

func (w *Worker) poll(ctx context.Context, id string, cancel context.CancelFunc) {
	defer func() {
		w.mu.Lock()
		delete(w.running, id)
		w.mu.Unlock()
		cancel()
	}()

	if err := w.reg.UpdateEnrichment(id, models.PendingState()); err != nil {
		slog.Error("enrichment: write pending failed", "person_id", id, "error", err)
	}

	deadline := time.Now().Add(w.pollMax)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			slog.Info("enrichment: poll deadline exceeded, leaving Scraping", "person_id", id)
			return
		}

		entry, ok := w.reg.Get(id)
		if !ok || entry.Enrichment.Tag.Terminal() {
			return
		}

		rec, err := w.store.FindByTriggerSuffix(ctx, TriggerSuffix(entry.ImageKey))
		if err != nil {
			if w.isTransient != nil && w.isTransient(err) {
				slog.Warn("enrichment: transient record store error, retrying", "person_id", id, "error", err)
				continue
			}
			if err := w.reg.UpdateEnrichment(id, models.ErrorState(err.Error())); err != nil {
				slog.Error("enrichment: write error state failed", "person_id", id, "error", err)
			}
			return
		}

		if rec == nil {
			_ = w.reg.UpdateEnrichment(id, models.ScrapingState())
			continue
		}

		display := strings.TrimSpace(rec.DisplayText)
		if display == "" || len(rec.ImageURLs) == 0 {
			_ = w.reg.UpdateEnrichment(id, models.ScrapingState())
			continue
		}

		completed := models.CompletedState(rec.FullName, display, rec.ImageURLs)
		if err := w.reg.UpdateEnrichment(id, completed); err != nil {
			slog.Error("enrichment: write completed state failed", "person_id", id, "error", err)
		}
		return
	}
}

// TriggerSuffix derives the lookup suffix C7 polls for from a registry
// entry's image key, per spec.md §4.6 ("record whose trigger ends with
// image_key"). The image key is already the unique suffix; this exists so
// callers have one named place to change the derivation if it ever stops
// being an identity mapping.
func TriggerSuffix(imageKey string) string {
	return imageKey
}
