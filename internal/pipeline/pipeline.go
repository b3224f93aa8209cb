// Package pipeline implements C9: the per-frame orchestrator. One frame
// goes through detect -> per-detection embed/sharpness -> Tracker.Step (in
// detection order) -> event log emission. Overlay is a separate read-only
// projection over the registry that ProcessFrame does not call. Frame
// processing runs on a single goroutine; concurrency is confined to the
// upload pool and the per-id enrichment pollers.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/yourco/faceid/internal/attributes"
	"github.com/yourco/faceid/internal/eventlog"
	"github.com/yourco/faceid/internal/models"
	"github.com/yourco/faceid/internal/objectstore"
	"github.com/yourco/faceid/internal/observability"
	"github.com/yourco/faceid/internal/registry"
	"github.com/yourco/faceid/internal/thumbnail"
	"github.com/yourco/faceid/internal/tracker"
	"github.com/yourco/faceid/internal/vision"
)

// EnrichmentEnsurer is the subset of enrichment.Worker the pipeline needs
// to kick off or keep alive a poller for an admitted/displayed id.
type EnrichmentEnsurer interface {
	Ensure(ctx context.Context, id string)
}

// registryAdapter narrows *registry.Registry to tracker.RegistryProbe,
// converting registry.ReferenceEmbedding to tracker.RefEmbedding. The two
// types are structurally identical but distinct named types, so Go does
// not consider *registry.Registry to satisfy tracker.RegistryProbe
// directly.
type registryAdapter struct {
	reg *registry.Registry
}

func (a registryAdapter) AllReferenceEmbeddings() []tracker.RefEmbedding {
	src := a.reg.AllReferenceEmbeddings()
	out := make([]tracker.RefEmbedding, len(src))
	for i, r := range src {
		out[i] = tracker.RefEmbedding{PersonID: r.PersonID, Embedding: r.Embedding}
	}
	return out
}

func (a registryAdapter) Touch(id string, now time.Time) error {
	return a.reg.Touch(id, now)
}

func (a registryAdapter) Admit(entry models.RegistryEntry) (models.RegistryEntry, error) {
	return a.reg.Admit(entry)
}

// Pipeline wires the detector, embedder, sharpness metric, and tracker
// into one ProcessFrame call, plus the read-only overlay projection over
// the registry and thumbnail cache.
type Pipeline struct {
	detector  vision.FaceDetector
	embedder  vision.FaceEmbedder
	sharpness vision.SharpnessMetric
	trk       *tracker.Tracker
	reg       *registry.Registry
	thumbs    *thumbnail.Cache
	enrich    EnrichmentEnsurer
	events    *eventlog.Logger
	attrs     *attributes.Cache

	minDetectConfidence float32
}

// New builds a Pipeline. minDetectConfidence filters raw detector hits
// below the configured detection threshold before they ever reach the
// tracker (spec.md §4: a detection below that bar is not a face for any
// downstream purpose). attrs may be nil if gender/age estimation is
// disabled; Overlay simply omits Attributes in that case.
func New(detector vision.FaceDetector, embedder vision.FaceEmbedder, sharpness vision.SharpnessMetric,
	trk *tracker.Tracker, reg *registry.Registry, thumbs *thumbnail.Cache, enrich EnrichmentEnsurer,
	events *eventlog.Logger, attrs *attributes.Cache, minDetectConfidence float32) *Pipeline {
	return &Pipeline{
		detector:            detector,
		embedder:            embedder,
		sharpness:           sharpness,
		trk:                 trk,
		reg:                 reg,
		thumbs:              thumbs,
		enrich:              enrich,
		events:              events,
		attrs:               attrs,
		minDetectConfidence: minDetectConfidence,
	}
}

// RegistryAdapter exposes the tracker.RegistryProbe view of reg, for
// callers (cmd/faceid) constructing the Tracker before the Pipeline.
func RegistryAdapter(reg *registry.Registry) tracker.RegistryProbe {
	return registryAdapter{reg: reg}
}

// FrameResult is one detection's outcome, for callers that render an
// overlay on the original frame.
type FrameResult struct {
	BBox   [4]float32
	Result models.TrackResult
}

// ProcessFrame runs one frame through detect -> embed/sharpness ->
// Tracker.Step, in detection order (spec.md §4.2's ordering guarantee:
// within one frame, faces are processed in the order the detector returns
// them — highest confidence first for ONNXDetector — so two simultaneous
// new faces admit in that order).
func (p *Pipeline) ProcessFrame(ctx context.Context, frame image.Image, now time.Time) ([]FrameResult, error) {
	observability.FramesProcessed.Inc()

	start := time.Now()
	boxes, err := p.detector.Detect(frame)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	results := make([]FrameResult, 0, len(boxes))
	for _, bb := range boxes {
		if bb.Confidence < p.minDetectConfidence {
			continue
		}
		observability.FacesDetected.Inc()

		crop, err := vision.CropBBox(frame, bb)
		if err != nil {
			slog.Warn("pipeline: skipping undetectable crop", "error", err)
			continue
		}

		embedStart := time.Now()
		emb, err := p.embedder.Embed(crop)
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(embedStart).Seconds())
		if err != nil {
			slog.Warn("pipeline: embedding failed, skipping detection", "error", err)
			continue
		}

		sharpStart := time.Now()
		score := p.sharpness.Score(crop)
		observability.InferenceDuration.WithLabelValues("sharpness").Observe(time.Since(sharpStart).Seconds())

		face := models.DetectedFace{
			BBox:      [4]float32{bb.X1, bb.Y1, bb.X2, bb.Y2},
			Embedding: emb,
			Crop:      crop,
			Sharpness: score,
		}

		res := p.trk.Step(face, now)
		p.onStepResult(ctx, res)
		p.emitEvent(res, bb, now)

		results = append(results, FrameResult{BBox: face.BBox, Result: res})
	}

	observability.RegistrySize.Set(float64(p.reg.Len()))
	return results, nil
}

func (p *Pipeline) onStepResult(ctx context.Context, res models.TrackResult) {
	switch res.Kind {
	case models.Recognized:
		observability.FacesRecognized.Inc()
		if res.PersonID != "" && p.enrich != nil {
			p.enrich.Ensure(ctx, res.PersonID)
		}
	case models.Tracked:
		if p.enrich != nil && res.PersonID != "" {
			p.enrich.Ensure(ctx, res.PersonID)
		}
	}
}

func (p *Pipeline) emitEvent(res models.TrackResult, bb vision.BoundingBox, now time.Time) {
	if p.events == nil {
		return
	}
	idOrName := res.Name
	if idOrName == "" {
		idOrName = res.PersonID
	}
	if idOrName == "" {
		return
	}
	p.events.Emit(eventlog.Record{
		Timestamp:      now,
		Classification: string(res.Kind),
		IDOrName:       idOrName,
		Confidence:     float64(bb.Confidence),
		BoundingBox:    [4]float32{bb.X1, bb.Y1, bb.X2, bb.Y2},
	})
}

// PersonOverlay is the read-only view the UI/CLI overlay renders for one
// tracked or recognized face: registry state plus, when enrichment has
// completed, a decoded thumbnail from the first available image URL.
type PersonOverlay struct {
	models.PersonInfo
	Thumbnail  image.Image
	Attributes *vision.GenderAge // nil if attribute estimation is disabled or never ran for this id
}

// Overlay projects entry's current registry + enrichment state and, for a
// completed enrichment, resolves its first image URL through the
// thumbnail cache (spec.md §9: overlay never maintains its own cache of
// PersonInfo, it recomputes from the registry every call. Ensure is called
// again here so a poller that died (deadline exceeded) gets restarted the
// next time its id is still visible on screen).
func (p *Pipeline) Overlay(ctx context.Context, personID string) (PersonOverlay, bool) {
	entry, ok := p.reg.Get(personID)
	if !ok {
		return PersonOverlay{}, false
	}
	if p.enrich != nil && !entry.Enrichment.Tag.Terminal() {
		p.enrich.Ensure(ctx, personID)
	}

	info := models.ProjectPersonInfo(entry)
	overlay := PersonOverlay{PersonInfo: info}
	if entry.Enrichment.Tag == models.EnrichmentCompleted && len(entry.Enrichment.ImageURLs) > 0 && p.thumbs != nil {
		if img, ok := p.thumbs.Get(ctx, entry.Enrichment.ImageURLs[0]); ok {
			overlay.Thumbnail = img
		}
	}
	if p.attrs != nil {
		if ga, ok := p.attrs.Get(personID); ok {
			overlay.Attributes = &ga
		}
	}
	return overlay, true
}

// ComposeOnAdmit chains several tracker.OnAdmit hooks into one, running
// each in order. Used by cmd/faceid to combine the still-save/upload hook
// with the optional gender/age estimation hook without either knowing
// about the other.
func ComposeOnAdmit(hooks ...func(models.RegistryEntry, image.Image)) func(models.RegistryEntry, image.Image) {
	return func(entry models.RegistryEntry, crop image.Image) {
		for _, h := range hooks {
			if h != nil {
				h(entry, crop)
			}
		}
	}
}

// SaveStillAndEnqueue derives a PNG still for a newly admitted entry,
// writes it locally, records the object key on the registry entry, and
// enqueues the async upload. Wired as tracker.OnAdmit from cmd/faceid.
func SaveStillAndEnqueue(reg *registry.Registry, store *objectstore.Store) func(models.RegistryEntry, image.Image) {
	return func(entry models.RegistryEntry, crop image.Image) {
		observability.FacesAdmitted.Inc()

		png, err := objectstore.EncodePNG(crop)
		if err != nil {
			slog.Error("pipeline: encode still failed", "person_id", entry.PersonID, "error", err)
			return
		}
		_, key, err := store.SaveAndEnqueue(entry.PersonID, png, time.Now())
		if err != nil {
			slog.Error("pipeline: save still failed", "person_id", entry.PersonID, "error", err)
			return
		}
		if err := reg.SetImageKey(entry.PersonID, key); err != nil {
			slog.Error("pipeline: set image key failed", "person_id", entry.PersonID, "error", err)
		}
	}
}

// OnUploadComplete builds the objectstore.OnUploaded callback that writes
// a successful upload's remote URL back to the registry (spec.md §4.5,
// §7: a failed upload leaves RemoteURL empty and is never retried).
func OnUploadComplete(reg *registry.Registry) func(personID, key, remoteURL string, err error) {
	return func(personID, key, remoteURL string, err error) {
		if err != nil {
			return
		}
		if setErr := reg.SetRemoteURL(personID, remoteURL); setErr != nil {
			slog.Error("pipeline: set remote url failed", "person_id", personID, "error", setErr)
		}
	}
}
