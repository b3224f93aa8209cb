// Package knownset implements C1: the pre-enrolled identity set consulted
// by the per-frame recognition probe. Read-mostly; rebuilt wholesale on
// operator command.
package knownset

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yourco/faceid/internal/models"
)

// Embedder is the subset of vision.FaceEmbedder the known set needs to
// enroll images at load time. Declared locally so this package does not
// import internal/vision for one method.
type Embedder interface {
	Embed(img image.Image) (models.Embedding, error)
}

// ImageDecoder decodes one enrollment image file. Injected so tests can
// avoid real image codecs.
type ImageDecoder interface {
	Decode(path string) (image.Image, error)
}

// Mirror persists the known set to a durable side store (spec.md §4.1's
// Postgres/pgvector enrichment). Optional: a nil Mirror means in-memory
// only.
type Mirror interface {
	Replace(ctx context.Context, identities []models.KnownIdentity) error
}

// KnownSet holds the in-memory identity slice consulted by the recognition
// probe. All mutation goes through Rebuild, which takes the write lock and
// swaps the slice atomically — the hot path (Nearest) only ever takes the
// read lock.
type KnownSet struct {
	mu         sync.RWMutex
	identities []models.KnownIdentity

	dir      string
	embedder Embedder
	decoder  ImageDecoder
	mirror   Mirror
}

func New(dir string, embedder Embedder, decoder ImageDecoder, mirror Mirror) *KnownSet {
	return &KnownSet{dir: dir, embedder: embedder, decoder: decoder, mirror: mirror}
}

// Nearest returns the label and distance of the closest known identity to e,
// or ok=false if the set is empty. Never mutates state (spec.md §4.1: known
// set lookup never touches C2).
func (k *KnownSet) Nearest(e models.Embedding) (label string, dist float64, ok bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	best := math.Inf(1)
	bestLabel := ""
	found := false
	for _, id := range k.identities {
		for _, ref := range id.Embeddings {
			d := e.Distance(ref)
			if d < best {
				best = d
				bestLabel = id.Name
				found = true
			}
		}
	}
	return bestLabel, best, found
}

// Rebuild re-walks dir, re-embeds every enrollment image, and swaps the
// identity slice under the write lock. filepath.WalkDir's lexicographic
// order gives the deterministic first-encountered tie-break spec.md §4.1
// requires without an explicit sort.
func (k *KnownSet) Rebuild(ctx context.Context) error {
	identities, err := k.load(ctx)
	if err != nil {
		return fmt.Errorf("rebuild known set: %w", err)
	}

	k.mu.Lock()
	k.identities = identities
	k.mu.Unlock()

	if k.mirror != nil {
		if err := k.mirror.Replace(ctx, identities); err != nil {
			slog.Error("known set mirror replace failed", "error", err)
		}
	}

	slog.Info("known set rebuilt", "identity_count", len(identities))
	return nil
}

// load walks dir expecting one sub-directory per label (each file inside
// enrolled individually), or flat <label>.jpg files for single-image
// identities.
func (k *KnownSet) load(ctx context.Context) ([]models.KnownIdentity, error) {
	byLabel := map[string]*models.KnownIdentity{}
	var order []string

	err := filepath.WalkDir(k.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			return nil
		}

		label := labelFor(k.dir, path)
		img, err := k.decoder.Decode(path)
		if err != nil {
			slog.Warn("skipping unreadable enrollment image", "path", path, "error", err)
			return nil
		}
		emb, err := k.embedder.Embed(img)
		if err != nil {
			slog.Warn("skipping unembeddable enrollment image", "path", path, "error", err)
			return nil
		}

		id, exists := byLabel[label]
		if !exists {
			id = &models.KnownIdentity{Name: label}
			byLabel[label] = id
			order = append(order, label)
		}
		id.Embeddings = append(id.Embeddings, emb)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.KnownIdentity, 0, len(order))
	for _, label := range order {
		out = append(out, *byLabel[label])
	}
	return out, nil
}

// labelFor derives an identity label from an enrollment image's path: the
// immediate parent directory name if the image is nested one level below
// dir, otherwise the file's base name without extension.
func labelFor(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) >= 2 {
		return parts[0]
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
