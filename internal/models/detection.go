package models

import "image"

// DetectedFace is the transient per-frame output of the external detector
// and embedder. It is consumed entirely within one frame's processing.
type DetectedFace struct {
	BBox      [4]float32 // x1, y1, x2, y2 in original frame coordinates
	Embedding Embedding
	Crop      image.Image
	Sharpness float64
}

// KnownIdentity is a pre-enrolled identity consulted by the recognition
// probe. Loaded at startup from a directory of labeled images; mutation is
// rare and serialized behind KnownSet's write lock.
type KnownIdentity struct {
	Name       string
	Embeddings []Embedding
}
