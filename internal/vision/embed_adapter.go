package vision

import (
	"fmt"
	"image"

	"github.com/yourco/faceid/internal/models"
)

// ONNXEmbedder adapts the ArcFace Embedder to the FaceEmbedder interface.
type ONNXEmbedder struct {
	emb *Embedder
}

func NewONNXEmbedder(emb *Embedder) *ONNXEmbedder {
	return &ONNXEmbedder{emb: emb}
}

func (a *ONNXEmbedder) Embed(crop image.Image) (models.Embedding, error) {
	w, h := a.emb.InputSize()
	chw := toCHW(crop, w, h, 127.5, 1.0/127.5)

	vec, err := a.emb.Extract(chw)
	if err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}
	return models.Embedding(vec).Normalized(), nil
}

func (a *ONNXEmbedder) Close() {
	a.emb.Close()
}
