package vision

import (
	"fmt"
	"image"

	"github.com/yourco/faceid/internal/models"
)

// BoundingBox is one raw detector hit in original frame coordinates.
type BoundingBox struct {
	X1, Y1, X2, Y2 float32
	Confidence     float32
}

// FaceDetector locates faces in a full frame. Implementations own their own
// preprocessing (resize/normalize) and coordinate scaling back to the
// original frame.
type FaceDetector interface {
	Detect(frame image.Image) ([]BoundingBox, error)
}

// FaceEmbedder turns one cropped, aligned face into a fixed-size embedding.
type FaceEmbedder interface {
	Embed(crop image.Image) (models.Embedding, error)
}

// SharpnessMetric scores a crop; higher means sharper. Any monotone measure
// satisfies spec §4.4 — this repo supplies a variance-of-Laplacian one.
type SharpnessMetric interface {
	Score(crop image.Image) float64
}

// CropBBox returns the sub-image of frame bounded by bb, clamped to frame
// bounds. Used by callers that need the crop a BoundingBox refers to before
// handing it to a FaceEmbedder/SharpnessMetric.
func CropBBox(frame image.Image, bb BoundingBox) (image.Image, error) {
	b := frame.Bounds()
	x1 := clampInt(int(bb.X1), b.Min.X, b.Max.X)
	y1 := clampInt(int(bb.Y1), b.Min.Y, b.Max.Y)
	x2 := clampInt(int(bb.X2), b.Min.X, b.Max.X)
	y2 := clampInt(int(bb.Y2), b.Min.Y, b.Max.Y)
	if x2 <= x1 || y2 <= y1 {
		return nil, fmt.Errorf("degenerate bounding box after clamp: (%d,%d)-(%d,%d)", x1, y1, x2, y2)
	}
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := frame.(subImager); ok {
		return si.SubImage(image.Rect(x1, y1, x2, y2)), nil
	}
	rect := image.Rect(x1, y1, x2, y2)
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			out.Set(x-rect.Min.X, y-rect.Min.Y, frame.At(x, y))
		}
	}
	return out, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
