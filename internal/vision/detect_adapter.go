package vision

import (
	"fmt"
	"image"
)

// ONNXDetector adapts the RetinaFace Detector to the FaceDetector interface
// the tracker and pipeline depend on, handling resize/normalize and
// coordinate rescaling back to the original frame.
type ONNXDetector struct {
	det *Detector
}

func NewONNXDetector(det *Detector) *ONNXDetector {
	return &ONNXDetector{det: det}
}

func (a *ONNXDetector) Detect(frame image.Image) ([]BoundingBox, error) {
	w, h := a.det.InputSize()
	b := frame.Bounds()
	origW, origH := b.Dx(), b.Dy()

	// RetinaFace det_10g expects input centered on 127.5 and scaled by 1/128.
	chw := toCHW(frame, w, h, 127.5, 1.0/128.0)

	dets, err := a.det.Detect(chw, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	out := make([]BoundingBox, len(dets))
	for i, d := range dets {
		out[i] = BoundingBox{
			X1:         d.BBox[0],
			Y1:         d.BBox[1],
			X2:         d.BBox[2],
			Y2:         d.BBox[3],
			Confidence: d.Confidence,
		}
	}
	return out, nil
}

func (a *ONNXDetector) Close() {
	a.det.Close()
}
