package vision

import (
	"fmt"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one raw face box decoded from the detector's anchor grid,
// before it is handed to a FaceDetector adapter and turned into a
// BoundingBox (spec.md §3's DetectedFace only needs the box and the
// confidence; landmarks are carried for callers that want them later, e.g.
// alignment, but nothing in this repo consumes them yet).
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2 in pixel coordinates of the original frame
	Confidence float32
	Landmarks  [5][2]float32
}

// Detector runs the RetinaFace det_10g ONNX graph: a single forward pass
// produces per-stride score/bbox/landmark tensors that decodeDetections
// decodes into Detection values.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	nmsIoU        float32
	inputW        int
	inputH        int
}

// retinaFaceStrides are det_10g's three feature-pyramid strides; each
// contributes its own score/bbox/landmark output triple below.
var retinaFaceStrides = []int{8, 16, 32}

// anchorsPerCell is det_10g's anchor count per feature-map cell.
const anchorsPerCell = 2

// outputSpec names one of det_10g's nine output tensors and the shape this
// graph was exported with (batch dimension omitted, per stride).
type outputSpec struct {
	name  string
	shape ort.Shape
}

// retinaFaceOutputs enumerates det_10g's score/bbox/landmark outputs in
// stride order (8, 16, 32). The counts fall out of 640x640 input at each
// stride: (640/stride)^2 * anchorsPerCell locations.
func retinaFaceOutputs() []outputSpec {
	return []outputSpec{
		{"448", ort.NewShape(12800, 1)},  // scores, stride 8
		{"471", ort.NewShape(3200, 1)},   // scores, stride 16
		{"494", ort.NewShape(800, 1)},    // scores, stride 32
		{"451", ort.NewShape(12800, 4)},  // bboxes, stride 8
		{"474", ort.NewShape(3200, 4)},   // bboxes, stride 16
		{"497", ort.NewShape(800, 4)},    // bboxes, stride 32
		{"454", ort.NewShape(12800, 10)}, // landmarks, stride 8
		{"477", ort.NewShape(3200, 10)},  // landmarks, stride 16
		{"500", ort.NewShape(800, 10)},   // landmarks, stride 32
	}
}

// NewDetector loads the RetinaFace ONNX model at modelPath. threshold is
// the minimum per-anchor score kept before NMS (internal/config's
// detection_threshold); nmsIoU is the overlap above which a lower-scoring
// box is suppressed (internal/config's nms_iou_threshold). opts may be nil
// for ORT defaults.
func NewDetector(modelPath string, threshold float32, nmsIoU float32, opts *ort.SessionOptions) (*Detector, error) {
	const inputW, inputH = 640, 640

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputs := retinaFaceOutputs()
	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))

	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %d (%s): %w", i, spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	if nmsIoU <= 0 {
		nmsIoU = 0.4
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		nmsIoU:        nmsIoU,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect runs one forward pass over a preprocessed CHW, mean/std-normalized
// frame and returns non-overlapping detections rescaled to (origW, origH).
func (d *Detector) Detect(imgData []float32, origW, origH int) ([]Detection, error) {
	inputSlice := d.inputTensor.GetData()
	copy(inputSlice, imgData)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	detections := d.decodeDetections(origW, origH)
	return suppressOverlapping(detections, d.nmsIoU), nil
}

// decodeDetections walks each stride's anchor grid and keeps boxes whose
// score clears d.threshold, rescaling coordinates back to the original
// frame size.
func (d *Detector) decodeDetections(origW, origH int) []Detection {
	var detections []Detection

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range retinaFaceStrides {
		scores := d.outputTensors[si].GetData()      // [N, 1]
		bboxes := d.outputTensors[si+3].GetData()     // [N, 4]
		landmarks := d.outputTensors[si+6].GetData()  // [N, 10]

		fmW := d.inputW / stride
		fmH := d.inputH / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerCell; a++ {
					score := scores[idx]
					if score >= d.threshold {
						anchorX := float32(cx) * st
						anchorY := float32(cy) * st

						x1 := clampF((anchorX-bboxes[idx*4+0]*st)*scaleW, 0, float32(origW))
						y1 := clampF((anchorY-bboxes[idx*4+1]*st)*scaleH, 0, float32(origH))
						x2 := clampF((anchorX+bboxes[idx*4+2]*st)*scaleW, 0, float32(origW))
						y2 := clampF((anchorY+bboxes[idx*4+3]*st)*scaleH, 0, float32(origH))

						var lm [5][2]float32
						for li := 0; li < 5; li++ {
							lm[li][0] = (anchorX + landmarks[idx*10+li*2]*st) * scaleW
							lm[li][1] = (anchorY + landmarks[idx*10+li*2+1]*st) * scaleH
						}

						detections = append(detections, Detection{
							BBox:       [4]float32{x1, y1, x2, y2},
							Confidence: score,
							Landmarks:  lm,
						})
					}
					idx++
				}
			}
		}
	}

	return detections
}

// InputSize returns the model's expected (width, height).
func (d *Detector) InputSize() (int, int) {
	return d.inputW, d.inputH
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// suppressOverlapping runs greedy Non-Maximum Suppression: detections are
// visited highest-confidence first, and any later box overlapping a kept
// one by more than iouThreshold is dropped.
func suppressOverlapping(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}

	for i := range detections {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if keep[j] && iou(detections[i].BBox, detections[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Detection, 0, len(detections))
	for i, det := range detections {
		if keep[i] {
			result = append(result, det)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
