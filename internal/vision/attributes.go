package vision

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// GenderAge is a per-identity demographic estimate, attached to a
// PersonOverlay purely as an operator-facing enrichment; the tracker's
// admission decision never consults it.
type GenderAge struct {
	Gender           string // "male" or "female"
	GenderConfidence float32
	Age              int
	AgeRange         string // e.g. "30-35"
}

// ageBucketWidth is the width of the age range bucket surfaced alongside a
// point estimate (spec.md has no notion of this field; it exists purely to
// make a single noisy age prediction presentable).
const ageBucketWidth = 5

// AttributePredictor runs the InsightFace genderage ONNX graph over a
// 96x96 face crop. Wrapped by ONNXAttributePredictor for callers that work
// in image.Image rather than pre-baked CHW tensors.
type AttributePredictor struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

// NewAttributePredictor loads the gender/age ONNX model at modelPath. opts
// may be nil for ORT defaults.
func NewAttributePredictor(modelPath string, opts *ort.SessionOptions) (*AttributePredictor, error) {
	const inputW, inputH = 96, 96

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// fc1 = Concat(fullyconnected0 [2 gender logits], fullyconnected1 [1 age value])
	outputShape := ort.NewShape(1, 3)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"data"},
		[]string{"fc1"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create attribute session: %w", err)
	}

	return &AttributePredictor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// Predict runs one forward pass over a CHW, mean/std-normalized 96x96 face
// crop and decodes the gender/age estimate.
func (p *AttributePredictor) Predict(faceData []float32) (*GenderAge, error) {
	inputSlice := p.inputTensor.GetData()
	copy(inputSlice, faceData)

	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("run attributes: %w", err)
	}

	data := p.outputTensor.GetData()
	if len(data) < 3 {
		return nil, fmt.Errorf("unexpected attribute output size: %d", len(data))
	}
	femaleLogit, maleLogit, ageNorm := data[0], data[1], data[2]

	gender := "female"
	if maleLogit > femaleLogit {
		gender = "male"
	}

	// softmax(male) = 1 / (1 + exp(-(male - female)))
	maleProbability := float32(1.0 / (1.0 + math.Exp(float64(-(maleLogit - femaleLogit)))))
	genderConf := maleProbability
	if gender == "female" {
		genderConf = 1 - maleProbability
	}

	// InsightFace genderage normalizes age/100 during training.
	age := clampInt(int(math.Round(float64(ageNorm)*100)), 0, 100)

	lower := (age / ageBucketWidth) * ageBucketWidth
	ageRange := fmt.Sprintf("%d-%d", lower, lower+ageBucketWidth)

	return &GenderAge{
		Gender:           gender,
		GenderConfidence: genderConf,
		Age:              age,
		AgeRange:         ageRange,
	}, nil
}

// InputSize returns the model's expected (width, height).
func (p *AttributePredictor) InputSize() (int, int) {
	return p.inputW, p.inputH
}

func (p *AttributePredictor) Close() {
	if p.session != nil {
		p.session.Destroy()
	}
	if p.inputTensor != nil {
		p.inputTensor.Destroy()
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
	}
}
