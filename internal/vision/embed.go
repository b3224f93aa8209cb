package vision

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// arcfaceOutputName is w600k_r50's single output tensor name in the
// exported ONNX graph.
const arcfaceOutputName = "683"

// Embedder extracts a fixed-length face representation from a 112x112 face
// crop using the ArcFace (w600k_r50) ONNX graph. L2 normalization is left
// to the caller (see ONNXEmbedder, which wraps the raw vector in
// models.Embedding and normalizes it there) so this type stays a thin,
// reusable ONNX session wrapper with no knowledge of the domain type.
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
}

// NewEmbedder loads the ArcFace ONNX model at modelPath.
func NewEmbedder(modelPath string) (*Embedder, error) {
	const inputW, inputH = 112, 112
	const embDim = 512

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(embDim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{arcfaceOutputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		embDim:       embDim,
	}, nil
}

// Extract runs one forward pass over a CHW, mean/std-normalized 112x112
// face crop and returns the raw (not L2-normalized) embedding vector.
func (e *Embedder) Extract(faceData []float32) ([]float32, error) {
	inputSlice := e.inputTensor.GetData()
	copy(inputSlice, faceData)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	vec := make([]float32, e.embDim)
	copy(vec, e.outputTensor.GetData())
	return vec, nil
}

// InputSize returns the model's expected (width, height).
func (e *Embedder) InputSize() (int, int) {
	return e.inputW, e.inputH
}

// EmbeddingDim returns the embedding vector's dimension.
func (e *Embedder) EmbeddingDim() int {
	return e.embDim
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}
