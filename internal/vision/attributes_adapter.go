package vision

import (
	"fmt"
	"image"
)

// ONNXAttributePredictor adapts the genderage AttributePredictor to operate
// on a decoded face crop, handling resize/normalize the way ONNXDetector and
// ONNXEmbedder do for their respective models.
type ONNXAttributePredictor struct {
	pred *AttributePredictor
}

func NewONNXAttributePredictor(pred *AttributePredictor) *ONNXAttributePredictor {
	return &ONNXAttributePredictor{pred: pred}
}

// Predict estimates gender and age from a face crop. Additive only: nothing
// in the tracker's admission decision consults this.
func (a *ONNXAttributePredictor) Predict(crop image.Image) (*GenderAge, error) {
	w, h := a.pred.InputSize()
	chw := toCHW(crop, w, h, 127.5, 1.0/127.5)

	ga, err := a.pred.Predict(chw)
	if err != nil {
		return nil, fmt.Errorf("predict attributes: %w", err)
	}
	return ga, nil
}

func (a *ONNXAttributePredictor) Close() {
	a.pred.Close()
}
