package objectstore

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// EncodePNG renders img as a PNG byte slice, the format spec.md §4.5
// requires for saved stills.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode still as png: %w", err)
	}
	return buf.Bytes(), nil
}
