package knownset

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// FileDecoder decodes enrollment images straight off disk using the
// standard library's registered image codecs.
type FileDecoder struct{}

func (FileDecoder) Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open enrollment image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode enrollment image: %w", err)
	}
	return img, nil
}
