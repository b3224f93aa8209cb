package vision

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// toCHW resizes img to w x h and packs it into CHW float32 order, scaling
// each channel by scale after subtracting mean. RetinaFace/ArcFace both
// expect this layout; the two differ only in mean/scale (see the
// detect_adapter.go and embed_adapter.go callers).
func toCHW(img image.Image, w, h int, mean, scale float32) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	out := make([]float32, 3*w*h)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			idx := y*w + x
			out[idx] = (float32(r>>8) - mean) * scale
			out[plane+idx] = (float32(g>>8) - mean) * scale
			out[2*plane+idx] = (float32(b>>8) - mean) * scale
		}
	}
	return out
}

// grayLuma extracts an 8-bit luma plane, used by LaplacianSharpness.
func grayLuma(img image.Image) (pix []float64, w, h int) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	pix = make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			pix[y*w+x] = float64(c.Y)
		}
	}
	return pix, w, h
}
