package vision

import "image"

// laplacianKernel is the standard 4-neighbor discrete Laplacian.
var laplacianKernel = [3][3]float64{
	{0, 1, 0},
	{1, -4, 1},
	{0, 1, 0},
}

// LaplacianSharpness scores a crop by the variance of its Laplacian over the
// luma plane — the standard blur-detection metric, implemented in pure Go
// over the crop rather than pulling in a second native image library for one
// scalar (see DESIGN.md).
type LaplacianSharpness struct{}

func (LaplacianSharpness) Score(crop image.Image) float64 {
	pix, w, h := grayLuma(crop)
	if w < 3 || h < 3 {
		return 0
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var v float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					k := laplacianKernel[ky+1][kx+1]
					if k == 0 {
						continue
					}
					v += k * pix[(y+ky)*w+(x+kx)]
				}
			}
			sum += v
			sumSq += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}
