//go:build cgo

package videosource

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const fourccMJPEG = 0x47504A4D

// Camera reads frames from a local V4L2 webcam via GoCV, adapted to the
// Source interface's image.Image contract.
type Camera struct {
	mu     sync.Mutex
	webcam *gocv.VideoCapture
	opened bool
}

// OpenCamera opens device deviceID with the requested width/height (0
// leaves the driver default). Uses the V4L2 backend explicitly to avoid
// GStreamer's "Internal data stream error" on Linux.
func OpenCamera(deviceID, width, height int) (*Camera, error) {
	webcam, err := gocv.OpenVideoCaptureWithAPI(deviceID, gocv.VideoCaptureV4L2)
	if err != nil {
		return nil, fmt.Errorf("open camera device %d: %w", deviceID, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("camera device %d not found or unavailable", deviceID)
	}

	webcam.Set(gocv.VideoCaptureFOURCC, fourccMJPEG)
	if width > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	warmup := gocv.NewMat()
	webcam.Read(&warmup)
	warmup.Close()

	return &Camera{webcam: webcam, opened: true}, nil
}

// NextFrame captures and decodes one frame. ctx is observed only for
// cancellation between frames; the underlying gocv.Read call itself does
// not take a context.
func (c *Camera) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return nil, fmt.Errorf("camera not opened")
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := c.webcam.Read(&mat); !ok {
		return nil, fmt.Errorf("read frame from camera")
	}
	if mat.Empty() {
		return nil, fmt.Errorf("captured frame is empty")
	}

	rgbMat := gocv.NewMat()
	defer rgbMat.Close()
	gocv.CvtColor(mat, &rgbMat, gocv.ColorBGRToRGBA)

	img, err := rgbMat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame to image: %w", err)
	}
	return img, nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return nil
	}
	c.opened = false
	return c.webcam.Close()
}
