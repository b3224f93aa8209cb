// Package videosource supplies frames to the pipeline from a local camera,
// a network stream (via ffmpeg), or a directory of still images for
// offline replay and tests. Matches the CLI surface of spec.md §6:
// --source (camera index or URL), --type (local / network).
package videosource

import (
	"context"
	"image"
)

// Source yields one decoded frame at a time. NextFrame blocks until a
// frame is available, ctx is cancelled, or the source is exhausted (io.EOF
// when an FFmpeg stream ends; FileLoop wraps around and never returns it).
type Source interface {
	NextFrame(ctx context.Context) (image.Image, error)
	Close() error
}
