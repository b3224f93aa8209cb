package videosource

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileLoop replays a directory of still images as a frame source, looping
// back to the first file once the last is reached. Used for offline
// replay and tests where a real camera or stream is unavailable.
type FileLoop struct {
	mu    sync.Mutex
	paths []string
	idx   int
}

// NewFileLoop lists dir for jpg/png files in lexicographic order.
func NewFileLoop(dir string) (*FileLoop, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".jpg" || ext == ".jpeg" || ext == ".png" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list still frames in %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no still images found in %s", dir)
	}
	sort.Strings(paths)
	return &FileLoop{paths: paths}, nil
}

func (f *FileLoop) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	path := f.paths[f.idx]
	f.idx = (f.idx + 1) % len(f.paths)
	f.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open still %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode still %s: %w", path, err)
	}
	return img, nil
}

func (f *FileLoop) Close() error { return nil }
