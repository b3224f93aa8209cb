package videosource

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func TestFileLoopKeepsYieldingFramesPastLastFile(t *testing.T) {
	dir := t.TempDir()
	writeTestPNG(t, filepath.Join(dir, "a.png"))
	writeTestPNG(t, filepath.Join(dir, "b.png"))

	fl, err := NewFileLoop(dir)
	if err != nil {
		t.Fatalf("NewFileLoop: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := fl.NextFrame(ctx); err != nil {
			t.Fatalf("NextFrame iteration %d: %v", i, err)
		}
	}
}

func TestNewFileLoopErrorsOnEmptyDir(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFileLoop(dir); err == nil {
		t.Fatal("expected an error for an empty directory")
	}
}
