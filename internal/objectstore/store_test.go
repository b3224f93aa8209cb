package objectstore

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type stubUploader struct {
	mu    sync.Mutex
	calls int
	url   string
	err   error
}

func (s *stubUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.url, s.err
}

func TestSaveAndEnqueueWritesLocalFileBeforeUpload(t *testing.T) {
	dir := t.TempDir()
	uploader := &stubUploader{url: "http://minio/bucket/faces/x.png"}

	var wg sync.WaitGroup
	wg.Add(1)
	var gotURL string
	store := New(dir, 2, uploader, func(personID, key, url string, err error) {
		gotURL = url
		wg.Done()
	})
	defer store.Close()

	png, err := EncodePNG(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatal(err)
	}

	localPath, key, err := store.SaveAndEnqueue("person_001", png, time.Unix(1000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(localPath); err != nil {
		t.Fatalf("expected local still to exist before upload completes: %v", err)
	}
	if filepath.Base(localPath) != "person_001_1000.png" {
		t.Fatalf("unexpected local filename %q", localPath)
	}
	if key != "faces/person_001_1000.png" {
		t.Fatalf("unexpected object key %q", key)
	}

	wg.Wait()
	if gotURL != uploader.url {
		t.Fatalf("expected callback url %q, got %q", uploader.url, gotURL)
	}
}

func TestSaveAndEnqueueWithNilUploaderNeverCallsBack(t *testing.T) {
	dir := t.TempDir()
	called := false
	store := New(dir, 1, nil, func(string, string, string, error) { called = true })
	defer store.Close()

	png, _ := EncodePNG(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	if _, _, err := store.SaveAndEnqueue("person_002", png, time.Unix(2000, 0)); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if called {
		t.Fatal("expected no callback when uploader is nil")
	}
}
