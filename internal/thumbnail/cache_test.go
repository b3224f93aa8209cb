package thumbnail

import (
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetCachesSuccessfulFetch(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		png.Encode(w, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	}))
	defer srv.Close()

	c := New(2 * time.Second)
	img1, ok := c.Get(context.Background(), srv.URL)
	if !ok || img1 == nil {
		t.Fatal("expected first fetch to succeed")
	}
	img2, ok := c.Get(context.Background(), srv.URL)
	if !ok || img2 == nil {
		t.Fatal("expected cache hit to succeed")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one HTTP fetch, got %d", hits)
	}
}

func TestGetDoesNotCacheFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(2 * time.Second)
	_, ok := c.Get(context.Background(), srv.URL)
	if ok {
		t.Fatal("expected failed fetch to report ok=false")
	}
	_, ok = c.Get(context.Background(), srv.URL)
	if ok {
		t.Fatal("expected second failed fetch to also report ok=false")
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected a later frame to retry (2 fetch attempts), got %d", hits)
	}
	if c.Len() != 0 {
		t.Fatalf("expected no cache entries after only failures, got %d", c.Len())
	}
}
