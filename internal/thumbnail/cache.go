// Package thumbnail implements C8: a process-wide URL-to-decoded-image
// cache populated lazily by the overlay path. Failed fetches are never
// memoized so a later frame may retry; no eviction is required.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sync"
	"time"
)

// Cache is a sync.RWMutex-protected map from URL to decoded image.
type Cache struct {
	mu     sync.RWMutex
	images map[string]image.Image

	client *http.Client
}

func New(timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Cache{
		images: map[string]image.Image{},
		client: &http.Client{Timeout: timeout},
	}
}

// Get returns the decoded image for url, fetching and decoding it
// synchronously on a cache miss. A failed fetch is not cached.
func (c *Cache) Get(ctx context.Context, url string) (image.Image, bool) {
	c.mu.RLock()
	img, ok := c.images[url]
	c.mu.RUnlock()
	if ok {
		return img, true
	}

	img, err := c.fetch(ctx, url)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	c.images[url] = img
	c.mu.Unlock()
	return img, true
}

func (c *Cache) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build thumbnail request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch thumbnail: unexpected status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail: %w", err)
	}
	return img, nil
}

// Len reports the current cache size, used for metrics/tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}
