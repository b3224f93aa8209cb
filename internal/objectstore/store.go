// Package objectstore implements C6: durable local stills plus async
// upload to the object store, keyed by the convention of spec.md §4.5.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Uploader is the subset of storage.MinIOStore this package depends on.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// OnUploaded is invoked with the result of an upload attempt so the caller
// can write RemoteURL back to the registry. Called on a pool goroutine,
// never on the pipeline goroutine.
type OnUploaded func(personID, key, remoteURL string, err error)

// Store writes stills to a local directory first (spec.md §4.5: "the local
// image file is always written before the upload is attempted"), then
// hands the upload off to a bounded goroutine pool.
type Store struct {
	stillsDir string
	uploader  Uploader
	onDone    OnUploaded

	jobs chan uploadJob
	done chan struct{}
	wg   sync.WaitGroup
}

type uploadJob struct {
	personID string
	key      string
	path     string
}

// New starts a pool of workers workers. A nil uploader disables remote
// upload entirely — stills are still written locally and the registry's
// RemoteURL simply stays empty.
func New(stillsDir string, workers int, uploader Uploader, onDone OnUploaded) *Store {
	if workers <= 0 {
		workers = 1
	}
	s := &Store{
		stillsDir: stillsDir,
		uploader:  uploader,
		onDone:    onDone,
		jobs:      make(chan uploadJob, workers*4),
		done:      make(chan struct{}),
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// SaveAndEnqueue writes png to stillsDir/key's basename, then enqueues an
// async upload under faces/<key>. Returns the local path and the derived
// object key (spec.md §4.5: fmt.Sprintf("%s_%d.png", personID, unixTime)).
func (s *Store) SaveAndEnqueue(personID string, png []byte, now time.Time) (localPath, key string, err error) {
	filename := fmt.Sprintf("%s_%d.png", personID, now.Unix())
	key = "faces/" + filename
	localPath = filepath.Join(s.stillsDir, filename)

	if err := os.MkdirAll(s.stillsDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create stills dir: %w", err)
	}
	if err := os.WriteFile(localPath, png, 0o644); err != nil {
		return "", "", fmt.Errorf("write still %s: %w", localPath, err)
	}

	select {
	case s.jobs <- uploadJob{personID: personID, key: key, path: localPath}:
	default:
		slog.Warn("upload queue full, dropping upload", "person_id", personID, "key", key)
	}
	return localPath, key, nil
}

func (s *Store) worker() {
	defer s.wg.Done()
	for job := range s.jobs {
		s.runJob(job)
	}
}

func (s *Store) runJob(job uploadJob) {
	if s.uploader == nil {
		return
	}
	data, err := os.ReadFile(job.path)
	if err != nil {
		if s.onDone != nil {
			s.onDone(job.personID, job.key, "", fmt.Errorf("read still for upload: %w", err))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url, err := s.uploader.Upload(ctx, job.key, data, "image/png")
	if s.onDone != nil {
		s.onDone(job.personID, job.key, url, err)
	}
	if err != nil {
		slog.Warn("still upload failed, not retried", "person_id", job.personID, "key", job.key, "error", err)
	}
}

// Close stops accepting new jobs. It does not wait for in-flight uploads;
// callers that need a bounded-timeout join at shutdown should use Shutdown
// instead.
func (s *Store) Close() {
	close(s.jobs)
}

// Shutdown closes the job queue and waits up to timeout for all in-flight
// uploads to finish, reporting whether they all completed in time. Used by
// cmd/faceid at process shutdown (spec.md §5's "joins the upload pool with
// a bounded timeout").
func (s *Store) Shutdown(timeout time.Duration) bool {
	close(s.jobs)
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return true
	case <-time.After(timeout):
		slog.Warn("upload pool shutdown timed out, some uploads may be abandoned")
		return false
	}
}
