package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/yourco/faceid/internal/attributes"
	"github.com/yourco/faceid/internal/candidate"
	"github.com/yourco/faceid/internal/config"
	"github.com/yourco/faceid/internal/enrichment"
	"github.com/yourco/faceid/internal/eventlog"
	"github.com/yourco/faceid/internal/knownset"
	"github.com/yourco/faceid/internal/observability"
	"github.com/yourco/faceid/internal/objectstore"
	"github.com/yourco/faceid/internal/pipeline"
	"github.com/yourco/faceid/internal/queue"
	"github.com/yourco/faceid/internal/quality"
	"github.com/yourco/faceid/internal/registry"
	"github.com/yourco/faceid/internal/storage"
	"github.com/yourco/faceid/internal/thumbnail"
	"github.com/yourco/faceid/internal/tracker"
	"github.com/yourco/faceid/internal/videosource"
	"github.com/yourco/faceid/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	source := flag.String("source", "0", "camera index or stream URL")
	sourceType := flag.String("type", "local", "source type: local (camera) or network (ffmpeg URL)")
	width := flag.Int("width", 0, "capture width override (0 = driver default)")
	height := flag.Int("height", 0, "capture height override (0 = driver default)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting face identification pipeline", "cpu_cores", runtime.NumCPU())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	detector, err := vision.NewDetector(filepath.Join(cfg.Vision.ModelsDir, "det_10g.onnx"),
		float32(cfg.Vision.DetectionThreshold), float32(cfg.Vision.NMSIoUThreshold), nil)
	if err != nil {
		slog.Error("load detector model", "error", err)
		os.Exit(1)
	}
	defer detector.Close()
	onnxDetector := vision.NewONNXDetector(detector)

	embedder, err := vision.NewEmbedder(filepath.Join(cfg.Vision.ModelsDir, "w600k_r50.onnx"))
	if err != nil {
		slog.Error("load embedder model", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()
	onnxEmbedder := vision.NewONNXEmbedder(embedder)

	sharpness := vision.LaplacianSharpness{}

	attrCache := attributes.NewCache()
	var attrEstimator attributes.Estimator
	if cfg.Vision.AttributesModel != "" {
		attrPredictor, err := vision.NewAttributePredictor(filepath.Join(cfg.Vision.ModelsDir, cfg.Vision.AttributesModel), nil)
		if err != nil {
			slog.Warn("load attributes model, disabling gender/age estimation", "error", err)
		} else {
			defer attrPredictor.Close()
			attrEstimator = vision.NewONNXAttributePredictor(attrPredictor)
		}
	}

	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("ensure postgres schema", "error", err)
		os.Exit(1)
	}

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	if err := producer.EnsureStream(ctx); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	known := knownset.New(cfg.Vision.KnownSetDir, onnxEmbedder, knownset.FileDecoder{}, knownset.NewPostgresMirror(db))
	if err := known.Rebuild(ctx); err != nil {
		slog.Error("build known set", "error", err)
		os.Exit(1)
	}

	reg := registry.New(cfg.Tracking.RegistryPath)
	if err := reg.LoadFromDisk(); err != nil {
		slog.Error("load registry from disk", "error", err)
		os.Exit(1)
	}

	objStore := objectstore.New(cfg.Vision.StillsDir, cfg.Vision.UploadWorkers, minioStore, pipeline.OnUploadComplete(reg))

	recordStore := enrichment.NewPostgresRecordStore(db)
	enrichWorker := enrichment.New(recordStore, reg, enrichment.IsTransientPostgresError,
		cfg.Tracking.PollInterval, cfg.Tracking.PollMaxDuration)
	defer enrichWorker.Shutdown()

	gate := candidate.New(cfg.Tracking.DuplicateThreshold, cfg.Tracking.StabilityCount, cfg.Tracking.CandidateStaleAfter)
	qc := quality.New(cfg.Tracking.DuplicateThreshold, cfg.Tracking.QualitySampleCount, cfg.Tracking.CandidateStaleAfter)

	onAdmit := pipeline.ComposeOnAdmit(
		pipeline.SaveStillAndEnqueue(reg, objStore),
		attributes.OnAdmit(attrEstimator, attrCache),
	)
	trk := tracker.New(known, pipeline.RegistryAdapter(reg), gate, qc,
		cfg.Tracking.RecognitionThreshold, cfg.Tracking.DuplicateThreshold, cfg.Tracking.MinSharpness,
		cfg.Tracking.EnableQualityCheck, onAdmit)

	thumbs := thumbnail.New(2 * time.Second)
	events := eventlog.New(3*time.Second, producer)

	pipe := pipeline.New(onnxDetector, onnxEmbedder, sharpness, trk, reg, thumbs, enrichWorker, events, attrCache,
		float32(cfg.Vision.DetectionThreshold))

	src, err := openSource(ctx, *sourceType, *source, *width, *height)
	if err != nil {
		slog.Error("open video source", "error", err)
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		slog.Info("metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	frameErrs := make(chan error, 1)
	go runFrameLoop(ctx, src, *sourceType, *source, *width, *height, pipe, frameErrs)

	select {
	case <-quit:
		slog.Info("shutdown signal received")
	case err := <-frameErrs:
		slog.Error("frame loop exhausted its retries, shutting down", "error", err)
	}

	cancel()
	if err := reg.SaveToDisk(); err != nil {
		slog.Error("save registry on shutdown", "error", err)
	}
	if !objStore.Shutdown(10 * time.Second) {
		slog.Warn("upload pool did not drain before the shutdown deadline")
	}
	slog.Info("shutdown complete")
}

// maxConsecutiveFrameFailures bounds how many back-to-back capture errors
// runFrameLoop tolerates before reinitializing the source (spec.md §7:
// a frame-capture failure is visible as a brief gap, not a crash).
const maxConsecutiveFrameFailures = 10

func runFrameLoop(ctx context.Context, src videosource.Source, sourceType, source string, width, height int, pipe *pipeline.Pipeline, errs chan<- error) {
	consecutiveFailures := 0
	for {
		if ctx.Err() != nil {
			src.Close()
			return
		}
		frame, err := src.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				src.Close()
				return
			}
			consecutiveFailures++
			slog.Warn("frame capture failed", "error", err, "consecutive_failures", consecutiveFailures)
			if consecutiveFailures < maxConsecutiveFrameFailures {
				continue
			}

			slog.Warn("reinitializing video source after repeated capture failures")
			src.Close()
			newSrc, openErr := openSource(ctx, sourceType, source, width, height)
			if openErr != nil {
				errs <- fmt.Errorf("reinitialize video source: %w", openErr)
				return
			}
			src = newSrc
			consecutiveFailures = 0
			continue
		}

		consecutiveFailures = 0
		if _, err := pipe.ProcessFrame(ctx, frame, time.Now()); err != nil {
			slog.Warn("process frame failed, continuing", "error", err)
		}
	}
}

func openSource(ctx context.Context, sourceType, source string, width, height int) (videosource.Source, error) {
	switch sourceType {
	case "network":
		return videosource.OpenFFmpeg(ctx, source, 15, width)
	case "local":
		deviceID := 0
		if _, err := fmt.Sscanf(source, "%d", &deviceID); err != nil {
			return videosource.NewFileLoop(source)
		}
		return videosource.OpenCamera(deviceID, width, height)
	default:
		return nil, fmt.Errorf("unknown source type %q (expected local or network)", sourceType)
	}
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
