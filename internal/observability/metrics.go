package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed by the pipeline",
	})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "faces_detected_total",
		Help:      "Total number of faces found by the detector",
	})

	FacesRecognized = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "faces_recognized_total",
		Help:      "Total number of faces classified Recognized against the known set",
	})

	FacesAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "faces_admitted_total",
		Help:      "Total number of new identities admitted into the registry",
	})

	EnrichmentCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "enrichment_completed_total",
		Help:      "Total enrichment pollers that reached a terminal state",
	}, []string{"outcome"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "inference_duration_seconds",
		Help:      "Duration of detect/embed/sharpness stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	RegistrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "registry_size",
		Help:      "Current number of admitted identities",
	})
)
