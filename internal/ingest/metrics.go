package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reelshare/internal/models"
)

// Observer captures telemetry for ingestions.
type Observer interface {
	RecordIngest(kind models.SourceKind, duration time.Duration, sizeBytes int64, err error)
	RecordPolls(kind models.SourceKind, polls int)
}

type nopObserver struct{}

func (nopObserver) RecordIngest(models.SourceKind, time.Duration, int64, error) {}
func (nopObserver) RecordPolls(models.SourceKind, int)                          {}

// PrometheusObserver exports ingestion metrics.
type PrometheusObserver struct {
	duration      *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	ingestedBytes *prometheus.CounterVec
	polls         *prometheus.HistogramVec
}

// NewPrometheusObserver registers ingestion metrics on reg (default registerer when nil).
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "reelshare"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end ingestion latency including download, upload and polling.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"source"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Ingestions by source and outcome.",
		}, []string{"source", "outcome"}),
		ingestedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_bytes_total",
			Help:      "Bytes successfully handed to the remote file store.",
		}, []string{"source"}),
		polls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_status_polls",
			Help:      "Status checks needed before a file left PROCESSING.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 150, 300},
		}, []string{"source"}),
	}

	var err error
	if o.duration, err = registerHistogram(reg, o.duration); err != nil {
		return nil, err
	}
	if o.outcomes, err = registerCounter(reg, o.outcomes); err != nil {
		return nil, err
	}
	if o.ingestedBytes, err = registerCounter(reg, o.ingestedBytes); err != nil {
		return nil, err
	}
	if o.polls, err = registerHistogram(reg, o.polls); err != nil {
		return nil, err
	}
	return o, nil
}

func registerHistogram(reg prometheus.Registerer, h *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register ingest histogram: %w", err)
	}
	return h, nil
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register ingest counter: %w", err)
	}
	return c, nil
}

func (o *PrometheusObserver) RecordIngest(kind models.SourceKind, duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	source := string(kind)
	o.duration.WithLabelValues(source).Observe(duration.Seconds())
	o.outcomes.WithLabelValues(source, outcome(err)).Inc()
	if err == nil && sizeBytes > 0 {
		o.ingestedBytes.WithLabelValues(source).Add(float64(sizeBytes))
	}
}

func (o *PrometheusObserver) RecordPolls(kind models.SourceKind, polls int) {
	if o == nil {
		return
	}
	o.polls.WithLabelValues(string(kind)).Observe(float64(polls))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDownload):
		return "download_error"
	case errors.Is(err, ErrUpload):
		return "upload_error"
	case errors.Is(err, ErrProcessingFailed):
		return "processing_failed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

var _ Observer = (*PrometheusObserver)(nil)
