// Package metrics collects service counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "takeoff"

// OCR outcomes.
const (
	OCRText        = "text"
	OCREmpty       = "empty"
	OCRFailed      = "error"
	OCRUnavailable = "unavailable"
)

type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	uploads         *prometheus.CounterVec
	extractions     *prometheus.CounterVec
	ocrRequests     *prometheus.CounterVec
	ocrDuration     prometheus.Histogram
	metadataUpdates prometheus.Counter
	deletions       prometheus.Counter
	orphansSwept    prometheus.Counter

	// mirrors for Snapshot
	extractionsTotal atomic.Int64
	ocrTotal         atomic.Int64
	deletionsTotal   atomic.Int64
	uploadsTotal     atomic.Int64
	sweptTotal       atomic.Int64
}

func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Document uploads by result.",
		}, []string{"result"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Region extractions by result.",
		}, []string{"result"}),
		ocrRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_requests_total",
			Help:      "OCR refinements by outcome.",
		}, []string{"outcome"}),
		ocrDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ocr_duration_seconds",
			Help:      "Time spent in the text recognizer.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		metadataUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_updates_total",
			Help:      "Line item metadata replacements.",
		}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "line_items_deleted_total",
			Help:      "Deleted line items.",
		}),
		orphansSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_images_removed_total",
			Help:      "Image files removed because no line item referenced them.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since server start.",
		}, func() float64 { return time.Since(m.startTime).Seconds() }),
		m.httpRequests,
		m.httpDuration,
		m.uploads,
		m.extractions,
		m.ocrRequests,
		m.ocrDuration,
		m.metadataUpdates,
		m.deletions,
		m.orphansSwept,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordUpload(success bool) {
	m.uploads.WithLabelValues(result(success)).Inc()
	if success {
		m.uploadsTotal.Add(1)
	}
}

func (m *Metrics) RecordExtraction(success bool) {
	m.extractions.WithLabelValues(result(success)).Inc()
	if success {
		m.extractionsTotal.Add(1)
	}
}

func (m *Metrics) RecordOCR(outcome string, d time.Duration) {
	m.ocrRequests.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.ocrDuration.Observe(d.Seconds())
	}
	m.ocrTotal.Add(1)
}

func (m *Metrics) RecordMetadataUpdate() {
	m.metadataUpdates.Inc()
}

func (m *Metrics) RecordDeletion() {
	m.deletions.Inc()
	m.deletionsTotal.Add(1)
}

func (m *Metrics) RecordOrphansSwept(n int) {
	if n <= 0 {
		return
	}
	m.orphansSwept.Add(float64(n))
	m.sweptTotal.Add(int64(n))
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

type Snapshot struct {
	Uptime       time.Duration `json:"uptime"`
	Uploads      int64         `json:"uploads"`
	Extractions  int64         `json:"extractions"`
	OCRRequests  int64         `json:"ocr_requests"`
	Deletions    int64         `json:"deletions"`
	OrphansSwept int64         `json:"orphans_swept"`
}

func (m *Metrics) Snapshot() *Snapshot {
	return &Snapshot{
		Uptime:       time.Since(m.startTime),
		Uploads:      m.uploadsTotal.Load(),
		Extractions:  m.extractionsTotal.Load(),
		OCRRequests:  m.ocrTotal.Load(),
		Deletions:    m.deletionsTotal.Load(),
		OrphansSwept: m.sweptTotal.Load(),
	}
}
