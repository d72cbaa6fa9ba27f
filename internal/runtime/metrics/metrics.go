// Package metrics implements the Wrapper Pipeline's Prometheus-backed
// resource and latency metrics, built on a client_golang registry so
// they can be scraped rather than only inspected in-process.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the Wrapper Pipeline's metrics sink: one invocation's
// outcome, folded into counters/histograms/gauges labeled by function
// name.
type Recorder struct {
	registry   *prometheus.Registry
	sampler    *resourceTracker
	classifier Classifier

	invocations *prometheus.CounterVec
	errors      *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	cpuPercent  *prometheus.GaugeVec
	memoryBytes *prometheus.GaugeVec
	goroutines  *prometheus.GaugeVec
}

// New builds a Recorder with its own registry (so tests and parallel
// invocations never collide on the process-global default registry).
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry:   registry,
		sampler:    newResourceTracker(),
		classifier: DefaultClassifier,
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aws_orchestrate_invocations_total",
			Help: "Total wrapped handler invocations by function and outcome.",
		}, []string{"function", "outcome"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aws_orchestrate_errors_total",
			Help: "Total cascade errors by function and category.",
		}, []string{"function", "category"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aws_orchestrate_handler_duration_seconds",
			Help:    "Wrapped invocation latency in seconds, from entry into the wrapper to its returned response.",
			Buckets: prometheus.DefBuckets,
		}, []string{"function"}),
		cpuPercent: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aws_orchestrate_cpu_percent",
			Help: "CPU percent sampled at the end of the most recent invocation.",
		}, []string{"function"}),
		memoryBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aws_orchestrate_memory_bytes",
			Help: "Allocated heap bytes sampled at the end of the most recent invocation.",
		}, []string{"function"}),
		goroutines: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aws_orchestrate_goroutines",
			Help: "Goroutine count sampled at the end of the most recent invocation.",
		}, []string{"function"}),
	}
}

// SetClassifier overrides how cascade errors are bucketed into the error
// counter's category label.
func (r *Recorder) SetClassifier(c Classifier) {
	r.classifier = c
}

// RecordInvocation records one invocation's outcome: latency, an
// invocation-outcome count, an error-category count if err is non-nil,
// and a fresh resource-usage sample.
func (r *Recorder) RecordInvocation(function string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.errors.WithLabelValues(function, string(r.classifier(err))).Inc()
	}
	r.invocations.WithLabelValues(function, outcome).Inc()
	r.latency.WithLabelValues(function).Observe(duration.Seconds())

	usage := r.sampler.Snapshot()
	r.cpuPercent.WithLabelValues(function).Set(usage.CPUPercent)
	r.memoryBytes.WithLabelValues(function).Set(float64(usage.MemoryBytes))
	r.goroutines.WithLabelValues(function).Set(float64(usage.Goroutines))
}

// Handler exposes the registry's scrape endpoint for a metrics server
// bound to config.MetricsPort.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing the metrics endpoint at
// `/metrics` on addr, blocking until ctx is cancelled or the server
// fails.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return server.Close()
	case err := <-errCh:
		return err
	}
}
