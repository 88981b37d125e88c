package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"edgelogd/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes metrics
type Collector struct {
	registry        *prometheus.Registry
	filesTotal      *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	hostFailures    *prometheus.CounterVec
	fileDuration    prometheus.Histogram
	cycleDuration   prometheus.Histogram
	progressTracker *progress.Tracker
}

// New creates a new metrics collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgelog_files_total",
				Help: "Total number of remote files processed, by outcome",
			},
			[]string{"outcome"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "edgelog_bytes_total",
				Help: "Total bytes archived",
			},
		),
		hostFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgelog_host_failures_total",
				Help: "Host batches abandoned because of connection or listing failures",
			},
			[]string{"host"},
		),
		fileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edgelog_file_duration_seconds",
				Help:    "Time taken to process one remote file",
				Buckets: prometheus.DefBuckets,
			},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edgelog_cycle_duration_seconds",
				Help:    "Time taken to visit every configured host once",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		progressTracker: progress.NewTracker(),
	}

	c.registry.MustRegister(c.filesTotal)
	c.registry.MustRegister(c.bytesTotal)
	c.registry.MustRegister(c.hostFailures)
	c.registry.MustRegister(c.fileDuration)
	c.registry.MustRegister(c.cycleDuration)

	return c
}

// ObserveFile records the outcome of one file run
func (c *Collector) ObserveFile(outcome string, bytes int64, duration time.Duration) {
	c.filesTotal.WithLabelValues(outcome).Inc()
	c.fileDuration.Observe(duration.Seconds())
	if bytes > 0 {
		c.bytesTotal.Add(float64(bytes))
	}
}

// IncHostFailure increments the failure counter of host
func (c *Collector) IncHostFailure(host string) {
	c.hostFailures.WithLabelValues(host).Inc()
}

// ObserveCycle observes the duration of one polling cycle
func (c *Collector) ObserveCycle(duration time.Duration) {
	c.cycleDuration.Observe(duration.Seconds())
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the /metrics HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer serves metrics on addr until ctx is cancelled
func (c *Collector) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetProgressTracker returns the progress tracker
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.progressTracker
}
