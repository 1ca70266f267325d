// Package metrics counts what happened during one run and can leave the
// numbers behind for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run holds the metrics of a single run on a private registry.
type Run struct {
	registry *prometheus.Registry

	accountFetches  *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	mirrorAttempts  *prometheus.CounterVec
	postsSummarized *prometheus.CounterVec
	lastRun         prometheus.Gauge
}

// NewRun registers the run metrics on a fresh registry.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Run{
		registry: reg,
		accountFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postbrief_account_fetch_total",
			Help: "Accounts fetched, by outcome (ok, empty, unavailable)",
		}, []string{"outcome"}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "postbrief_account_fetch_duration_seconds",
			Help:    "Time spent fetching one account",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		mirrorAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postbrief_mirror_attempts_total",
			Help: "Mirror endpoint attempts, by result (ok, empty, failed)",
		}, []string{"result"}),
		postsSummarized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postbrief_posts_summarized_total",
			Help: "Posts sent for summarization, by result (ok, failed)",
		}, []string{"result"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "postbrief_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
}

func (r *Run) AccountFetched(outcome string, elapsed time.Duration) {
	r.accountFetches.WithLabelValues(outcome).Inc()
	r.fetchDuration.Observe(elapsed.Seconds())
}

func (r *Run) MirrorAttempt(result string) {
	r.mirrorAttempts.WithLabelValues(result).Inc()
}

func (r *Run) PostSummarized(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.postsSummarized.WithLabelValues(result).Inc()
}

// Finish stamps the run completion time.
func (r *Run) Finish(t time.Time) {
	r.lastRun.Set(float64(t.Unix()))
}

// Registry exposes the underlying registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics in text exposition format to path.
// The file is replaced atomically.
func (r *Run) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
