// Package metrics exposes Prometheus instruments for submissions and polling.
package metrics

import (
	"time"

	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the application's instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	submissions  *prometheus.CounterVec
	pollRounds   prometheus.Counter
	pollErrors   *prometheus.CounterVec
	pollDuration prometheus.Histogram
	newPosts     prometheus.Counter
	trackedFeeds prometheus.Gauge
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rssagg_submissions_total",
			Help: "Feed submissions by outcome (ok or error kind)",
		}, []string{"outcome"}),
		pollRounds: f.NewCounter(prometheus.CounterOpts{
			Name: "rssagg_poll_rounds_total",
			Help: "Completed poll rounds",
		}),
		pollErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rssagg_poll_fetch_errors_total",
			Help: "Per-feed poll failures by error kind",
		}, []string{"kind"}),
		pollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rssagg_poll_round_duration_seconds",
			Help:    "Duration of a poll round",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		newPosts: f.NewCounter(prometheus.CounterOpts{
			Name: "rssagg_new_posts_total",
			Help: "Posts merged into state by the poller",
		}),
		trackedFeeds: f.NewGauge(prometheus.GaugeOpts{
			Name: "rssagg_tracked_feeds",
			Help: "Number of tracked feeds",
		}),
	}
}

// Submission records the outcome of a manual submission.
func (m *Metrics) Submission(kind model.ErrorKind) {
	if m == nil {
		return
	}
	outcome := string(kind)
	if kind == model.ErrorNone {
		outcome = "ok"
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// PollRound records a finished poll round.
func (m *Metrics) PollRound(d time.Duration, added int) {
	if m == nil {
		return
	}
	m.pollRounds.Inc()
	m.pollDuration.Observe(d.Seconds())
	m.newPosts.Add(float64(added))
}

// PollError records a failed feed fetch during a poll round.
func (m *Metrics) PollError(kind model.ErrorKind) {
	if m == nil {
		return
	}
	m.pollErrors.WithLabelValues(string(kind)).Inc()
}

// TrackedFeeds sets the tracked feed gauge.
func (m *Metrics) TrackedFeeds(n int) {
	if m == nil {
		return
	}
	m.trackedFeeds.Set(float64(n))
}
