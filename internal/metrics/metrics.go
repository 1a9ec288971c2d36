package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alertengine"

// Metrics holds engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Counters
	remoteAttempts  *prometheus.CounterVec // op, result (success/failure)
	remoteRetries   *prometheus.CounterVec // op
	polls           *prometheus.CounterVec // alert
	transitions     *prometheus.CounterVec // alert, to
	reporterCalls   *prometheus.CounterVec // kind
	watcherExits    *prometheus.CounterVec // reason (error/panic/stopped)
	announceDropped prometheus.Counter
	announceFailed  *prometheus.CounterVec // sink

	// Gauges
	inflight        prometheus.Gauge
	watchersRunning prometheus.Gauge
	alertLevel      *prometheus.GaugeVec // alert

	// Histograms
	remoteDuration *prometheus.HistogramVec // op
}

// New creates collectors and registers them on reg.
// Params: registerer; a dedicated registry keeps tests independent of the global one.
// Returns: metrics set.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		remoteAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_attempts_total",
			Help:      "Remote call attempts by operation and result",
		}, []string{"op", "result"}),
		remoteRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_retries_total",
			Help:      "Backoff sleeps taken before retrying a remote call",
		}, []string{"op"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Query evaluations performed per alert",
		}, []string{"alert"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Alert state transitions by target level",
		}, []string{"alert", "to"}),
		reporterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reporter_calls_total",
			Help:      "Notify and resolve calls completed by reporters",
		}, []string{"kind"}),
		watcherExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_exits_total",
			Help:      "Alert watchers that stopped, by reason",
		}, []string{"reason"}),
		announceDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announce_dropped_total",
			Help:      "Transition announcements dropped because the queue was full",
		}),
		announceFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announce_failed_total",
			Help:      "Transition announcements a sink failed to deliver",
		}, []string{"sink"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_inflight_requests",
			Help:      "Remote requests currently holding a limiter slot",
		}),
		watchersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watchers_running",
			Help:      "Alert watchers currently polling",
		}),
		alertLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_level",
			Help:      "Current alert level (0=pass, 1=warn, 2=critical)",
		}, []string{"alert"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_attempt_duration_seconds",
			Help:      "Duration of single remote call attempts",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.remoteAttempts,
		m.remoteRetries,
		m.polls,
		m.transitions,
		m.reporterCalls,
		m.watcherExits,
		m.announceDropped,
		m.announceFailed,
		m.inflight,
		m.watchersRunning,
		m.alertLevel,
		m.remoteDuration,
	)
	return m
}

// ObserveAttempt records one finished remote attempt.
func (m *Metrics) ObserveAttempt(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.remoteAttempts.WithLabelValues(op, result).Inc()
	m.remoteDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) IncRetry(op string) {
	if m == nil {
		return
	}
	m.remoteRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) AddInflight(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}

func (m *Metrics) IncPoll(alert string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(alert).Inc()
}

// RecordTransition counts a transition and updates the per-alert level gauge.
func (m *Metrics) RecordTransition(alert, to string, level int) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(alert, to).Inc()
	m.alertLevel.WithLabelValues(alert).Set(float64(level))
}

func (m *Metrics) IncReporterCall(kind string) {
	if m == nil {
		return
	}
	m.reporterCalls.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddWatchersRunning(delta float64) {
	if m == nil {
		return
	}
	m.watchersRunning.Add(delta)
}

func (m *Metrics) IncWatcherExit(reason string) {
	if m == nil {
		return
	}
	m.watcherExits.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncAnnounceDropped() {
	if m == nil {
		return
	}
	m.announceDropped.Inc()
}

func (m *Metrics) IncAnnounceFailed(sink string) {
	if m == nil {
		return
	}
	m.announceFailed.WithLabelValues(sink).Inc()
}
