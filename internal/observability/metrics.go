// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solana-sniper/internal/notify"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Intake metrics
	CandidatesDiscovered *prometheus.CounterVec
	CandidatesRejected   *prometheus.CounterVec
	IntakePending        prometheus.Gauge
	ScanErrors           *prometheus.CounterVec

	// Evaluation metrics
	ScreenDuration   prometheus.Histogram
	AnalysisDuration *prometheus.HistogramVec
	AnalysisErrors   *prometheus.CounterVec
	Decisions        *prometheus.CounterVec

	// Position metrics
	PositionsOpen     prometheus.Gauge
	PositionsOpened   prometheus.Counter
	PositionsClosed   *prometheus.CounterVec
	RungsExecuted     prometheus.Counter
	ExecutionFailures *prometheus.CounterVec
	MonitorEvalTime   prometheus.Histogram
	MonitorEvalErrors prometheus.Counter

	// Collaborator metrics
	RPCCallLatency *prometheus.HistogramVec

	// Notification metrics
	EventsEmitted *prometheus.CounterVec

	// Health metrics
	LastSuccessfulScan prometheus.Gauge
	LastMonitorTick    prometheus.Gauge
	StartTime          prometheus.Gauge

	namespace string
	factory   promauto.Factory
}

// NewMetrics registers every metric with reg. A nil reg uses the default
// registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_sniper"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	m := &Metrics{
		// Intake metrics
		CandidatesDiscovered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "candidates_discovered_total",
			Help:      "Total number of candidates yielded by discovery sources",
		}, []string{"network"}),
		CandidatesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "candidates_rejected_total",
			Help:      "Total number of candidates rejected, by stage",
		}, []string{"stage"}),
		IntakePending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "pending_candidates",
			Help:      "Number of candidates waiting in the intake queue",
		}),
		ScanErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "scan_errors_total",
			Help:      "Total number of per-item discovery errors",
		}, []string{"network"}),

		// Evaluation metrics
		ScreenDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "screen_duration_seconds",
			Help:      "Quick screen latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		AnalysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "analysis_duration_seconds",
			Help:      "Sub-analysis latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"analysis"}),
		AnalysisErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "analysis_errors_total",
			Help:      "Total number of failed sub-analysis attempts",
		}, []string{"analysis"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "decisions_total",
			Help:      "Total number of decisions, by outcome",
		}, []string{"outcome"}),

		// Position metrics
		PositionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Number of open positions including reservations",
		}),
		PositionsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "opened_total",
			Help:      "Total number of positions opened",
		}),
		PositionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Total number of positions closed, by reason",
		}, []string{"reason"}),
		RungsExecuted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "rungs_executed_total",
			Help:      "Total number of profit ladder rungs executed",
		}),
		ExecutionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "execution_failures_total",
			Help:      "Total number of failed buy or sell executions",
		}, []string{"action", "persistent"}),
		MonitorEvalTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "evaluation_duration_seconds",
			Help:      "Per-position monitor evaluation latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		MonitorEvalErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "evaluation_errors_total",
			Help:      "Total number of failed monitor evaluations",
		}),

		// Collaborator metrics
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"method"}),

		// Notification metrics
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Total number of notification events, by kind",
		}, []string{"kind"}),

		// Health metrics
		LastSuccessfulScan: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_scan_timestamp",
			Help:      "Unix timestamp of last completed discovery scan",
		}),
		LastMonitorTick: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_monitor_tick_timestamp",
			Help:      "Unix timestamp of last monitor tick",
		}),
		StartTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "start_time_seconds",
			Help:      "Unix timestamp of process start",
		}),
	}
	m.namespace = namespace
	m.factory = f
	m.StartTime.Set(float64(time.Now().Unix()))
	return m
}

// WatchDrops exports a component's running drop count as
// dropped_total{stream}. Each stream may be watched once.
func (m *Metrics) WatchDrops(stream string, count func() float64) {
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Name:        "dropped_total",
		Help:        "Total number of messages dropped on a full buffer",
		ConstLabels: prometheus.Labels{"stream": stream},
	}, count)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving a specific registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveScreen records a quick screen latency.
func (m *Metrics) ObserveScreen(d time.Duration) {
	m.ScreenDuration.Observe(d.Seconds())
}

// ObserveAnalysis matches analysis.Observer.
func (m *Metrics) ObserveAnalysis(name string, d time.Duration, err error) {
	m.AnalysisDuration.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		m.AnalysisErrors.WithLabelValues(name).Inc()
	}
}

// ObserveEvaluation matches lifecycle.Observer.
func (m *Metrics) ObserveEvaluation(d time.Duration, err error) {
	m.MonitorEvalTime.Observe(d.Seconds())
	if err != nil {
		m.MonitorEvalErrors.Inc()
	}
}

// ObserveRPC records Solana RPC call latency.
func (m *Metrics) ObserveRPC(method string, d time.Duration) {
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordDecision counts a gate outcome.
func (m *Metrics) RecordDecision(trade bool) {
	outcome := "reject"
	if trade {
		outcome = "trade"
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}

// RecordScan marks a completed discovery scan.
func (m *Metrics) RecordScan(network string, discovered, errs int) {
	m.CandidatesDiscovered.WithLabelValues(network).Add(float64(discovered))
	m.ScanErrors.WithLabelValues(network).Add(float64(errs))
	m.LastSuccessfulScan.Set(float64(time.Now().Unix()))
}

// RecordMonitorTick marks a completed monitor tick.
func (m *Metrics) RecordMonitorTick(open int) {
	m.PositionsOpen.Set(float64(open))
	m.LastMonitorTick.Set(float64(time.Now().Unix()))
}

// EventSink counts notification events. It never blocks.
type EventSink struct {
	m *Metrics
}

var _ notify.Sink = (*EventSink)(nil)

// Sink returns a notify.Sink that updates event-derived metrics.
func (m *Metrics) Sink() *EventSink {
	return &EventSink{m: m}
}

// Notify implements notify.Sink.
func (s *EventSink) Notify(e notify.Event) {
	s.m.EventsEmitted.WithLabelValues(string(e.Kind())).Inc()
	switch ev := e.(type) {
	case notify.CandidateRejected:
		s.m.CandidatesRejected.WithLabelValues(ev.Stage).Inc()
	case notify.PositionOpened:
		s.m.PositionsOpened.Inc()
	case notify.RungExecuted:
		s.m.RungsExecuted.Inc()
	case notify.PositionClosed:
		s.m.PositionsClosed.WithLabelValues(ev.Reason).Inc()
	case notify.ExecutionFailed:
		s.m.ExecutionFailures.WithLabelValues(ev.Action, strconv.FormatBool(ev.Persistent)).Inc()
	}
}
