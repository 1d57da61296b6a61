// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Reactor metrics contract with a no-op default and a Prometheus backend.

package control

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics receives reactor events. Implementations must be safe for
// concurrent use: the reactor and the workers both record.
type Metrics interface {
	ConnectionAccepted()
	// ConnectionClosed records a closed connection with the reason label.
	ConnectionClosed(reason string)
	SetActiveSessions(n int)
	KeepAliveReceived()
	RequestDispatched()
	// RequestCompleted records a processed request; failed is set when the
	// processor returned an error and a fault frame was sent.
	RequestCompleted(d time.Duration, failed bool)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) ConnectionAccepted()                  {}
func (NoopMetrics) ConnectionClosed(string)              {}
func (NoopMetrics) SetActiveSessions(int)                {}
func (NoopMetrics) KeepAliveReceived()                   {}
func (NoopMetrics) RequestDispatched()                   {}
func (NoopMetrics) RequestCompleted(time.Duration, bool) {}

type promMetrics struct {
	accepted   prometheus.Counter
	closed     *prometheus.CounterVec
	active     prometheus.Gauge
	keepAlives prometheus.Counter
	dispatched prometheus.Counter
	requests   *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewPrometheusMetrics registers the reactor collectors with reg. A nil reg
// yields NoopMetrics.
func NewPrometheusMetrics(reg prometheus.Registerer) Metrics {
	if reg == nil {
		return NoopMetrics{}
	}
	f := promauto.With(reg)
	return &promMetrics{
		accepted: f.NewCounter(prometheus.CounterOpts{
			Name: "lvreactor_connections_accepted_total",
			Help: "Total number of accepted connections",
		}),
		closed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lvreactor_connections_closed_total",
			Help: "Total number of closed connections by reason",
		}, []string{"reason"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "lvreactor_active_sessions",
			Help: "Current number of open sessions",
		}),
		keepAlives: f.NewCounter(prometheus.CounterOpts{
			Name: "lvreactor_keepalives_total",
			Help: "Total number of keep-alive signals received",
		}),
		dispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "lvreactor_requests_dispatched_total",
			Help: "Total number of requests handed to the worker pool",
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lvreactor_requests_total",
			Help: "Total number of processed requests by status",
		}, []string{"status"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lvreactor_request_duration_milliseconds",
			Help:    "Processor execution time in milliseconds",
			Buckets: []float64{0.1, 1, 10, 100, 1000, 10000},
		}),
	}
}

func (m *promMetrics) ConnectionAccepted()            { m.accepted.Inc() }
func (m *promMetrics) ConnectionClosed(reason string) { m.closed.WithLabelValues(reason).Inc() }
func (m *promMetrics) SetActiveSessions(n int)        { m.active.Set(float64(n)) }
func (m *promMetrics) KeepAliveReceived()             { m.keepAlives.Inc() }
func (m *promMetrics) RequestDispatched()             { m.dispatched.Inc() }

func (m *promMetrics) RequestCompleted(d time.Duration, failed bool) {
	status := "success"
	if failed {
		status = "fault"
	}
	m.requests.WithLabelValues(status).Inc()
	m.duration.Observe(float64(d) / float64(time.Millisecond))
}
