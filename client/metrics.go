package client

import (
	"errors"
	"time"

	"github.com/Mmx233/Kosmonaut/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "kosmonaut"

// Metrics holds the Prometheus collectors shared by clients and workers.
// A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	framesReceived  *prometheus.CounterVec
	heartbeatsSent  prometheus.Counter
	reconnectsTotal prometheus.Counter
	handlerPanics   prometheus.Counter
	workerState     prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Total number of backend requests by command and result",
		}, []string{"command", "result"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Backend request round trip duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "frames_received_total",
			Help:      "Total number of frames received by workers by command",
		}, []string{"command"}),

		heartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "heartbeats_sent_total",
			Help:      "Total number of heartbeats sent by workers",
		}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "reconnects_total",
			Help:      "Total number of worker reconnection attempts",
		}),

		handlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "handler_panics_total",
			Help:      "Total number of panics recovered from handlers",
		}),

		workerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "state",
			Help:      "Current worker state (0 disconnected, 1 connecting, 2 connected, 3 stopped)",
		}),
	}
}

func (m *Metrics) observeRequest(command string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(command, requestResult(err)).Inc()
	m.requestDuration.WithLabelValues(command).Observe(time.Since(started).Seconds())
}

func requestResult(err error) string {
	var serr *protocol.ServerError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &serr):
		return "server_error"
	case errors.Is(err, ErrConnect):
		return "connect_error"
	case errors.Is(err, ErrReadTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func (m *Metrics) frameReceived(command string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(command).Inc()
}

func (m *Metrics) heartbeat() {
	if m == nil {
		return
	}
	m.heartbeatsSent.Inc()
}

func (m *Metrics) reconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

func (m *Metrics) handlerPanic() {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}

func (m *Metrics) setWorkerState(s WorkerState) {
	if m == nil {
		return
	}
	m.workerState.Set(float64(s))
}
