package serial

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Disconnect reasons used as the reason label.
const (
	reasonClosed   = "closed"
	reasonHangup   = "hangup"
	reasonReadFail = "read_error"
)

// Metrics holds the Prometheus collectors of one Device. All methods are
// safe on a nil receiver.
type Metrics struct {
	connects         prometheus.Counter
	disconnects      *prometheus.CounterVec
	openFailures     prometheus.Counter
	reconnectsSched  prometheus.Counter
	messagesReceived prometheus.Counter
	bytesWritten     prometheus.Counter
	writeErrors      prometheus.Counter
	state            prometheus.Gauge
}

// NewMetrics creates the collectors for device and registers them with reg
// when reg is non-nil.
func NewMetrics(reg prometheus.Registerer, device string) (*Metrics, error) {
	labels := prometheus.Labels{"device": device}
	m := &Metrics{
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "serial",
			Subsystem:   "device",
			Name:        "connects_total",
			Help:        "Successful port opens.",
			ConstLabels: labels,
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "serial",
			Subsystem:   "device",
			Name:        "disconnects_total",
			Help:        "Completed teardowns by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		openFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "serial",
			Subsystem:   "device",
			Name:        "open_failures_total",
			Help:        "Failed port opens.",
			ConstLabels: labels,
		}),
		reconnectsSched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "serial",
			Subsystem:   "device",
			Name:        "reconnects_scheduled_total",
			Help:        "Reconnect timers armed.",
			ConstLabels: labels,
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "serial",
			Subsystem:   "device",
			Name:        "messages_received_total",
			Help:        "Parsed messages delivered to listeners.",
			ConstLabels: labels,
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "serial",
			Subsystem:   "device",
			Name:        "bytes_written_total",
			Help:        "Bytes written by Send.",
			ConstLabels: labels,
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "serial",
			Subsystem:   "device",
			Name:        "write_errors_total",
			Help:        "Failed Send calls.",
			ConstLabels: labels,
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "serial",
			Subsystem:   "device",
			Name:        "state",
			Help:        "Connection state (0 disconnected, 1 connecting, 2 connected, 3 closing).",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.connects, m.disconnects, m.openFailures, m.reconnectsSched,
			m.messagesReceived, m.bytesWritten, m.writeErrors, m.state,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connects.Inc()
	}
}

func (m *Metrics) disconnected(reason string) {
	if m != nil {
		m.disconnects.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) openFailed() {
	if m != nil {
		m.openFailures.Inc()
	}
}

func (m *Metrics) reconnectScheduled() {
	if m != nil {
		m.reconnectsSched.Inc()
	}
}

func (m *Metrics) received(n int) {
	if m != nil {
		m.messagesReceived.Add(float64(n))
	}
}

func (m *Metrics) wrote(n int) {
	if m != nil {
		m.bytesWritten.Add(float64(n))
	}
}

func (m *Metrics) writeFailed() {
	if m != nil {
		m.writeErrors.Inc()
	}
}
