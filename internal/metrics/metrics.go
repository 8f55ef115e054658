// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamzrod/mightywatt/internal/poller"
)

const namespace = "mightywatt"

// Metrics holds the collectors for one device on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ticks      prometheus.Counter
	tickErrors prometheus.Counter
	handshake  *prometheus.CounterVec

	current     prometheus.Gauge
	voltage     prometheus.Gauge
	power       prometheus.Gauge
	resistance  prometheus.Gauge
	temperature prometheus.Gauge
	faults      prometheus.Gauge
	remote      prometheus.Gauge
	lastUpdate  prometheus.Gauge
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Poll exchanges attempted.",
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_errors_total",
			Help:      "Poll exchanges that failed.",
		}),
		handshake: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_attempts_total",
			Help:      "Handshake attempts by phase.",
		}, []string{"phase"}),

		current:     gauge("current_amperes", "Measured load current."),
		voltage:     gauge("voltage_volts", "Measured voltage."),
		power:       gauge("power_watts", "Derived power."),
		resistance:  gauge("resistance_ohms", "Derived resistance."),
		temperature: gauge("temperature_celsius", "Heatsink temperature."),
		faults:      gauge("fault_bits", "Fault bitmask, 0 when ready."),
		remote:      gauge("remote_sensing", "1 when remote voltage sensing is active."),
		lastUpdate:  gauge("last_update_timestamp_seconds", "Unix time of the last successful poll."),
	}

	m.registry.MustRegister(
		m.ticks,
		m.tickErrors,
		m.handshake,
		m.current,
		m.voltage,
		m.power,
		m.resistance,
		m.temperature,
		m.faults,
		m.remote,
		m.lastUpdate,
	)
	return m
}

// Observe records one poll result. It runs on the poller goroutine.
func (m *Metrics) Observe(res poller.PollResult) {
	m.ticks.Inc()
	if res.Err != nil {
		m.tickErrors.Inc()
		return
	}

	s := res.Snapshot
	m.current.Set(s.Current)
	m.voltage.Set(s.Voltage)
	m.power.Set(s.Power)
	m.resistance.Set(s.Resistance)
	m.temperature.Set(float64(s.Temperature))
	m.faults.Set(float64(s.CurrentStatus))
	if s.Remote {
		m.remote.Set(1)
	} else {
		m.remote.Set(0)
	}
	m.lastUpdate.Set(float64(s.At.UnixNano()) / 1e9)
}

// HandshakeAttempt matches handshake.Config.OnAttempt.
func (m *Metrics) HandshakeAttempt(phase string, _ int) {
	m.handshake.WithLabelValues(phase).Inc()
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
