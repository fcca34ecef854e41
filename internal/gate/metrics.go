package gate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gate's Prometheus collectors.
type Metrics struct {
	LoginsTotal     *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionsEnded   *prometheus.CounterVec
	ExtensionsTotal *prometheus.CounterVec
	Watchers        prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vakt_logins_total",
				Help: "Login attempts by result.",
			},
			[]string{"result"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vakt_sessions_active",
				Help: "Number of stored sessions.",
			},
		),
		SessionsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vakt_sessions_ended_total",
				Help: "Sessions ended by reason.",
			},
			[]string{"reason"},
		),
		ExtensionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vakt_session_extensions_total",
				Help: "Session extension requests by result.",
			},
			[]string{"result"},
		),
		Watchers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vakt_session_watchers",
				Help: "Open session websocket watchers.",
			},
		),
		registry: reg,
	}
	reg.MustRegister(m.LoginsTotal)
	reg.MustRegister(m.SessionsActive)
	reg.MustRegister(m.SessionsEnded)
	reg.MustRegister(m.ExtensionsTotal)
	reg.MustRegister(m.Watchers)
	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// RecordEnded counts ended sessions.
func (m *Metrics) RecordEnded(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsEnded.WithLabelValues(reason).Add(float64(n))
}

// RecordExtension counts an extension request.
func (m *Metrics) RecordExtension(result string) {
	if m == nil {
		return
	}
	m.ExtensionsTotal.WithLabelValues(result).Inc()
}

// SetActive sets the stored-session gauge.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// AddWatchers adjusts the watcher gauge.
func (m *Metrics) AddWatchers(delta int) {
	if m == nil {
		return
	}
	m.Watchers.Add(float64(delta))
}
