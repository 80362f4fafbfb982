package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vwap"

// Frame outcomes reported by the exchange connectors
const (
	OutcomeForwarded = "forwarded"
	OutcomeIgnored   = "ignored"
	OutcomeFiltered  = "filtered"
	OutcomeMalformed = "malformed"
)

// Metrics groups the prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Frames *prometheus.CounterVec
	Value  *prometheus.GaugeVec
	Window *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg when it is not nil
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Exchange frames received, by pair and outcome.",
			}, []string{"pair", "outcome"}),
		Value: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "value",
				Help:      "Last computed VWAP, by pair.",
			}, []string{"pair"}),
		Window: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "window_trades",
				Help:      "Number of trades in the trailing window, by pair.",
			}, []string{"pair"}),
	}

	if reg != nil {
		reg.MustRegister(m.Frames, m.Value, m.Window)
	}

	return m
}

// Frame counts one exchange frame for pair with the given outcome
func (m *Metrics) Frame(pair string, outcome string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(pair, outcome).Inc()
}

// VWAP records the last value computed for pair over n trades
func (m *Metrics) VWAP(pair string, value float64, n int) {
	if m == nil {
		return
	}
	m.Value.WithLabelValues(pair).Set(value)
	m.Window.WithLabelValues(pair).Set(float64(n))
}
