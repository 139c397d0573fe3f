package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer is the process wide metrics instance.
var Observer = &Metrics{
	mutex:      new(sync.RWMutex),
	prometheus: NewPrometheusMetrics(),
}

func init() {
	prometheus.MustRegister(
		Observer.prometheus.Samples,
		Observer.prometheus.Sessions,
		Observer.prometheus.Divergences,
		Observer.prometheus.Predictions,
		Observer.prometheus.Loss,
		Observer.prometheus.Accuracy,
	)
}

// Metrics tracks the streaming and training activity of the server.
type Metrics struct {
	mutex      *sync.RWMutex
	prometheus Prometheus
}

// IncrementSamples counts ingested raw samples per command type.
func (m *Metrics) IncrementSamples(command string, count int) {
	m.prometheus.Samples.WithLabelValues(command).Add(float64(count))
}

// IncrementSessions counts completed training sessions per ensemble member.
func (m *Metrics) IncrementSessions(member string) {
	m.prometheus.Sessions.WithLabelValues(member).Inc()
}

// IncrementDivergences counts aborted training sessions per ensemble member.
func (m *Metrics) IncrementDivergences(member string) {
	m.prometheus.Divergences.WithLabelValues(member).Inc()
}

// IncrementPredictions counts served predictions.
func (m *Metrics) IncrementPredictions() {
	m.prometheus.Predictions.Inc()
}

// TrackEvaluation records the rolling evaluation gauges.
func (m *Metrics) TrackEvaluation(loss, accuracy float64) {
	m.prometheus.Loss.Set(loss)
	m.prometheus.Accuracy.Set(accuracy)
}
