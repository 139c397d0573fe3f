package metrics

import "github.com/prometheus/client_golang/prometheus"

type Prometheus struct {
	Samples     *prometheus.CounterVec
	Sessions    *prometheus.CounterVec
	Divergences *prometheus.CounterVec
	Predictions prometheus.Counter
	Loss        prometheus.Gauge
	Accuracy    prometheus.Gauge
}

func NewPrometheusMetrics() Prometheus {
	return Prometheus{
		Samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brain",
				Name:      "samples",
			}, []string{"command"}),
		Sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brain",
				Name:      "sessions",
			}, []string{"member"}),
		Divergences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brain",
				Name:      "divergences",
			}, []string{"member"}),
		Predictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "brain",
				Name:      "predictions",
			}),
		Loss: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "brain",
				Name:      "eval_loss",
			}),
		Accuracy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "brain",
				Name:      "eval_accuracy",
			}),
	}
}
