// Package export publishes monitoring state to the outside: a prometheus
// bridge for scraping and a best-effort NATS publisher for alerts and
// optimization results.
package export

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chordialapp/metronome/pkg/domain"
)

// Bridge mirrors sampled metrics into a prometheus registry. Each
// distinct metric name becomes one gauge series labeled by name,
// category and unit; alerts and rule outcomes are counted.
type Bridge struct {
	registry *prometheus.Registry

	values      *prometheus.GaugeVec
	alertsTotal *prometheus.CounterVec
	rulesTotal  *prometheus.CounterVec
	samples     prometheus.Counter
}

// NewBridge creates a bridge with its own registry.
func NewBridge() *Bridge {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Bridge{
		registry: registry,
		values: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "metronome",
			Name:      "metric_value",
			Help:      "Last sampled value per metric.",
		}, []string{"name", "category", "unit"}),
		alertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metronome",
			Name:      "alerts_total",
			Help:      "Alerts raised, by type and severity.",
		}, []string{"type", "severity"}),
		rulesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metronome",
			Name:      "rule_executions_total",
			Help:      "Optimization rule executions, by rule and outcome.",
		}, []string{"rule", "outcome"}),
		samples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "metronome",
			Name:      "samples_total",
			Help:      "Metrics recorded by the sampler.",
		}),
	}
}

// Observe mirrors one sampled metric.
func (b *Bridge) Observe(m domain.Metric) {
	b.values.WithLabelValues(m.Name, string(m.Category), string(m.Unit)).Set(m.Value)
	b.samples.Inc()
}

// CountAlert counts one raised alert.
func (b *Bridge) CountAlert(a *domain.Alert) {
	b.alertsTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
}

// CountResult counts one rule execution outcome.
func (b *Bridge) CountResult(r domain.Result) {
	outcome := "success"
	if !r.Success {
		outcome = "failure"
	}
	b.rulesTotal.WithLabelValues(r.RuleID, outcome).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (b *Bridge) Handler() http.Handler {
	return promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})
}
