// Package metrics records modifier dispatch in Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the modifier collectors. It implements model.Observer.
type Metrics struct {
	registry *prometheus.Registry

	ModifierUpdatesTotal *prometheus.CounterVec
	ModifierDuration     *prometheus.HistogramVec
	DocumentsMatched     *prometheus.CounterVec
	DocumentsModified    *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ModifierUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docmodel_modifier_updates_total",
				Help: "Total number of modifier updates sent to the store",
			},
			[]string{"collection", "operator", "status"},
		),
		ModifierDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docmodel_modifier_duration_seconds",
				Help:    "Duration of modifier updates in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"collection", "operator"},
		),
		DocumentsMatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docmodel_documents_matched_total",
				Help: "Documents matched by modifier updates",
			},
			[]string{"collection"},
		),
		DocumentsModified: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docmodel_documents_modified_total",
				Help: "Documents changed by modifier updates",
			},
			[]string{"collection"},
		),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveModifier records one modifier dispatch.
func (m *Metrics) ObserveModifier(collection, operator string, res types.UpdateResult, elapsed time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.ModifierUpdatesTotal.WithLabelValues(collection, operator, status).Inc()
	m.ModifierDuration.WithLabelValues(collection, operator).Observe(elapsed.Seconds())
	if err == nil {
		m.DocumentsMatched.WithLabelValues(collection).Add(float64(res.Matched))
		m.DocumentsModified.WithLabelValues(collection).Add(float64(res.Modified))
	}
}

// WriteTextfile writes the current values in the text exposition format,
// for pickup by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics: empty textfile path")
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
