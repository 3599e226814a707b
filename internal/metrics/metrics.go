// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package metrics holds the Prometheus collectors of one export run.
//
// Collectors live in a private registry so that concurrent runs (and tests) never collide.
// A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - vco_export_requests_total{endpoint, status} (Counter): POST requests by HTTP status ("error" on transport failure)
//   - vco_export_request_duration_seconds{endpoint} (Histogram): POST round trip time
//   - vco_export_response_bytes_total{endpoint} (Counter): response body bytes received
//   - vco_export_items_total{endpoint} (Counter): items written to the output file
//   - vco_export_suppressed_items_total{endpoint} (Counter): status marker items dropped
//   - vco_export_written_bytes_total{endpoint} (Counter): raw bytes of written items, as received
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of collectors for an export run.
type Metrics struct {
	Registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseBytes   *prometheus.CounterVec
	Items           *prometheus.CounterVec
	SuppressedItems *prometheus.CounterVec
	WrittenBytes    *prometheus.CounterVec
}

// New registers all collectors in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vco_export_requests_total",
				Help: "Total number of VCO API requests by HTTP status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vco_export_request_duration_seconds",
				Help:    "VCO API request duration",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint"},
		),
		ResponseBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vco_export_response_bytes_total",
				Help: "Total response body bytes received from the VCO API",
			},
			[]string{"endpoint"},
		),
		Items: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vco_export_items_total",
				Help: "Total number of items written to the output file",
			},
			[]string{"endpoint"},
		),
		SuppressedItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vco_export_suppressed_items_total",
				Help: "Total number of status marker items dropped from the output",
			},
			[]string{"endpoint"},
		),
		WrittenBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vco_export_written_bytes_total",
				Help: "Total raw item bytes, as received, of items written to the output file",
			},
			[]string{"endpoint"},
		),
	}
}

// ObserveRequest records one POST round trip.
func (m *Metrics) ObserveRequest(endpoint, status string, d time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	m.ResponseBytes.WithLabelValues(endpoint).Add(float64(bytes))
}

// ObserveWritten records one written batch.
func (m *Metrics) ObserveWritten(endpoint string, items, suppressed, bytes int) {
	if m == nil {
		return
	}
	m.Items.WithLabelValues(endpoint).Add(float64(items))
	m.SuppressedItems.WithLabelValues(endpoint).Add(float64(suppressed))
	m.WrittenBytes.WithLabelValues(endpoint).Add(float64(bytes))
}

// WriteTextfile dumps the registry in the node-exporter textfile collector format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
