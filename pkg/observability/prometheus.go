package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
)

// PrometheusExporter bridges OTel instruments to a Prometheus scrape endpoint.
// Pass Reader to Init so the meter provider feeds it, then serve Handler.
type PrometheusExporter struct {
	Reader  *promexporter.Exporter
	Handler http.Handler
}

// NewPrometheusExporter creates an exporter over its own registry, so several
// exporters never conflict on collector registration.
func NewPrometheusExporter() (*PrometheusExporter, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &PrometheusExporter{
		Reader:  exporter,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}
