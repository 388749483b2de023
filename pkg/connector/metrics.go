// Copyright 2024-2026 Aiku AI

package connector

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of the bridge.
type Metrics struct {
	registry *prometheus.Registry

	// IRC side
	ConnectionsTotal *prometheus.CounterVec
	SessionActive    prometheus.Gauge
	CommandsTotal    *prometheus.CounterVec

	// Mesh side
	MeshEventsTotal *prometheus.CounterVec
	MeshSendsTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshirc_connections_total",
				Help: "IRC connections by outcome",
			},
			[]string{"result"},
		),
		SessionActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshirc_session_active",
				Help: "1 while an IRC client is connected",
			},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshirc_commands_total",
				Help: "IRC commands received by verb",
			},
			[]string{"verb"},
		),
		MeshEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshirc_mesh_events_total",
				Help: "Mesh messages by kind and outcome",
			},
			[]string{"kind", "result"},
		),
		MeshSendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshirc_mesh_sends_total",
				Help: "Messages sent to the mesh by target kind and outcome",
			},
			[]string{"target", "result"},
		),
	}

	m.registry.MustRegister(
		m.ConnectionsTotal,
		m.SessionActive,
		m.CommandsTotal,
		m.MeshEventsTotal,
		m.MeshSendsTotal,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
