// Package metrics exposes an optional Prometheus /metrics endpoint for a
// running broker: attached-client count, reconciled geometry, and bytes
// moved in each direction. Wired the way runZeroInc-sockstats' exporter
// examples wire a prometheus.Collector behind promhttp.Handler — a
// supplement to the distilled spec, which is silent on observability.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the broker's Prometheus instruments. The zero value (a
// nil *Metrics) is valid everywhere it's used: every method is a no-op
// on a nil receiver, so callers don't need to branch on whether
// --metrics-addr was set.
type Metrics struct {
	registry *prometheus.Registry
	srv      *http.Server

	clients     prometheus.Gauge
	bytesToProg prometheus.Counter
	bytesToClis prometheus.Counter
	geoCols     prometheus.Gauge
	geoRows     prometheus.Gauge
}

// New builds a fresh, registered Metrics instance. It does not start an
// HTTP server; call Serve for that.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "termbroker_attached_clients",
			Help: "Number of clients currently attached to the session.",
		}),
		bytesToProg: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termbroker_bytes_to_program_total",
			Help: "Bytes forwarded from clients to the program's PTY.",
		}),
		bytesToClis: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termbroker_bytes_to_clients_total",
			Help: "Bytes fanned out from the program to attached clients.",
		}),
		geoCols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "termbroker_geometry_cols",
			Help: "Current reconciled terminal width presented to the PTY.",
		}),
		geoRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "termbroker_geometry_rows",
			Help: "Current reconciled terminal height presented to the PTY.",
		}),
	}
	reg.MustRegister(m.clients, m.bytesToProg, m.bytesToClis, m.geoCols, m.geoRows)
	return m
}

// Serve starts the /metrics HTTP endpoint on addr in the background. It
// returns once the listener is bound; server errors after that are
// ignored the way a background exporter's ListenAndServe commonly is,
// since a metrics outage must never take the broker down with it.
func (m *Metrics) Serve(addr string) error {
	if m == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.srv = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen(%s): %w", addr, err)
	}
	go m.srv.Serve(ln)
	return nil
}

// Shutdown stops the metrics HTTP server, if one was started.
func (m *Metrics) Shutdown(ctx context.Context) {
	if m == nil || m.srv == nil {
		return
	}
	_ = m.srv.Shutdown(ctx)
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}

func (m *Metrics) SetGeometry(cols, rows int) {
	if m == nil {
		return
	}
	m.geoCols.Set(float64(cols))
	m.geoRows.Set(float64(rows))
}

func (m *Metrics) AddBytesToProgram(n int) {
	if m == nil {
		return
	}
	m.bytesToProg.Add(float64(n))
}

func (m *Metrics) AddBytesToClients(n int) {
	if m == nil {
		return
	}
	m.bytesToClis.Add(float64(n))
}
