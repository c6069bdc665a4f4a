// Package metrics exposes service counters on a standalone HTTP server in
// Prometheus text format.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
)

// MetricsServer serves /metrics on its own listen address, separate from the
// API server.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given service name and listen address.
func New(name, listenAddr string) (*MetricsServer, error) {
	vmetrics.GetOrCreateGauge(fmt.Sprintf(`service_info{service=%q}`, name), func() float64 { return 1 })

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		vmetrics.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

var deploymentsSubmittedTotal = vmetrics.NewCounter("deployments_submitted_total")

// IncDeploymentSubmitted counts accepted deployment submissions.
func IncDeploymentSubmitted() {
	deploymentsSubmittedTotal.Inc()
}

// IncDeploymentFinished counts terminal deployment outcomes by status.
func IncDeploymentFinished(status string) {
	vmetrics.GetOrCreateCounter(fmt.Sprintf(`deployments_finished_total{status=%q}`, status)).Inc()
}

// IncAttestationRun counts attestation verdicts.
func IncAttestationRun(success bool) {
	vmetrics.GetOrCreateCounter(fmt.Sprintf(`attestation_runs_total{success=%q}`, fmt.Sprint(success))).Inc()
}
