/*
Package httpserver exposes the deployment and attestation APIs over HTTP.

It provides endpoints to launch confidential VM deployments, follow their
progress, inspect the resulting VMs, and run remote attestation probes
against the deployed enclave servers.

# API Endpoints

  - GET / - Service banner
  - POST /deployments - Start an asynchronous VM deployment
  - GET /deployments/{request_id} - Deployment status and details
  - GET /vms - List VMs in the configured resource group
  - GET /vms/{vm_name} - VM details including security profile
  - POST /attestation - Run and verify a remote attestation probe
  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

# Deployment Flow

POST /deployments returns 202 Accepted with a request ID immediately;
the deployment pipeline runs on the orchestrator's worker pool. Clients poll
GET /deployments/{request_id} until the status is terminal (completed,
partial_success or failed).

# Attestation Flow

POST /attestation resolves the VM's public address, runs the DCAP
attestation probe against it with the expected enclave measurements, and
verifies the probe transcript against the ordered RA-TLS protocol steps. The
response carries the final verdict together with the probe's full output.

# Example Usage

	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:               ":8000",
		MetricsAddr:              ":9090",
		Log:                      logger,
		DrainDuration:            30 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              5 * time.Second,
		WriteTimeout:             10 * time.Second,
	}

	handler := httpserver.NewHandler(orchestrator, backend, backendErr, runner, logger)

	server, err := httpserver.New(cfg, handler)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
