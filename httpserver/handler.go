package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/relational-network/tee-devops-runner/attestation"
	"github.com/relational-network/tee-devops-runner/common"
	"github.com/relational-network/tee-devops-runner/deployment"
	"github.com/relational-network/tee-devops-runner/interfaces"
)

const (
	// apiVersion reported in the service banner.
	apiVersion = "1.0.0"

	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024

	// Defaults applied to attestation requests that omit the optional
	// measurement fields.
	defaultAttestationPort = 443
	defaultISVProdID       = "0"
	defaultISVSVN          = "0"
)

// AttestationRunner runs the attestation probe against a measurement target.
// *attestation.Runner is the production implementation.
type AttestationRunner interface {
	Execute(ctx context.Context, m interfaces.AttestationMeasurement, opts attestation.RunOptions) interfaces.AttestationOutcome
}

// Handler processes HTTP requests for the deployment and attestation APIs.
// The cloud backend is constructed at startup; if that construction failed,
// the error is held here and surfaced as a 500 on every endpoint that needs
// the backend, so the service still runs and reports the misconfiguration.
type Handler struct {
	orchestrator *deployment.Orchestrator
	backend      interfaces.CloudBackend
	backendErr   error
	runner       AttestationRunner
	attestOpts   attestation.RunOptions
	log          *slog.Logger
}

// NewHandler creates a new HTTP request handler with the specified
// dependencies. backendErr carries a cloud backend construction failure;
// pass nil when backend is usable.
func NewHandler(orchestrator *deployment.Orchestrator, backend interfaces.CloudBackend, backendErr error, runner AttestationRunner, log *slog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		backend:      backend,
		backendErr:   backendErr,
		runner:       runner,
		log:          log,
	}
}

// requireBackend writes a 500 and returns false when the cloud backend is
// unavailable.
func (h *Handler) requireBackend(w http.ResponseWriter) bool {
	if h.backendErr != nil {
		h.log.Error("Cloud backend unavailable", "err", h.backendErr)
		http.Error(w, fmt.Sprintf("Cloud backend unavailable: %v", h.backendErr), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleRoot returns the service banner.
//
// URL format: GET /
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"service":     common.PackageName,
		"status":      "operational",
		"api_version": apiVersion,
	})
}

// HandleCreateDeployment starts an asynchronous VM deployment.
//
// URL format: POST /deployments?name_prefix=<prefix>
//
// The optional name_prefix query parameter seeds the VM name; it defaults to
// the service's standard prefix. The response is 202 Accepted with the
// request ID to poll for status.
func (h *Handler) HandleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w) {
		return
	}

	rec, err := h.orchestrator.Submit(r.URL.Query().Get("name_prefix"))
	if err != nil {
		h.log.Error("Failed to accept deployment", "err", err)
		if errors.Is(err, interfaces.ErrQueueFull) {
			http.Error(w, "Deployment queue is full, retry later", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"request_id": rec.RequestID,
		"vm_name":    rec.VMName,
		"status":     rec.Status,
		"created_at": rec.CreatedAt,
	})
}

// HandleDeploymentStatus returns the current record for a deployment.
//
// URL format: GET /deployments/{request_id}
func (h *Handler) HandleDeploymentStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")

	rec, err := h.orchestrator.GetStatus(requestID)
	if err != nil {
		if errors.Is(err, interfaces.ErrDeploymentNotFound) {
			http.Error(w, fmt.Sprintf("No deployment found with request ID %s", requestID), http.StatusNotFound)
			return
		}
		h.log.Error("Failed to fetch deployment status", "err", err, "requestID", requestID)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// HandleListVMs lists the VMs in the configured resource group.
//
// URL format: GET /vms
func (h *Handler) HandleListVMs(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w) {
		return
	}

	vms, err := h.backend.ListInstances(r.Context())
	if err != nil {
		h.log.Error("Failed to list VMs", "err", err)
		http.Error(w, fmt.Sprintf("Failed to list VMs: %v", err), http.StatusInternalServerError)
		return
	}
	if vms == nil {
		vms = []interfaces.VMSummary{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"vms": vms})
}

// HandleVMDetails returns the detail view of a single VM, including its
// security profile.
//
// URL format: GET /vms/{vm_name}
func (h *Handler) HandleVMDetails(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w) {
		return
	}

	vmName := r.PathValue("vm_name")
	vm, err := h.backend.GetInstance(r.Context(), vmName)
	if err != nil {
		if errors.Is(err, interfaces.ErrVMNotFound) {
			http.Error(w, fmt.Sprintf("VM %s not found", vmName), http.StatusNotFound)
			return
		}
		h.log.Error("Failed to fetch VM details", "err", err, "vm", vmName)
		http.Error(w, fmt.Sprintf("Failed to fetch VM details: %v", err), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, vm)
}

// attestationRequest is the body of POST /attestation.
type attestationRequest struct {
	VMName    string `json:"vm_name"`
	Mrenclave string `json:"mrenclave"`
	Mrsigner  string `json:"mrsigner"`
	ISVProdID string `json:"isvprodid"`
	ISVSVN    string `json:"isvsvn"`
	Port      int    `json:"port"`
}

// HandleAttestation runs the attestation probe against a deployed VM and
// verifies its transcript.
//
// URL format: POST /attestation
//
// Request body: JSON with vm_name, mrenclave and mrsigner (required), and
// optional port, isvprodid and isvsvn.
//
// Response: JSON containing:
//   - success: final verdict after transcript verification
//   - vm_name, host: the probed target
//   - details: the probe outcome including its full transcript
//   - timestamp: when the verdict was produced
func (h *Handler) HandleAttestation(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w) {
		return
	}

	var req attestationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		h.log.Error("Failed to parse attestation request", "err", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.VMName == "" || req.Mrenclave == "" || req.Mrsigner == "" {
		http.Error(w, "vm_name, mrenclave and mrsigner are required", http.StatusBadRequest)
		return
	}
	if req.Port == 0 {
		req.Port = defaultAttestationPort
	}
	if req.ISVProdID == "" {
		req.ISVProdID = defaultISVProdID
	}
	if req.ISVSVN == "" {
		req.ISVSVN = defaultISVSVN
	}

	if _, err := h.backend.GetInstance(r.Context(), req.VMName); err != nil {
		if errors.Is(err, interfaces.ErrVMNotFound) {
			http.Error(w, fmt.Sprintf("VM %s not found", req.VMName), http.StatusNotFound)
			return
		}
		h.log.Error("Failed to resolve VM", "err", err, "vm", req.VMName)
		http.Error(w, fmt.Sprintf("Failed to resolve VM: %v", err), http.StatusInternalServerError)
		return
	}

	addr, err := h.backend.GetPublicAddress(r.Context(), req.VMName)
	if err != nil {
		if errors.Is(err, interfaces.ErrNoPublicAddress) {
			http.Error(w, fmt.Sprintf("VM %s has no public address", req.VMName), http.StatusBadRequest)
			return
		}
		h.log.Error("Failed to fetch public address", "err", err, "vm", req.VMName)
		http.Error(w, fmt.Sprintf("Failed to fetch public address: %v", err), http.StatusInternalServerError)
		return
	}

	// The probe run can outlast the server-wide write timeout, which is
	// tuned for the fast endpoints. Push the write deadline past the run's
	// worst-case budget so the verdict reaches the client.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.attestOpts.Budget() + 10*time.Second)); err != nil {
		h.log.Warn("Failed to extend write deadline for attestation", "err", err)
	}

	outcome := h.runner.Execute(r.Context(), interfaces.AttestationMeasurement{
		Mrenclave: req.Mrenclave,
		Mrsigner:  req.Mrsigner,
		ISVProdID: req.ISVProdID,
		ISVSVN:    req.ISVSVN,
		Host:      addr,
		Port:      req.Port,
	}, h.attestOpts)

	ok, msg := attestation.VerifyOutcome(outcome, addr, attestation.ExpectedSteps(addr, req.Port))
	if !ok {
		outcome.Success = false
		outcome.Error = msg
	}

	h.log.Info("Attestation verdict", "vm", req.VMName, "host", addr, "success", ok)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   ok,
		"vm_name":   req.VMName,
		"host":      addr,
		"details":   outcome,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
