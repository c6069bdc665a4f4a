package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relational-network/tee-devops-runner/attestation"
	"github.com/relational-network/tee-devops-runner/cloud"
	"github.com/relational-network/tee-devops-runner/deployment"
	"github.com/relational-network/tee-devops-runner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	res interfaces.ExecResult
	err error
}

func (f fakeExecutor) Run(ctx context.Context, argv []string, extraEnv []string, timeout time.Duration) (interfaces.ExecResult, error) {
	return f.res, f.err
}

// stubRunner bypasses probe execution and hands back a fixed outcome, so
// verdict mapping can be exercised for outcomes the real runner cannot
// produce in-process.
type stubRunner struct {
	outcome interfaces.AttestationOutcome
}

func (s stubRunner) Execute(ctx context.Context, m interfaces.AttestationMeasurement, opts attestation.RunOptions) interfaces.AttestationOutcome {
	return s.outcome
}

// fakeProbe writes a placeholder probe binary so the runner's existence
// check passes.
func fakeProbe(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attest")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func fullTranscript(host string, port int) string {
	steps := attestation.ExpectedSteps(host, port)
	lines := make([]string, len(steps))
	for i, s := range steps {
		lines[i] = s.Marker
	}
	return strings.Join(lines, "\n")
}

func newTestHandler(t *testing.T, backend interfaces.CloudBackend, backendErr error, exec interfaces.ProbeExecutor) *Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	orch := deployment.NewOrchestrator(deployment.OrchestratorConfig{
		Backend: backend,
		Store:   deployment.NewStore(),
		Log:     log,
	})

	runner := &attestation.Runner{ProbeBinary: fakeProbe(t), Executor: exec, Log: log}

	h := NewHandler(orch, backend, backendErr, runner, log)
	h.attestOpts = attestation.RunOptions{Timeout: time.Second, MaxRetries: 1, RetryDelay: time.Millisecond}
	return h
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleRoot(t *testing.T) {
	h := newTestHandler(t, &cloud.MockBackend{}, nil, fakeExecutor{})

	rec := httptest.NewRecorder()
	h.HandleRoot(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "operational", body["status"])
	assert.Equal(t, apiVersion, body["api_version"])
}

func TestHandleCreateDeployment(t *testing.T) {
	h := newTestHandler(t, &cloud.MockBackend{}, nil, fakeExecutor{})

	rec := httptest.NewRecorder()
	h.HandleCreateDeployment(rec, httptest.NewRequest(http.MethodPost, "/deployments?name_prefix=demo", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	requestID, ok := body["request_id"].(string)
	require.True(t, ok)
	assert.Len(t, requestID, 8)
	assert.Equal(t, "demo-"+requestID, body["vm_name"])
	assert.Equal(t, string(interfaces.StatusPending), body["status"])
}

func TestHandleCreateDeploymentBackendUnavailable(t *testing.T) {
	h := newTestHandler(t, nil, assert.AnError, fakeExecutor{})

	rec := httptest.NewRecorder()
	h.HandleCreateDeployment(rec, httptest.NewRequest(http.MethodPost, "/deployments", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cloud backend unavailable")
}

func TestHandleDeploymentStatus(t *testing.T) {
	h := newTestHandler(t, &cloud.MockBackend{}, nil, fakeExecutor{})

	submitted, err := h.orchestrator.Submit("demo")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/deployments/"+submitted.RequestID, nil)
	req.SetPathValue("request_id", submitted.RequestID)
	rec := httptest.NewRecorder()
	h.HandleDeploymentStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, submitted.RequestID, body["request_id"])
	assert.Equal(t, submitted.VMName, body["vm_name"])
}

func TestHandleDeploymentStatusNotFound(t *testing.T) {
	h := newTestHandler(t, &cloud.MockBackend{}, nil, fakeExecutor{})

	req := httptest.NewRequest(http.MethodGet, "/deployments/deadbeef", nil)
	req.SetPathValue("request_id", "deadbeef")
	rec := httptest.NewRecorder()
	h.HandleDeploymentStatus(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListVMs(t *testing.T) {
	backend := &cloud.MockBackend{}
	backend.On("ListInstances", mock.Anything).Return([]interfaces.VMSummary{
		{Name: "demo-1", Status: interfaces.PowerStateRunning, PublicAddress: "203.0.113.7"},
	}, nil)

	h := newTestHandler(t, backend, nil, fakeExecutor{})

	rec := httptest.NewRecorder()
	h.HandleListVMs(rec, httptest.NewRequest(http.MethodGet, "/vms", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	vms, ok := body["vms"].([]any)
	require.True(t, ok)
	require.Len(t, vms, 1)
	backend.AssertExpectations(t)
}

func TestHandleVMDetailsNotFound(t *testing.T) {
	backend := &cloud.MockBackend{}
	backend.On("GetInstance", mock.Anything, "missing-vm").Return(interfaces.VMDetail{}, interfaces.ErrVMNotFound)

	h := newTestHandler(t, backend, nil, fakeExecutor{})

	req := httptest.NewRequest(http.MethodGet, "/vms/missing-vm", nil)
	req.SetPathValue("vm_name", "missing-vm")
	rec := httptest.NewRecorder()
	h.HandleVMDetails(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func attestationBody(vmName string) *strings.Reader {
	return strings.NewReader(`{"vm_name":"` + vmName + `","mrenclave":"aaa","mrsigner":"bbb"}`)
}

func TestHandleAttestationUnknownVM(t *testing.T) {
	backend := &cloud.MockBackend{}
	backend.On("GetInstance", mock.Anything, "ghost").Return(interfaces.VMDetail{}, interfaces.ErrVMNotFound)

	h := newTestHandler(t, backend, nil, fakeExecutor{})

	rec := httptest.NewRecorder()
	h.HandleAttestation(rec, httptest.NewRequest(http.MethodPost, "/attestation", attestationBody("ghost")))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAttestationMissingFields(t *testing.T) {
	h := newTestHandler(t, &cloud.MockBackend{}, nil, fakeExecutor{})

	rec := httptest.NewRecorder()
	h.HandleAttestation(rec, httptest.NewRequest(http.MethodPost, "/attestation", strings.NewReader(`{"vm_name":"demo-1"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAttestationNoPublicAddress(t *testing.T) {
	backend := &cloud.MockBackend{}
	backend.On("GetInstance", mock.Anything, "demo-1").Return(interfaces.VMDetail{}, nil)
	backend.On("GetPublicAddress", mock.Anything, "demo-1").Return("", interfaces.ErrNoPublicAddress)

	h := newTestHandler(t, backend, nil, fakeExecutor{})

	rec := httptest.NewRecorder()
	h.HandleAttestation(rec, httptest.NewRequest(http.MethodPost, "/attestation", attestationBody("demo-1")))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no public address")
}

func TestHandleAttestationVerified(t *testing.T) {
	const host = "203.0.113.7"

	backend := &cloud.MockBackend{}
	backend.On("GetInstance", mock.Anything, "demo-1").Return(interfaces.VMDetail{}, nil)
	backend.On("GetPublicAddress", mock.Anything, "demo-1").Return(host, nil)

	exec := fakeExecutor{res: interfaces.ExecResult{ExitCode: 0, Stdout: fullTranscript(host, 443)}}
	h := newTestHandler(t, backend, nil, exec)

	rec := httptest.NewRecorder()
	h.HandleAttestation(rec, httptest.NewRequest(http.MethodPost, "/attestation", attestationBody("demo-1")))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, host, body["host"])
	assert.Equal(t, "demo-1", body["vm_name"])
}

func TestHandleAttestationHostMismatch(t *testing.T) {
	const host = "203.0.113.7"

	backend := &cloud.MockBackend{}
	backend.On("GetInstance", mock.Anything, "demo-1").Return(interfaces.VMDetail{}, nil)
	backend.On("GetPublicAddress", mock.Anything, "demo-1").Return(host, nil)

	h := newTestHandler(t, backend, nil, fakeExecutor{})
	h.runner = stubRunner{outcome: interfaces.AttestationOutcome{
		Success:    true,
		Host:       "198.51.100.9",
		Port:       443,
		Mrenclave:  "aaa",
		Mrsigner:   "bbb",
		Transcript: fullTranscript(host, 443),
	}}

	rec := httptest.NewRecorder()
	h.HandleAttestation(rec, httptest.NewRequest(http.MethodPost, "/attestation", attestationBody("demo-1")))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])

	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, attestation.MsgHostMismatch, details["error"])
}

func TestHandleAttestationTranscriptFailure(t *testing.T) {
	const host = "203.0.113.7"

	backend := &cloud.MockBackend{}
	backend.On("GetInstance", mock.Anything, "demo-1").Return(interfaces.VMDetail{}, nil)
	backend.On("GetPublicAddress", mock.Anything, "demo-1").Return(host, nil)

	// Probe exits cleanly but never reports the server as running.
	transcript := strings.Replace(fullTranscript(host, 443), "Server is running", "", 1)
	exec := fakeExecutor{res: interfaces.ExecResult{ExitCode: 0, Stdout: transcript}}
	h := newTestHandler(t, backend, nil, exec)

	rec := httptest.NewRecorder()
	h.HandleAttestation(rec, httptest.NewRequest(http.MethodPost, "/attestation", attestationBody("demo-1")))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])

	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Error: Server is not running as expected.", details["error"])
}
