package interfaces

import (
	"context"
	"time"
)

// AttestationMeasurement is the expected enclave identity to verify, plus the
// target the probe connects to.
type AttestationMeasurement struct {
	Mrenclave string `json:"mrenclave"`
	Mrsigner  string `json:"mrsigner"`
	ISVProdID string `json:"isvprodid"`
	ISVSVN    string `json:"isvsvn"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
}

// AttestationOutcome is the result of one attestation probe run. Transcript
// holds the probe's full stdout, which the verifier scans for the ordered
// protocol markers.
type AttestationOutcome struct {
	Success         bool    `json:"success"`
	Host            string  `json:"host,omitempty"`
	Port            int     `json:"port,omitempty"`
	Mrenclave       string  `json:"mrenclave,omitempty"`
	Mrsigner        string  `json:"mrsigner,omitempty"`
	Transcript      string  `json:"stdout,omitempty"`
	Stderr          string  `json:"stderr,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// ExpectedStep pairs a transcript marker with the failure message reported
// when the marker is missing. Order within a step list is significant.
type ExpectedStep struct {
	Marker         string
	FailureMessage string
}

// ExecResult is the captured outcome of a supervised process run. TimedOut is
// set when the wall-clock timeout fired; the executor guarantees the child
// was terminated in that case.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// ProbeExecutor runs an external process with a hard timeout, capturing its
// full stdout and stderr. The returned error covers launch failures only;
// nonzero exits and timeouts are reported through ExecResult.
type ProbeExecutor interface {
	Run(ctx context.Context, argv []string, extraEnv []string, timeout time.Duration) (ExecResult, error)
}
