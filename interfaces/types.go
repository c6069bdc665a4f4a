package interfaces

import (
	"errors"
	"time"
)

// Sentinel errors used across the API surface.
var (
	// ErrDeploymentNotFound indicates an unknown deployment request ID.
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrVMNotFound indicates an unknown (or deleted) virtual machine.
	ErrVMNotFound = errors.New("virtual machine not found")

	// ErrStatusRegression indicates an attempt to move a deployment status
	// backwards or away from a terminal state.
	ErrStatusRegression = errors.New("deployment status cannot regress")

	// ErrQueueFull indicates the deployment worker pool cannot accept more work.
	ErrQueueFull = errors.New("deployment queue is full")

	// ErrNoPublicAddress indicates the VM has no public address allocated.
	ErrNoPublicAddress = errors.New("no public address")

	// ErrProbeNotFound indicates the attestation probe binary is not installed
	// at the configured path.
	ErrProbeNotFound = errors.New("attest binary not found")
)

// DeploymentStatus is the lifecycle state of a deployment request.
type DeploymentStatus string

const (
	StatusPending        DeploymentStatus = "pending"
	StatusProvisioning   DeploymentStatus = "provisioning"
	StatusVMProvisioned  DeploymentStatus = "vm_provisioned"
	StatusConfiguring    DeploymentStatus = "configuring"
	StatusCompleted      DeploymentStatus = "completed"
	StatusPartialSuccess DeploymentStatus = "partial_success"
	StatusFailed         DeploymentStatus = "failed"
)

// Rank returns the position of the status in the forward-only lifecycle.
// Terminal states share a rank since exactly one of them is ever reached.
func (s DeploymentStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProvisioning:
		return 1
	case StatusVMProvisioned:
		return 2
	case StatusConfiguring:
		return 3
	case StatusCompleted, StatusPartialSuccess, StatusFailed:
		return 4
	default:
		return -1
	}
}

// Terminal reports whether the status is a final pipeline outcome.
func (s DeploymentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPartialSuccess || s == StatusFailed
}

// DeploymentDetails is the tagged union of status-dependent detail payloads.
// Exactly one concrete shape is attached to a record at a time, matching what
// the pipeline can know at that point.
type DeploymentDetails interface {
	deploymentDetails()
}

// ProvisioningDetails is attached once the VM resource has been created.
type ProvisioningDetails struct {
	ResourceGroup string `json:"resource_group"`
	Location      string `json:"location"`
	VMSize        string `json:"vm_size"`
}

func (ProvisioningDetails) deploymentDetails() {}

// ConfiguringDetails is attached while the setup script runs on the VM.
type ConfiguringDetails struct {
	ProvisioningDetails
}

func (ConfiguringDetails) deploymentDetails() {}

// CompletedDetails is attached with the terminal status. Sigstruct carries the
// enclave measurement record parsed from the setup script output, when the
// script produced one.
type CompletedDetails struct {
	ProvisioningDetails
	SetupScript string            `json:"setup_script"`
	Sigstruct   map[string]string `json:"sigstruct,omitempty"`
}

func (CompletedDetails) deploymentDetails() {}

// DeploymentRecord tracks one deployment request for the process lifetime.
// RequestID is unique and immutable; all other fields are mutated only by the
// orchestrator pipeline that owns the record.
type DeploymentRecord struct {
	RequestID     string            `json:"request_id"`
	VMName        string            `json:"vm_name"`
	Status        DeploymentStatus  `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	PublicAddress string            `json:"public_address,omitempty"`
	Details       DeploymentDetails `json:"details,omitempty"`
	Error         string            `json:"error,omitempty"`
}
