package interfaces

import "context"

// Normalized instance state values. Backends translate their provider's wire
// values into these so the readiness check is provider-independent.
const (
	ProvisioningSucceeded = "Provisioning succeeded"
	PowerStateRunning     = "VM running"
)

// InstanceStatus is the composite provisioning and power state of a VM.
type InstanceStatus struct {
	ProvisioningState string `json:"provisioning_state"`
	PowerState        string `json:"power_state"`
}

// Ready reports whether the VM is fully provisioned and running.
func (s InstanceStatus) Ready() bool {
	return s.ProvisioningState == ProvisioningSucceeded && s.PowerState == PowerStateRunning
}

// RemoteScriptResult is the outcome of running the setup script on a VM.
// Succeeded reflects what the script execution reported; transport failures
// are returned as errors instead.
type RemoteScriptResult struct {
	Succeeded bool
	// Output holds key/value pairs parsed from the script output, such as the
	// enclave sigstruct fields.
	Output map[string]string
}

// SecurityProfile describes the confidential-computing settings of a VM.
type SecurityProfile struct {
	SecurityType string `json:"security_type"`
	SecureBoot   bool   `json:"secure_boot"`
	VTPM         bool   `json:"vtpm"`
}

// VMSummary is the listing view of a VM.
type VMSummary struct {
	Name          string            `json:"name"`
	Status        string            `json:"status"`
	Size          string            `json:"size"`
	Location      string            `json:"location"`
	OSType        string            `json:"os_type"`
	PublicAddress string            `json:"public_address,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// VMDetail is the detail view of a VM, adding the provider resource ID and
// security profile to the summary fields.
type VMDetail struct {
	VMSummary
	ID              string          `json:"id"`
	SecurityProfile SecurityProfile `json:"security_profile"`
}

// CloudBackend abstracts the cloud provider operations the deployment
// pipeline depends on. VM size, image and SSH key come from the backend's
// immutable configuration rather than per-call parameters.
//
// GetPublicAddress returns ErrNoPublicAddress when the VM has no public
// address yet; allocation may lag VM creation.
type CloudBackend interface {
	CreateSecurityGroup(ctx context.Context, name string) (string, error)
	CreateNetworkInterface(ctx context.Context, name, subnetID, securityGroupID string) (string, error)
	CreateVM(ctx context.Context, name, nicID string) (string, error)
	GetInstanceStatus(ctx context.Context, name string) (InstanceStatus, error)
	RunRemoteScript(ctx context.Context, name string, script []byte) (RemoteScriptResult, error)
	GetPublicAddress(ctx context.Context, name string) (string, error)
	ListInstances(ctx context.Context) ([]VMSummary, error)
	GetInstance(ctx context.Context, name string) (VMDetail, error)
}
