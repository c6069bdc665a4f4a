/*
Package interfaces defines the core types and collaborator interfaces for the
TEE deployment and attestation system. It provides the contract between
components without implementation details.

# Deployment types

DeploymentRecord tracks one submitted deployment for the lifetime of the
process. Its status only ever advances forward through

	pending → provisioning → vm_provisioned → configuring →
	{completed | partial_success | failed}

and the status-dependent payload is expressed as a tagged union of detail
shapes (ProvisioningDetails, ConfiguringDetails, CompletedDetails) so each
status carries exactly the fields it can know.

# Collaborators

CloudBackend abstracts the cloud provider used for provisioning: security
groups, network interfaces, virtual machines, instance status, remote script
execution and public address lookup. The concrete implementation lives in the
cloud package.

ProbeExecutor abstracts supervised execution of the external attestation
probe binary, with a hard wall-clock timeout and guaranteed termination of
the child process when the timeout fires.

# Errors

Sentinel errors (ErrDeploymentNotFound, ErrVMNotFound, ErrQueueFull,
ErrNoPublicAddress, ErrProbeNotFound) let callers map failures to HTTP
responses with errors.Is. Everything else is carried as human-readable
strings on records and outcomes; there are no programmatic error codes.
*/
package interfaces
