// Package main (cmd/httpserver) implements the deployment and attestation API server.
//
// The server provides HTTP endpoints to launch confidential VM deployments,
// follow their progress, inspect the resulting VMs, and run remote
// attestation probes against the enclave servers running on them.
//
// Deployments run asynchronously: a submission is accepted immediately with a
// request ID, and a bounded pool of workers executes the provisioning
// pipeline (security group, network interface, VM, readiness wait, in-guest
// setup script). Clients poll the deployment endpoint until the status is
// terminal.
//
// Cloud connectivity is configured through command-line flags or their
// environment variable equivalents (AWS_REGION, SUBNET_ID, VPC_ID, IMAGE_ID,
// INSTANCE_TYPE, SSH_PUBLIC_KEY, RESOURCE_GROUP). A misconfigured backend
// does not prevent startup; the construction error is reported by every
// endpoint that needs it.
//
// The server implements graceful shutdown on receiving termination signals
// (SIGINT/SIGTERM) and supports health checks, metrics collection, and
// optional profiling endpoints.
//
// Example usage:
//
//	tee-devops-runner --listen-addr=0.0.0.0:8000 \
//	    --region=us-east-1 \
//	    --subnet-id=subnet-0123456789abcdef0 \
//	    --vpc-id=vpc-0123456789abcdef0 \
//	    --image-id=ami-0123456789abcdef0 \
//	    --ssh-public-key="ssh-ed25519 AAAA... deployer"
package main
