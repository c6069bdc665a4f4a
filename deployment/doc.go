/*
Package deployment implements the VM deployment pipeline: the in-memory state
store, the readiness poller, and the orchestrator that drives cloud resource
creation through a sequence of dependent steps.

Each submitted deployment runs on a bounded worker pool, independent of other
deployments and of status queries. The pipeline is

	create_security_group → create_network_interface → create_vm →
	wait_until_ready → run_remote_setup → fetch_public_address

with the record's status advancing pending → provisioning → vm_provisioned →
configuring → terminal. Any infrastructure step failure (including the
readiness timeout) ends the deployment as failed, leaving already-created
resources in place; a setup script that reports failure after the VM exists
ends it as partial_success instead, keeping "no infrastructure" and
"infrastructure exists but misconfigured" distinguishable.

Records live for the process lifetime and are never deleted.
*/
package deployment
