/*
Package cloud implements the CloudBackend collaborator used by the deployment
pipeline.

EC2Backend provisions security groups, network interfaces and instances
through the AWS EC2 API and runs the in-guest setup script through SSM,
normalizing provider state into the provisioning/power values the readiness
check expects. MockBackend is a testify mock of the same interface for tests.
*/
package cloud
