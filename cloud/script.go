package cloud

import "strings"

// Markers delimiting the sigstruct block in the setup script output.
const (
	sigstructStartMarker = "--- SIGSTRUCT_DATA_START ---"
	sigstructEndMarker   = "--- SIGSTRUCT_DATA_END ---"
)

// SetupScript is the in-guest bootstrap payload: it installs docker, pulls
// the enclave container image, prints the enclave sigstruct between the
// SIGSTRUCT_DATA markers, and starts the attested HTTPS server on port 443.
var SetupScript = []byte(`#!/bin/bash
set -e

echo "Starting VM setup for SGX Docker container..."

echo "Updating system packages..."
sudo apt-get update
sudo apt-get upgrade -y

echo "Installing Docker..."
sudo apt-get install -y apt-transport-https ca-certificates curl software-properties-common
curl -fsSL https://download.docker.com/linux/ubuntu/gpg | sudo apt-key add -
sudo add-apt-repository "deb [arch=amd64] https://download.docker.com/linux/ubuntu $(lsb_release -cs) stable"
sudo apt-get update
sudo apt-get install -y docker-ce

echo "Pulling Docker image..."
sudo docker pull binglekruger/ntls-ntc:v2

echo "Running temporary container to get sigstruct data..."
TEMP_CONTAINER_ID=$(sudo docker run -d --name temp-container \
    --device=/dev/sgx_enclave \
    --device=/dev/sgx_provision \
    binglekruger/ntls-ntc:v2)

echo "Waiting for container to initialize..."
sleep 5

echo "Executing sgx-sigstruct-view command in container..."
echo "--- SIGSTRUCT_DATA_START ---"
sudo docker exec $TEMP_CONTAINER_ID /bin/bash -c "gramine-sgx-sigstruct-view sgx-mvp.sig"
echo "--- SIGSTRUCT_DATA_END ---"

echo "Stopping and removing temporary container..."
sudo docker stop $TEMP_CONTAINER_ID
sudo docker rm $TEMP_CONTAINER_ID

if sudo docker ps -a | grep -q ntls-server; then
    echo "Removing existing ntls-server container..."
    sudo docker rm -f ntls-server
fi

echo "Running final Docker container on HTTPS port..."
sudo docker run -d -p 443:8081 \
    --restart=unless-stopped \
    --name ntls-server \
    --device=/dev/sgx_enclave \
    --device=/dev/sgx_provision \
    binglekruger/ntls-ntc:v2

echo "Checking container status..."
if sudo docker ps | grep -q ntls-server; then
    echo "Container 'ntls-server' is running successfully!"
else
    echo "WARNING: Container appears to have stopped. Checking logs for errors..."
    sudo docker logs ntls-server
fi

echo "Setup completed successfully!"
`)

// sigstructKeys are the fields extracted from the sigstruct view output.
var sigstructKeys = []string{"mr_signer", "mr_enclave", "isv_prod_id", "isv_svn"}

// ParseSigstructOutput extracts the enclave measurement fields from the
// key/value block between the SIGSTRUCT_DATA markers in raw script output.
// It returns nil when no complete block or no known keys are present.
func ParseSigstructOutput(raw string) map[string]string {
	start := strings.Index(raw, sigstructStartMarker)
	end := strings.Index(raw, sigstructEndMarker)
	if start < 0 || end < 0 || end < start {
		return nil
	}

	block := raw[start+len(sigstructStartMarker) : end]
	data := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		for _, key := range sigstructKeys {
			if strings.HasPrefix(line, key+":") {
				data[key] = strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
			}
		}
	}

	if len(data) == 0 {
		return nil
	}
	return data
}
