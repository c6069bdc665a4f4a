package attestation

import (
	"fmt"
	"strings"

	"github.com/relational-network/tee-devops-runner/interfaces"
)

// Messages for the structural precondition checks that run before the
// transcript scan.
const (
	MsgMissingFields = "Incomplete attestation details: missing one or more required fields"
	MsgHostMismatch  = "Attestation reported host does not match VM public IP"
)

// ExpectedSteps returns the ordered transcript markers a successful probe run
// against host:port must produce, each paired with the failure message
// reported when the marker is missing. The order is fixed; arbitrary text may
// appear between markers.
func ExpectedSteps(host string, port int) []interfaces.ExpectedStep {
	return []interfaces.ExpectedStep{
		{Marker: "Seeding the random number generator... ok", FailureMessage: "Error: Seeding the random number generator failed."},
		{Marker: fmt.Sprintf("Connecting to tcp/%s/%d... ok", host, port), FailureMessage: fmt.Sprintf("Error: Connecting to tcp/%s/%d failed.", host, port)},
		{Marker: "Setting up the SSL/TLS structure... ok", FailureMessage: "Error: Setting up the SSL/TLS structure failed."},
		{Marker: "Setting certificate verification mode for RA-TLS... ok", FailureMessage: "Error: Setting certificate verification mode for RA-TLS failed."},
		{Marker: "Installing RA-TLS callback ... ok", FailureMessage: "Error: Installing RA-TLS callback failed."},
		{Marker: "Performing the SSL/TLS handshake...", FailureMessage: "Error: Performing the SSL/TLS handshake failed."},
		{Marker: "Handshake completed... ok", FailureMessage: "Error: Handshake did not complete successfully."},
		{Marker: "Verifying peer X.509 certificate... ok", FailureMessage: "Error: Peer X.509 certificate verification failed."},
		{Marker: "GET /health HTTP/1.1", FailureMessage: "Error: GET /health HTTP/1.1 request not found."},
		{Marker: fmt.Sprintf("Host: %s:%d", host, port), FailureMessage: fmt.Sprintf("Error: Host header does not match expected value: Host: %s:%d.", host, port)},
		{Marker: "HTTP/1.1 200 OK", FailureMessage: "Error: HTTP/1.1 200 OK response not received."},
		{Marker: "Server is running", FailureMessage: "Error: Server is not running as expected."},
	}
}

// VerifyTranscript checks that every expected marker appears in the
// transcript in order. A cursor starts at the beginning of the transcript;
// each marker is searched for at or after the cursor, and on a match the
// cursor advances past it. The first missing marker ends the scan and its
// failure message is returned; later markers are not evaluated.
func VerifyTranscript(transcript string, steps []interfaces.ExpectedStep) (bool, string) {
	cursor := 0
	for _, step := range steps {
		pos := strings.Index(transcript[cursor:], step.Marker)
		if pos < 0 {
			return false, step.FailureMessage
		}
		cursor += pos + len(step.Marker)
	}
	return true, ""
}

// VerifyOutcome validates a probe outcome against the expected host and the
// ordered transcript steps. Two structural preconditions short-circuit the
// transcript scan: the outcome must carry every required field, and the
// reported host must equal the address that was targeted. The first failing
// check's message is returned.
func VerifyOutcome(outcome interfaces.AttestationOutcome, expectedHost string, steps []interfaces.ExpectedStep) (bool, string) {
	if !outcome.Success {
		if outcome.Error != "" {
			return false, outcome.Error
		}
		return false, MsgMissingFields
	}
	if outcome.Host == "" || outcome.Port == 0 || outcome.Mrenclave == "" ||
		outcome.Mrsigner == "" || outcome.Transcript == "" || outcome.DurationSeconds <= 0 {
		return false, MsgMissingFields
	}
	if outcome.Host != expectedHost {
		return false, MsgHostMismatch
	}
	return VerifyTranscript(outcome.Transcript, steps)
}
