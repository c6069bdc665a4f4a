package attestation

import (
	"strings"
	"testing"

	"github.com/relational-network/tee-devops-runner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHost = "203.0.113.7"
	testPort = 443
)

func transcriptFor(host string, port int) string {
	steps := ExpectedSteps(host, port)
	lines := make([]string, len(steps))
	for i, s := range steps {
		lines[i] = s.Marker
	}
	return strings.Join(lines, "\n")
}

func validOutcome(transcript string) interfaces.AttestationOutcome {
	return interfaces.AttestationOutcome{
		Success:         true,
		Host:            testHost,
		Port:            testPort,
		Mrenclave:       "abc",
		Mrsigner:        "def",
		Transcript:      transcript,
		DurationSeconds: 1.5,
	}
}

func TestVerifyTranscriptComplete(t *testing.T) {
	ok, msg := VerifyTranscript(transcriptFor(testHost, testPort), ExpectedSteps(testHost, testPort))
	assert.True(t, ok)
	assert.Empty(t, msg)
}

func TestVerifyTranscriptInterleavedNoise(t *testing.T) {
	// Arbitrary probe chatter between markers must not break the scan.
	noisy := strings.ReplaceAll(transcriptFor(testHost, testPort), "\n", "\nsome debug output\n")
	ok, msg := VerifyTranscript(noisy, ExpectedSteps(testHost, testPort))
	assert.True(t, ok)
	assert.Empty(t, msg)
}

func TestVerifyTranscriptMissingMarker(t *testing.T) {
	transcript := strings.Replace(transcriptFor(testHost, testPort), "Handshake completed... ok", "", 1)
	ok, msg := VerifyTranscript(transcript, ExpectedSteps(testHost, testPort))
	assert.False(t, ok)
	assert.Equal(t, "Error: Handshake did not complete successfully.", msg)
}

func TestVerifyTranscriptOutOfOrder(t *testing.T) {
	// A later marker appearing before an earlier one does not satisfy the
	// earlier position; the scan never looks behind the cursor.
	steps := []interfaces.ExpectedStep{
		{Marker: "A ok", FailureMessage: "failA"},
		{Marker: "B ok", FailureMessage: "failB"},
	}
	ok, msg := VerifyTranscript("B ok\nA ok", steps)
	assert.False(t, ok)
	assert.Equal(t, "failB", msg)
}

func TestVerifyTranscriptReportsFirstFailureOnly(t *testing.T) {
	steps := ExpectedSteps(testHost, testPort)
	transcript := strings.NewReplacer(
		"Setting up the SSL/TLS structure... ok", "",
		"Server is running", "",
	).Replace(transcriptFor(testHost, testPort))

	ok, msg := VerifyTranscript(transcript, steps)
	assert.False(t, ok)
	assert.Equal(t, "Error: Setting up the SSL/TLS structure failed.", msg)
}

func TestVerifyOutcomeSuccess(t *testing.T) {
	outcome := validOutcome(transcriptFor(testHost, testPort))
	ok, msg := VerifyOutcome(outcome, testHost, ExpectedSteps(testHost, testPort))
	assert.True(t, ok)
	assert.Empty(t, msg)
}

func TestVerifyOutcomeProbeFailure(t *testing.T) {
	outcome := interfaces.AttestationOutcome{Error: "attestation failed with exit code 1"}
	ok, msg := VerifyOutcome(outcome, testHost, ExpectedSteps(testHost, testPort))
	assert.False(t, ok)
	assert.Equal(t, "attestation failed with exit code 1", msg)
}

func TestVerifyOutcomeMissingFields(t *testing.T) {
	base := validOutcome(transcriptFor(testHost, testPort))

	mutations := map[string]func(*interfaces.AttestationOutcome){
		"host":       func(o *interfaces.AttestationOutcome) { o.Host = "" },
		"port":       func(o *interfaces.AttestationOutcome) { o.Port = 0 },
		"mrenclave":  func(o *interfaces.AttestationOutcome) { o.Mrenclave = "" },
		"mrsigner":   func(o *interfaces.AttestationOutcome) { o.Mrsigner = "" },
		"transcript": func(o *interfaces.AttestationOutcome) { o.Transcript = "" },
		"duration":   func(o *interfaces.AttestationOutcome) { o.DurationSeconds = 0 },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			outcome := base
			mutate(&outcome)
			ok, msg := VerifyOutcome(outcome, testHost, ExpectedSteps(testHost, testPort))
			assert.False(t, ok)
			assert.Equal(t, MsgMissingFields, msg)
		})
	}
}

func TestVerifyOutcomeHostMismatch(t *testing.T) {
	outcome := validOutcome(transcriptFor(testHost, testPort))
	outcome.Host = "198.51.100.9"

	ok, msg := VerifyOutcome(outcome, testHost, ExpectedSteps(testHost, testPort))
	assert.False(t, ok)
	assert.Equal(t, MsgHostMismatch, msg)
}

func TestVerifyOutcomeChecksFieldsBeforeHost(t *testing.T) {
	outcome := validOutcome(transcriptFor(testHost, testPort))
	outcome.Host = "198.51.100.9"
	outcome.Mrenclave = ""

	ok, msg := VerifyOutcome(outcome, testHost, ExpectedSteps(testHost, testPort))
	require.False(t, ok)
	assert.Equal(t, MsgMissingFields, msg)
}

func TestExpectedStepsTargetSpecific(t *testing.T) {
	steps := ExpectedSteps("198.51.100.9", 8443)
	markers := make([]string, len(steps))
	for i, s := range steps {
		markers[i] = s.Marker
	}
	joined := strings.Join(markers, "\n")
	assert.Contains(t, joined, "Connecting to tcp/198.51.100.9/8443... ok")
	assert.Contains(t, joined, "Host: 198.51.100.9:8443")
}
