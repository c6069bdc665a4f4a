/*
Package attestation runs the external measurement probe against a deployed
TEE instance and verifies its transcript.

The Runner supervises the probe binary with a hard wall-clock timeout per
attempt and bounded retries for nonzero exits; a timeout ends the whole run
immediately without consuming a retry. The verifier first checks two
structural preconditions on the probe outcome (required fields present,
reported host equal to the targeted address) and then scans the transcript
for the ordered RA-TLS protocol markers, failing fast on the first missing
marker with its configured message.
*/
package attestation
