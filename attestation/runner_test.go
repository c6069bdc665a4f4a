package attestation

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relational-network/tee-devops-runner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedExecutor struct {
	res   interfaces.ExecResult
	err   error
	calls int

	lastArgv []string
	lastEnv  []string
}

func (s *scriptedExecutor) Run(ctx context.Context, argv []string, extraEnv []string, timeout time.Duration) (interfaces.ExecResult, error) {
	s.calls++
	s.lastArgv = argv
	s.lastEnv = extraEnv
	return s.res, s.err
}

func testMeasurement() interfaces.AttestationMeasurement {
	return interfaces.AttestationMeasurement{
		Mrenclave: "abc",
		Mrsigner:  "def",
		ISVProdID: "0",
		ISVSVN:    "0",
		Host:      "203.0.113.7",
		Port:      443,
	}
}

func newTestRunner(t *testing.T, exec interfaces.ProbeExecutor) *Runner {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attest")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return &Runner{
		ProbeBinary: path,
		Executor:    exec,
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func fastOpts() RunOptions {
	return RunOptions{Timeout: time.Second, MaxRetries: 3, RetryDelay: time.Millisecond}
}

func TestExecuteSuccess(t *testing.T) {
	exec := &scriptedExecutor{res: interfaces.ExecResult{ExitCode: 0, Stdout: "Server is running"}}
	r := newTestRunner(t, exec)

	outcome := r.Execute(context.Background(), testMeasurement(), fastOpts())

	assert.True(t, outcome.Success)
	assert.Equal(t, "203.0.113.7", outcome.Host)
	assert.Equal(t, 443, outcome.Port)
	assert.Equal(t, "abc", outcome.Mrenclave)
	assert.Equal(t, "def", outcome.Mrsigner)
	assert.Equal(t, "Server is running", outcome.Transcript)
	assert.Greater(t, outcome.DurationSeconds, 0.0)
	assert.Equal(t, 1, exec.calls)
}

func TestExecutePassesTargetToProbe(t *testing.T) {
	exec := &scriptedExecutor{res: interfaces.ExecResult{ExitCode: 0, Stdout: "ok"}}
	r := newTestRunner(t, exec)

	r.Execute(context.Background(), testMeasurement(), fastOpts())

	require.Len(t, exec.lastArgv, 6)
	assert.Equal(t, r.ProbeBinary, exec.lastArgv[0])
	assert.Equal(t, []string{"dcap", "abc", "def", "0", "0"}, exec.lastArgv[1:])
	assert.Contains(t, exec.lastEnv, "APPLICATION_HOST=203.0.113.7")
	assert.Contains(t, exec.lastEnv, "APPLICATION_PORT=443")
}

func TestExecuteRetriesNonzeroExit(t *testing.T) {
	exec := &scriptedExecutor{res: interfaces.ExecResult{ExitCode: 2, Stdout: "partial", Stderr: "boom"}}
	r := newTestRunner(t, exec)

	outcome := r.Execute(context.Background(), testMeasurement(), fastOpts())

	assert.False(t, outcome.Success)
	assert.Equal(t, "attestation failed with exit code 2", outcome.Error)
	assert.Equal(t, "partial", outcome.Transcript)
	assert.Equal(t, "boom", outcome.Stderr)
	assert.Equal(t, 3, exec.calls)
}

func TestExecuteTimeoutEndsRun(t *testing.T) {
	exec := &scriptedExecutor{res: interfaces.ExecResult{TimedOut: true, ExitCode: -1}}
	r := newTestRunner(t, exec)

	opts := fastOpts()
	opts.Timeout = 50 * time.Millisecond
	outcome := r.Execute(context.Background(), testMeasurement(), opts)

	assert.False(t, outcome.Success)
	assert.Equal(t, "attestation timed out after 50ms", outcome.Error)
	assert.Equal(t, 1, exec.calls, "timeouts must not be retried")
}

func TestExecuteRetriesLaunchErrors(t *testing.T) {
	exec := &scriptedExecutor{err: assert.AnError}
	r := newTestRunner(t, exec)

	outcome := r.Execute(context.Background(), testMeasurement(), fastOpts())

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "error running attestation")
	assert.Equal(t, 3, exec.calls)
}

func TestExecuteMissingBinary(t *testing.T) {
	exec := &scriptedExecutor{}
	r := &Runner{
		ProbeBinary: filepath.Join(t.TempDir(), "does-not-exist"),
		Executor:    exec,
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	outcome := r.Execute(context.Background(), testMeasurement(), fastOpts())

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, interfaces.ErrProbeNotFound.Error()+" at")
	assert.Equal(t, 0, exec.calls)
}

func TestExecuteCancelledBetweenRetries(t *testing.T) {
	exec := &scriptedExecutor{res: interfaces.ExecResult{ExitCode: 1}}
	r := newTestRunner(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := fastOpts()
	opts.RetryDelay = time.Minute
	outcome := r.Execute(ctx, testMeasurement(), opts)

	assert.False(t, outcome.Success)
	assert.Equal(t, context.Canceled.Error(), outcome.Error)
	assert.Equal(t, 1, exec.calls)
}

func TestRunOptionsBudget(t *testing.T) {
	opts := RunOptions{Timeout: 60 * time.Second, MaxRetries: 3, RetryDelay: 5 * time.Second}
	assert.Equal(t, 190*time.Second, opts.Budget())

	// Zero options resolve to the defaults before the budget is computed.
	assert.Equal(t, 190*time.Second, RunOptions{}.Budget())
}
