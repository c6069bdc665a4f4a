package attestation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/relational-network/tee-devops-runner/interfaces"
	"github.com/relational-network/tee-devops-runner/metrics"
)

// DefaultProbeBinary is the conventional install location of the attestation
// probe.
const DefaultProbeBinary = "/usr/local/bin/attest"

// RunOptions bound one attestation run.
type RunOptions struct {
	// Timeout is the hard wall-clock budget per attempt.
	Timeout time.Duration

	// MaxRetries is the maximum number of attempts on nonzero exit.
	MaxRetries int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

func (o RunOptions) withDefaults() RunOptions {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	return o
}

// Budget returns the worst-case wall-clock duration of a run with these
// options: every attempt exhausting its timeout plus the delays in between.
func (o RunOptions) Budget() time.Duration {
	o = o.withDefaults()
	return time.Duration(o.MaxRetries)*o.Timeout + time.Duration(o.MaxRetries-1)*o.RetryDelay
}

// Runner executes the attestation probe binary against a target TEE instance.
type Runner struct {
	ProbeBinary string
	Executor    interfaces.ProbeExecutor
	Log         *slog.Logger
}

// NewRunner creates a runner for the given probe binary using the real
// process executor.
func NewRunner(probeBinary string, log *slog.Logger) *Runner {
	if probeBinary == "" {
		probeBinary = DefaultProbeBinary
	}
	return &Runner{ProbeBinary: probeBinary, Executor: execExecutor{}, Log: log}
}

// Execute runs the probe against the measurement's host and port, enforcing
// the per-attempt timeout and retrying nonzero exits up to MaxRetries times
// with RetryDelay between attempts. A missing probe binary fails immediately
// with no attempt; a timeout terminates the process and ends the whole run
// immediately without consuming a retry. Launch errors count as failed
// attempts for retry purposes.
func (r *Runner) Execute(ctx context.Context, m interfaces.AttestationMeasurement, opts RunOptions) interfaces.AttestationOutcome {
	opts = opts.withDefaults()

	if _, err := os.Stat(r.ProbeBinary); err != nil {
		r.Log.Error("Attest binary not found", "path", r.ProbeBinary)
		return interfaces.AttestationOutcome{
			Error: fmt.Sprintf("%s at %s", interfaces.ErrProbeNotFound, r.ProbeBinary),
		}
	}

	argv := []string{r.ProbeBinary, "dcap", m.Mrenclave, m.Mrsigner, m.ISVProdID, m.ISVSVN}
	env := []string{
		"APPLICATION_HOST=" + m.Host,
		"APPLICATION_PORT=" + strconv.Itoa(m.Port),
	}

	r.Log.Info("Running attestation", "host", m.Host, "port", m.Port,
		"mrenclave", m.Mrenclave, "mrsigner", m.Mrsigner)

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		start := time.Now()
		res, err := r.Executor.Run(ctx, argv, env, opts.Timeout)
		duration := time.Since(start)

		if err == nil && res.TimedOut {
			// The executor has terminated the process. Timeouts end the run
			// without falling through to the retry loop.
			r.Log.Error("Attestation timed out", "timeout", opts.Timeout)
			metrics.IncAttestationRun(false)
			return interfaces.AttestationOutcome{
				Error: fmt.Sprintf("attestation timed out after %s", opts.Timeout),
			}
		}

		if err == nil && res.ExitCode == 0 {
			r.Log.Info("Attestation successful", "host", m.Host, "port", m.Port,
				"duration", duration)
			metrics.IncAttestationRun(true)
			return interfaces.AttestationOutcome{
				Success:         true,
				Host:            m.Host,
				Port:            m.Port,
				Mrenclave:       m.Mrenclave,
				Mrsigner:        m.Mrsigner,
				Transcript:      res.Stdout,
				DurationSeconds: duration.Seconds(),
			}
		}

		if err == nil {
			r.Log.Warn("Attestation failed", "exitCode", res.ExitCode,
				"attempt", attempt, "maxRetries", opts.MaxRetries)
			if attempt >= opts.MaxRetries {
				metrics.IncAttestationRun(false)
				return interfaces.AttestationOutcome{
					Error:      fmt.Sprintf("attestation failed with exit code %d", res.ExitCode),
					Transcript: res.Stdout,
					Stderr:     res.Stderr,
				}
			}
		} else {
			r.Log.Error("Error running attestation", "err", err, "attempt", attempt)
			if attempt >= opts.MaxRetries {
				metrics.IncAttestationRun(false)
				return interfaces.AttestationOutcome{
					Error: fmt.Sprintf("error running attestation: %v", err),
				}
			}
		}

		r.Log.Info("Retrying attestation", "delay", opts.RetryDelay)
		select {
		case <-ctx.Done():
			metrics.IncAttestationRun(false)
			return interfaces.AttestationOutcome{Error: ctx.Err().Error()}
		case <-time.After(opts.RetryDelay):
		}
	}

	metrics.IncAttestationRun(false)
	return interfaces.AttestationOutcome{Error: "attestation failed after all retries"}
}
