package deployment

import (
	"context"
	"fmt"
)

// Step is one named unit of the deployment pipeline. Run returns the step's
// output (a resource ID or similar) or an error.
type Step struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// StepOutcome is the tagged per-step result: either a success carrying the
// step's output, or a failure carrying the step name and cause.
type StepOutcome struct {
	Step   string
	Output string
	Err    error
}

// Failed reports whether the step failed.
func (o StepOutcome) Failed() bool {
	return o.Err != nil
}

// StepFailure wraps the first failing step's error with its name.
type StepFailure struct {
	Step string
	Err  error
}

func (f *StepFailure) Error() string {
	return fmt.Sprintf("step %s failed: %v", f.Step, f.Err)
}

func (f *StepFailure) Unwrap() error {
	return f.Err
}

// runSteps executes the steps in order and stops at the first failure.
// It returns the outcomes of all executed steps and, if any step failed, a
// StepFailure identifying it. Remaining steps are not run after a failure.
func runSteps(ctx context.Context, steps []Step) ([]StepOutcome, *StepFailure) {
	outcomes := make([]StepOutcome, 0, len(steps))
	for _, step := range steps {
		out, err := step.Run(ctx)
		outcomes = append(outcomes, StepOutcome{Step: step.Name, Output: out, Err: err})
		if err != nil {
			return outcomes, &StepFailure{Step: step.Name, Err: err}
		}
	}
	return outcomes, nil
}
