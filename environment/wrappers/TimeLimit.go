package wrappers

import (
	"fmt"

	"github.com/samuelfneumann/racerl/environment"
	ts "github.com/samuelfneumann/racerl/timestep"
	"gonum.org/v1/gonum/mat"
)

// TimeLimit wraps an environment and truncates episodes after a fixed
// number of steps. Episodes which terminate on the final allowed step
// remain terminated rather than truncated.
//
// TimeLimit itself implements the environment.Environment interface.
type TimeLimit struct {
	environment.Environment
	limit environment.StepLimit
	step  ts.TimeStep
}

// NewTimeLimit returns a TimeLimit which truncates episodes of env
// after steps steps
func NewTimeLimit(env environment.Environment, steps int) (*TimeLimit,
	error) {
	if steps <= 0 {
		return nil, fmt.Errorf("newTimeLimit: step limit must be positive, "+
			"got %v", steps)
	}

	return &TimeLimit{
		Environment: env,
		limit:       environment.NewStepLimit(steps),
		step:        env.CurrentTimeStep(),
	}, nil
}

// Reset resets the wrapped environment
func (t *TimeLimit) Reset() (ts.TimeStep, error) {
	step, err := t.Environment.Reset()
	if err != nil {
		return step, err
	}
	t.step = step
	return step, nil
}

// Step takes a step in the wrapped environment, truncating the episode
// if the step limit has been reached
func (t *TimeLimit) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	step, last, err := t.Environment.Step(a)
	if err != nil {
		return step, last, err
	}

	if !last {
		last = t.limit.End(&step)
	}
	t.step = step
	return step, last, nil
}

// CurrentTimeStep returns the most recent TimeStep
func (t *TimeLimit) CurrentTimeStep() ts.TimeStep {
	return t.step
}

// Limit returns the episode step limit
func (t *TimeLimit) Limit() int {
	return t.limit.Steps()
}
