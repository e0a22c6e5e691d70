// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either the
// first environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes why an episode ended. Only Last TimeSteps carry an
// EndType other than NotEnded.
type EndType int

const (
	NotEnded EndType = iota

	// Terminated denotes that the environment reached a terminal state,
	// for example the vehicle crashed or crossed the finish line
	Terminated

	// Truncated denotes that the episode was cut off before reaching a
	// terminal state, usually by an episode step limit
	Truncated
)

func (e EndType) String() string {
	switch e {
	case Terminated:
		return "Terminated"
	case Truncated:
		return "Truncated"
	default:
		return "NotEnded"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType
	Reward      float64
	Discount    float64
	Observation *mat.VecDense
	Number      int
	endType     EndType
}

// New returns a new TimeStep
func New(t StepType, r, d float64, o *mat.VecDense, n int) TimeStep {
	return TimeStep{
		StepType:    t,
		Reward:      r,
		Discount:    d,
		Observation: o,
		Number:      n,
	}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd marks the TimeStep as the last in its episode, recording why
// the episode ended.
func (t *TimeStep) SetEnd(e EndType) {
	t.StepType = Last
	t.endType = e
}

// EndType returns why the episode ended at this TimeStep
func (t TimeStep) EndType() EndType {
	return t.endType
}

// Terminated returns whether the episode ended in a terminal state
func (t TimeStep) Terminated() bool {
	return t.StepType == Last && t.endType == Terminated
}

// Truncated returns whether the episode was cut off before reaching a
// terminal state
func (t TimeStep) Truncated() bool {
	return t.StepType == Last && t.endType == Truncated
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v  |  End: %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number,
		t.endType)
}
