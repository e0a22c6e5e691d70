package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Transition is a single (S, A, R, γ, S') tuple of the agent-environment
// interaction. Discount is zero when NextState is terminal, so that
// targets built from a Transition never bootstrap past the end of an
// episode. Truncated episodes keep the environment's discount.
type Transition struct {
	State     *mat.VecDense
	Action    *mat.VecDense
	Reward    float64
	Discount  float64
	NextState *mat.VecDense
}

// NewTransition returns the Transition from step taking action to
// next
func NewTransition(step TimeStep, action *mat.VecDense,
	next TimeStep) Transition {
	discount := next.Discount
	if next.Terminated() {
		discount = 0
	}
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    next.Reward,
		Discount:  discount,
		NextState: next.Observation,
	}
}

func (t Transition) String() string {
	return fmt.Sprintf("Transition{S: %v, A: %v, R: %v, γ: %v, S': %v}",
		mat.Formatted(t.State.T()), mat.Formatted(t.Action.T()), t.Reward,
		t.Discount, mat.Formatted(t.NextState.T()))
}
