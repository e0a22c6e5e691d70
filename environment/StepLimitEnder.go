package environment

import ts "github.com/samuelfneumann/racerl/timestep"

// StepLimit implements the Ender interface to end episodes at specific
// timestep limits. Episodes ended by a StepLimit are truncated.
type StepLimit struct {
	episodeSteps int
}

// NewStepLimit creates and returns a new step limit
func NewStepLimit(episodeSteps int) StepLimit {
	return StepLimit{episodeSteps}
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode truncation. If the episode
// should be ended End() will mark the timestep as the last in the
// episode with end type timestep.Truncated
func (s StepLimit) End(t *ts.TimeStep) bool {
	if s.episodeSteps > 0 && t.Number >= s.episodeSteps {
		t.SetEnd(ts.Truncated)
		return true
	}
	return false
}

// Steps returns the episode step limit
func (s StepLimit) Steps() int {
	return s.episodeSteps
}
