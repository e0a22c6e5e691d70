// Package agent defines the interfaces that learning agents implement
// and the policy architecture families that agents can be built with
package agent

import (
	"io"

	"github.com/samuelfneumann/racerl/environment"
	ts "github.com/samuelfneumann/racerl/timestep"
	"gonum.org/v1/gonum/mat"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
// Agents can save and load their learned parameters.
type Agent interface {
	Learner
	Policy
	Serializable
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner
	Step() error

	// Observe records that an action lead to some timestep
	Observe(action mat.Vector, nextObs ts.TimeStep) error

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(ts.TimeStep) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Policy represents a policy that an agent can have.
//
// In evaluation mode a Policy is deterministic: it never samples
// exploration noise, so the same TimeStep always yields the same
// action.
type Policy interface {
	SelectAction(t ts.TimeStep) *mat.VecDense
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// Serializable is an object whose parameters can be saved and later
// loaded back
type Serializable interface {
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// Env describes what an agent needs to know about the environment it
// will act in
type Env interface {
	ObservationSpec() environment.Spec
	ActionSpec() environment.Spec
	Architecture() Architecture
}

// Architecture selects the family of function approximator a policy
// is built from
type Architecture string

const (
	// MLP consumes flat observations with a single feed forward trunk
	MLP Architecture = "MlpPolicy"

	// MultiInputMLP encodes each named component of a structured
	// observation separately before a shared trunk
	MultiInputMLP Architecture = "MultiInputPolicy"
)

// ArchitectureFor returns the policy architecture family suited to an
// observation layout
func ArchitectureFor(l environment.Layout) Architecture {
	if l == environment.Structured {
		return MultiInputMLP
	}
	return MLP
}
