// Package wrappers implements environment wrappers. The central
// wrapper is the Adapter, which presents any environment to an agent
// through a fixed observation and action contract.
package wrappers

import (
	"fmt"
	"image"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/environment"
	ts "github.com/samuelfneumann/racerl/timestep"
	"gonum.org/v1/gonum/mat"
)

// AdapterConfig configures the shaping an Adapter applies to its
// environment
type AdapterConfig struct {
	// MaxEpisodeSteps truncates episodes after this many steps. Zero
	// disables truncation.
	MaxEpisodeSteps int
}

// Adapter wraps a raw environment so that its observations, actions,
// and episode endings match the contract agents expect.
//
// The observation layout is resolved once, at construction, into the
// policy architecture family agents should be built with. Every
// observation and action crossing the Adapter is checked against the
// shapes declared by the environment's specifications.
type Adapter struct {
	environment.Environment
	raw environment.Environment

	layout       environment.Layout
	architecture agent.Architecture
	obsSpec      environment.Spec
	actionSpec   environment.Spec
	limit        int
}

// NewAdapter returns a new Adapter around env
func NewAdapter(env environment.Environment, c AdapterConfig) (*Adapter,
	error) {
	if env == nil {
		return nil, fmt.Errorf("newAdapter: nil environment")
	}
	if c.MaxEpisodeSteps < 0 {
		return nil, fmt.Errorf("newAdapter: episode step limit must be "+
			"non-negative, got %v", c.MaxEpisodeSteps)
	}

	var wrapped environment.Environment = env
	if c.MaxEpisodeSteps > 0 {
		limited, err := NewTimeLimit(env, c.MaxEpisodeSteps)
		if err != nil {
			return nil, fmt.Errorf("newAdapter: %w", err)
		}
		wrapped = limited
	}

	obsSpec := env.ObservationSpec()
	layout := obsSpec.Layout()

	return &Adapter{
		Environment:  wrapped,
		raw:          env,
		layout:       layout,
		architecture: agent.ArchitectureFor(layout),
		obsSpec:      obsSpec,
		actionSpec:   env.ActionSpec(),
		limit:        c.MaxEpisodeSteps,
	}, nil
}

// ResetSeed reseeds the environment and starts a new episode. Calling
// ResetSeed twice with the same seed produces the same first TimeStep.
func (a *Adapter) ResetSeed(seed uint64) (ts.TimeStep, error) {
	a.Environment.Seed(seed)
	return a.Reset()
}

// Reset starts a new episode, continuing the environment's current
// random stream
func (a *Adapter) Reset() (ts.TimeStep, error) {
	step, err := a.Environment.Reset()
	if err != nil {
		return step, fmt.Errorf("reset: %w", err)
	}
	if err := a.checkObservation(step); err != nil {
		return step, fmt.Errorf("reset: %w", err)
	}
	return step, nil
}

// Step takes an environmental step with action
func (a *Adapter) Step(action *mat.VecDense) (ts.TimeStep, bool, error) {
	if action == nil || action.Len() != a.actionSpec.Shape.Len() {
		n := 0
		if action != nil {
			n = action.Len()
		}
		return ts.TimeStep{}, true, fmt.Errorf("step: action must have %v "+
			"dimensions, got %v", a.actionSpec.Shape.Len(), n)
	}

	step, last, err := a.Environment.Step(action)
	if err != nil {
		return step, true, fmt.Errorf("step: %w", err)
	}
	if err := a.checkObservation(step); err != nil {
		return step, true, fmt.Errorf("step: %w", err)
	}
	return step, last, nil
}

// checkObservation ensures that an observation has the shape declared
// by the observation specification
func (a *Adapter) checkObservation(step ts.TimeStep) error {
	if step.Observation == nil {
		return fmt.Errorf("environment returned no observation")
	}
	if step.Observation.Len() != a.obsSpec.Shape.Len() {
		return fmt.Errorf("observation has length %v, specification "+
			"declares %v", step.Observation.Len(), a.obsSpec.Shape.Len())
	}
	return nil
}

// Render renders the current state of the environment. If the wrapped
// environment cannot render, environment.ErrNotRenderable is returned.
func (a *Adapter) Render() (image.Image, error) {
	r, ok := a.raw.(environment.Renderer)
	if !ok {
		return nil, environment.ErrNotRenderable
	}
	return r.Render()
}

// Renderable returns whether the wrapped environment can render
func (a *Adapter) Renderable() bool {
	_, ok := a.raw.(environment.Renderer)
	return ok
}

// ObservationSpec returns the observation specification
func (a *Adapter) ObservationSpec() environment.Spec {
	return a.obsSpec
}

// ActionSpec returns the action specification
func (a *Adapter) ActionSpec() environment.Spec {
	return a.actionSpec
}

// Layout returns the observation layout
func (a *Adapter) Layout() environment.Layout {
	return a.layout
}

// Architecture returns the policy architecture family that agents
// acting in the environment should use
func (a *Adapter) Architecture() agent.Architecture {
	return a.architecture
}

// Components returns the named components of structured observations,
// or nil for flat observations
func (a *Adapter) Components() []environment.Component {
	return a.obsSpec.Components
}

// Split splits a structured observation into its named components.
// The returned vectors share data with obs.
func (a *Adapter) Split(obs *mat.VecDense) (map[string]*mat.VecDense,
	error) {
	if obs.Len() != a.obsSpec.Shape.Len() {
		return nil, fmt.Errorf("split: observation has length %v, want %v",
			obs.Len(), a.obsSpec.Shape.Len())
	}
	if a.layout == environment.Flat {
		return map[string]*mat.VecDense{"observation": obs}, nil
	}

	parts := make(map[string]*mat.VecDense, len(a.obsSpec.Components))
	start := 0
	for _, c := range a.obsSpec.Components {
		parts[c.Name] = obs.SliceVec(start, start+c.Size).(*mat.VecDense)
		start += c.Size
	}
	return parts, nil
}

// MaxEpisodeSteps returns the episode step limit, or 0 if episodes are
// never truncated
func (a *Adapter) MaxEpisodeSteps() int {
	return a.limit
}

// Unwrap returns the raw environment
func (a *Adapter) Unwrap() environment.Environment {
	return a.raw
}
