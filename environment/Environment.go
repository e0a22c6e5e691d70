// Package environment outlines the interfaces and structs needed to
// implement concrete environments and wrap them for agents
package environment

import (
	"errors"
	"image"

	ts "github.com/samuelfneumann/racerl/timestep"
	"gonum.org/v1/gonum/mat"
)

// ErrNotRenderable is returned when rendering is requested from an
// environment that cannot produce frames
var ErrNotRenderable = errors.New("environment cannot render")

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode should end. If the episode should
// end, End modifies the TimeStep so that it is the last in the episode
// and records why the episode ended.
type Ender interface {
	End(*ts.TimeStep) bool
}

// Environment implements a simulated environment. Environments are
// ready to use once constructed, and the first TimeStep of the first
// episode is available through CurrentTimeStep().
type Environment interface {
	// Seed reseeds every source of randomness in the environment. The
	// next call to Reset() then starts the episode determined by seed.
	Seed(seed uint64)

	Reset() (ts.TimeStep, error)
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)
	CurrentTimeStep() ts.TimeStep

	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec

	// Close releases any resources held by the environment
	Close() error
}

// Renderer is an Environment which can render its current state
type Renderer interface {
	Render() (image.Image, error)
}
