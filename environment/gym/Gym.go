// Package gym provides access to OpenAI Gym environments through the
// GoGym bindings (https://github.com/samuelfneumann/GoGym).
//
// Box observation spaces are exposed as flat observations. Dict and
// Tuple observation spaces are exposed as structured observations with
// one component per sub-space. Gym environments cannot render frames
// through this package.
//
// Importing this package registers the "gym:" environment id prefix
// with package envconfig, so that "gym:Pendulum-v0" names the Gym
// Pendulum environment. GoGym starts a Python interpreter and imports
// gym when it is initialised, so binaries link this package only when
// built with the gym build tag.
package gym

import (
	"fmt"
	"strings"

	"github.com/samuelfneumann/gogym"
	env "github.com/samuelfneumann/racerl/environment"
	"github.com/samuelfneumann/racerl/environment/envconfig"
	ts "github.com/samuelfneumann/racerl/timestep"
	"gonum.org/v1/gonum/mat"
)

// Prefix is the environment id prefix under which Gym environments are
// registered
const Prefix = "gym:"

func init() {
	envconfig.RegisterPrefix(Prefix, func(c envconfig.Config,
		seed uint64) (env.Environment, error) {
		g, err := New(strings.TrimPrefix(string(c.Environment), Prefix),
			c.Discount, seed)
		if err != nil {
			return nil, err
		}
		return g, nil
	})
}

// GymEnv implements access to an OpenAI Gym environment using GoGym
type GymEnv struct {
	gogym.Environment

	name        string
	currentStep ts.TimeStep
	discount    float64
	seedErr     error
}

// New returns a new GymEnv with the given name, which must be a legal
// name from the OpenAI Gym suite. The returned environment has been
// seeded and reset.
func New(name string, discount float64, seed uint64) (*GymEnv, error) {
	goGymEnv, err := gogym.Make(name)
	if err != nil {
		return nil, fmt.Errorf("new: could not create environment %v: %w",
			name, err)
	}

	gymEnv := &GymEnv{
		Environment: goGymEnv,
		name:        name,
		discount:    discount,
	}

	gymEnv.Seed(seed)
	if _, err := gymEnv.Reset(); err != nil {
		goGymEnv.Close()
		return nil, fmt.Errorf("new: %w", err)
	}

	return gymEnv, nil
}

// Seed seeds the Gym environment. Any error from seeding is reported
// by the next call to Reset().
func (g *GymEnv) Seed(seed uint64) {
	_, g.seedErr = g.Environment.Seed(int(seed))
}

// Step takes a single environmental step
func (g *GymEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	obs, reward, done, err := g.Environment.Step(a)
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: could not step "+
			"GoGym environment: %w", err)
	}

	t := ts.New(ts.Mid, reward, g.discount, obs, g.currentStep.Number+1)
	if done {
		t.SetEnd(ts.Terminated)
	}
	g.currentStep = t

	return t, done, nil
}

// Reset resets the environment to some starting state
func (g *GymEnv) Reset() (ts.TimeStep, error) {
	if g.seedErr != nil {
		err := g.seedErr
		g.seedErr = nil
		return ts.TimeStep{}, fmt.Errorf("reset: could not seed "+
			"environment: %w", err)
	}

	obs, err := g.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"environment: %w", err)
	}

	t := ts.New(ts.First, 0, g.discount, obs, 0)
	g.currentStep = t

	return t, nil
}

// CurrentTimeStep returns the current timestep in the environment
func (g *GymEnv) CurrentTimeStep() ts.TimeStep {
	return g.currentStep
}

// ObservationSpec returns the observation spec of the environment
func (g *GymEnv) ObservationSpec() env.Spec {
	low, high := g.ObservationSpace().Low(), g.ObservationSpace().High()
	if len(low) == 1 {
		shape := mat.NewVecDense(low[0].Len(), nil)
		return env.NewSpec(shape, env.Observation, low[0], high[0],
			env.Continuous)
	}

	components := make([]env.Component, len(low))
	for i := range low {
		components[i] = env.Component{
			Name: fmt.Sprintf("%v", i),
			Size: low[i].Len(),
		}
	}
	return env.NewStructuredSpec(components, concat(low), concat(high))
}

// ActionSpec returns the action specification of the environment
func (g *GymEnv) ActionSpec() env.Spec {
	low, high := g.ActionSpace().Low(), g.ActionSpace().High()
	if len(low) != 1 {
		panic(fmt.Sprintf("actionSpec: environment %v has a composite "+
			"action space", g.name))
	}

	cardinality := env.Continuous
	if !g.ContinuousAction() {
		cardinality = env.Discrete
	}
	shape := mat.NewVecDense(low[0].Len(), nil)
	return env.NewSpec(shape, env.Action, low[0], high[0], cardinality)
}

// DiscountSpec returns the discount specification of the environment
func (g *GymEnv) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	low := mat.NewVecDense(1, []float64{g.discount})

	return env.NewSpec(shape, env.Discount, low, low, env.Continuous)
}

// Close performs resource cleanup after the environment is no longer
// needed
func (g *GymEnv) Close() error {
	g.Environment.Close()
	return nil
}

func (g *GymEnv) String() string {
	return fmt.Sprintf("GymEnv | %v", g.name)
}

func concat(vecs []*mat.VecDense) *mat.VecDense {
	var data []float64
	for _, v := range vecs {
		data = append(data, v.RawVector().Data...)
	}
	return mat.NewVecDense(len(data), data)
}
