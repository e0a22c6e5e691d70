package vanillaac

import (
	"fmt"
	"io"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/device"
	"github.com/samuelfneumann/racerl/expreplay"
	"github.com/samuelfneumann/racerl/initwfn"
	"github.com/samuelfneumann/racerl/network"
	"github.com/samuelfneumann/racerl/solver"
)

// GaussianVanillaAC is the agent Type of a Config
const GaussianVanillaAC agent.Type = "GaussianVanillaAC"

func init() {
	agent.Register(GaussianVanillaAC, Config{})
	agent.RegisterRestorer(GaussianVanillaAC, func(r io.Reader, env agent.Env,
		dev device.Device) (agent.Agent, error) {
		v, err := Restore(r, env, dev)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
}

// Config implements a configuration of a Gaussian policy vanilla
// actor-critic agent. The policy mean is predicted by a neural network
// and the standard deviation is fixed. A second network of the same
// shape is the state value critic. Both are trained on batches drawn
// from an experience replay buffer.
type Config struct {
	Hidden      []int
	Activations []*network.Activation
	EncoderSize int
	InitWFn     initwfn.Config

	PolicySolver solver.Config
	ValueSolver  solver.Config

	StdDev float64 // Exploration noise in training mode
	Gamma  float64

	ExpReplay expreplay.Config

	// No updates are made during the first LearningStarts steps. After
	// that, the agent is updated every TrainFrequency steps and each
	// update takes GradientSteps gradient steps on the critic.
	LearningStarts int
	TrainFrequency int
	GradientSteps  int
}

// Default returns the default actor-critic configuration with the
// given step size, discount, batch size, and replay buffer capacity
func Default(stepSize, gamma float64, batchSize, bufferSize int) Config {
	return Config{
		Hidden:         []int{64, 64},
		Activations:    []*network.Activation{network.ReLU(), network.ReLU()},
		EncoderSize:    32,
		InitWFn:        initwfn.NewGlorotU(1.0),
		PolicySolver:   solver.NewAdam(stepSize, 1),
		ValueSolver:    solver.NewAdam(stepSize, 1),
		StdDev:         0.3,
		Gamma:          gamma,
		ExpReplay:      expreplay.NewConfig(batchSize, bufferSize),
		LearningStarts: 100,
		TrainFrequency: 1,
		GradientSteps:  1,
	}
}

// BatchSize returns the number of transitions in each update
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize()
}

// CreateAgent creates a new actor-critic agent from the Config
func (c Config) CreateAgent(env agent.Env, seed uint64,
	dev device.Device) (agent.Agent, error) {
	return New(env, c, seed, dev)
}

// Type returns the agent Type of the Config
func (c Config) Type() agent.Type {
	return GaussianVanillaAC
}

// Validate checks a Config for invalid fields
func (c Config) Validate() error {
	if len(c.Hidden) != len(c.Activations) {
		return fmt.Errorf("validate: invalid number of activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.Hidden), len(c.Activations))
	}
	for i, units := range c.Hidden {
		if units <= 0 {
			return fmt.Errorf("validate: hidden layer %v has %v units", i,
				units)
		}
		if c.Activations[i] == nil {
			return fmt.Errorf("validate: hidden layer %v has no activation", i)
		}
	}
	if c.EncoderSize <= 0 {
		return fmt.Errorf("validate: encoder size must be positive, got %v",
			c.EncoderSize)
	}
	if err := c.InitWFn.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if err := c.PolicySolver.Validate(); err != nil {
		return fmt.Errorf("validate: policy solver: %w", err)
	}
	if err := c.ValueSolver.Validate(); err != nil {
		return fmt.Errorf("validate: value solver: %w", err)
	}
	if err := c.ExpReplay.Validate(); err != nil {
		return fmt.Errorf("validate: replay: %w", err)
	}

	if c.StdDev <= 0 {
		return fmt.Errorf("validate: standard deviation must be positive, "+
			"got %v", c.StdDev)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1], got %v", c.Gamma)
	}
	if c.LearningStarts < 0 {
		return fmt.Errorf("validate: learning starts must be non-negative, "+
			"got %v", c.LearningStarts)
	}
	if c.TrainFrequency < 1 {
		return fmt.Errorf("validate: train frequency must be positive, got %v",
			c.TrainFrequency)
	}
	if c.GradientSteps < 1 {
		return fmt.Errorf("validate: gradient steps must be positive, got %v",
			c.GradientSteps)
	}
	return nil
}
