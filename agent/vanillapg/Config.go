package vanillapg

import (
	"fmt"
	"io"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/device"
	"github.com/samuelfneumann/racerl/initwfn"
	"github.com/samuelfneumann/racerl/network"
	"github.com/samuelfneumann/racerl/solver"
)

// GaussianVanillaPG is the agent Type of a Config
const GaussianVanillaPG agent.Type = "GaussianVanillaPG"

func init() {
	agent.Register(GaussianVanillaPG, Config{})
	agent.RegisterRestorer(GaussianVanillaPG, func(r io.Reader, env agent.Env,
		dev device.Device) (agent.Agent, error) {
		v, err := Restore(r, env, dev)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
}

// Config implements a configuration of a Gaussian policy VPG agent.
// The policy mean is predicted by a neural network and the standard
// deviation is fixed. A second network of the same shape estimates
// state values for generalized advantage estimation.
//
// The network family follows the environment's architecture: a flat
// MLP for flat observations, or an MLP which encodes each observation
// component separately (with EncoderSize units) for structured
// observations.
type Config struct {
	Hidden      []int
	Activations []*network.Activation
	EncoderSize int
	InitWFn     initwfn.Config

	PolicySolver solver.Config
	ValueSolver  solver.Config

	StdDev float64 // Exploration noise in training mode
	Gamma  float64
	Lambda float64 // GAE

	// BatchSize transitions are collected before each update, and each
	// update takes GradientSteps gradient steps on the batch. No
	// transitions are stored during the first LearningStarts steps.
	BatchSize      int
	LearningStarts int
	GradientSteps  int
}

// Default returns the default VPG configuration with the given step
// size, discount, and batch size
func Default(stepSize, gamma float64, batchSize int) Config {
	return Config{
		Hidden:         []int{64, 64},
		Activations:    []*network.Activation{network.ReLU(), network.ReLU()},
		EncoderSize:    32,
		InitWFn:        initwfn.NewGlorotU(1.0),
		PolicySolver:   solver.NewAdam(stepSize, 1),
		ValueSolver:    solver.NewAdam(stepSize, 1),
		StdDev:         0.3,
		Gamma:          gamma,
		Lambda:         0.95,
		BatchSize:      batchSize,
		LearningStarts: 100,
		GradientSteps:  1,
	}
}

// CreateAgent creates a new VPG agent from the Config
func (c Config) CreateAgent(env agent.Env, seed uint64,
	dev device.Device) (agent.Agent, error) {
	return New(env, c, seed, dev)
}

// Type returns the agent Type of the Config
func (c Config) Type() agent.Type {
	return GaussianVanillaPG
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

	if c.StdDev <= 0 {
		return fmt.Errorf("validate: standard deviation must be positive, "+
			"got %v", c.StdDev)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1], got %v", c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: lambda must be in [0, 1], got %v",
			c.Lambda)
	}
	if c.BatchSize < 2 {
		return fmt.Errorf("validate: batch size must be at least 2, got %v",
			c.BatchSize)
	}
	if c.LearningStarts < 0 {
		return fmt.Errorf("validate: learning starts must be non-negative, "+
			"got %v", c.LearningStarts)
	}
	if c.GradientSteps < 1 {
		return fmt.Errorf("validate: gradient steps must be positive, got %v",
			c.GradientSteps)
	}
	return nil
}
