// Package solver describes Gorgonia Solvers by JSON serializable
// configurations so that they can be stored in experiment configuration
// files.
package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// Default Adam hyperparameters
const (
	DefaultEpsilon = 1e-8
	DefaultBeta1   = 0.9
	DefaultBeta2   = 0.999
)

// Config describes a Gorgonia Solver. Epsilon, Beta1, and Beta2 are
// only used by the Adam solver.
type Config struct {
	Type     Type
	StepSize float64
	Batch    int
	Clip     float64 `json:",omitempty"` // <= 0 if no clipping

	Epsilon float64 `json:",omitempty"`
	Beta1   float64 `json:",omitempty"`
	Beta2   float64 `json:",omitempty"`
}

// NewAdam returns the configuration of an Adam solver with default
// hyperparameters
func NewAdam(stepSize float64, batch int) Config {
	return Config{
		Type:     Adam,
		StepSize: stepSize,
		Batch:    batch,
		Epsilon:  DefaultEpsilon,
		Beta1:    DefaultBeta1,
		Beta2:    DefaultBeta2,
	}
}

// NewVanilla returns the configuration of a vanilla gradient descent
// solver
func NewVanilla(stepSize float64, batch int, clip float64) Config {
	return Config{
		Type:     Vanilla,
		StepSize: stepSize,
		Batch:    batch,
		Clip:     clip,
	}
}

// withDefaults returns the configuration with unset Adam
// hyperparameters replaced by their defaults
func (c Config) withDefaults() Config {
	if c.Type != Adam {
		return c
	}
	if c.Epsilon == 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.Beta1 == 0 {
		c.Beta1 = DefaultBeta1
	}
	if c.Beta2 == 0 {
		c.Beta2 = DefaultBeta2
	}
	return c
}

// Validate returns an error if the configuration cannot be used to
// create a solver. Unset Adam hyperparameters take their default
// values.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.StepSize <= 0 {
		return fmt.Errorf("validate: step size must be positive, got %v",
			c.StepSize)
	}
	if c.Batch <= 0 {
		return fmt.Errorf("validate: batch size must be positive, got %v",
			c.Batch)
	}

	switch c.Type {
	case Vanilla:
		return nil

	case Adam:
		if c.Epsilon <= 0 {
			return fmt.Errorf("validate: epsilon must be positive, got %v",
				c.Epsilon)
		}
		if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 {
			return fmt.Errorf("validate: betas must be in [0, 1), got "+
				"(%v, %v)", c.Beta1, c.Beta2)
		}
		return nil

	default:
		return fmt.Errorf("validate: unknown solver type %q", c.Type)
	}
}

// Create returns the Gorgonia Solver described by the configuration
func (c Config) Create() (G.Solver, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	c = c.withDefaults()

	opts := []G.SolverOpt{
		G.WithLearnRate(c.StepSize),
		G.WithBatchSize(float64(c.Batch)),
	}
	if c.Clip > 0 {
		opts = append(opts, G.WithClip(c.Clip))
	}

	switch c.Type {
	case Adam:
		opts = append(opts,
			G.WithEps(c.Epsilon),
			G.WithBeta1(c.Beta1),
			G.WithBeta2(c.Beta2),
		)
		return G.NewAdamSolver(opts...), nil

	default:
		return G.NewVanillaSolver(opts...), nil
	}
}

func (c Config) String() string {
	return fmt.Sprintf("{%v Solver: η=%v batch=%v}", c.Type, c.StepSize,
		c.Batch)
}
