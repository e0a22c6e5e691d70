// Package initwfn describes Gorgonia weight initializers by JSON
// serializable configurations.
package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
type Type string

// Available InitWFn types
const (
	GlorotU  Type = "GlorotU"
	GlorotN  Type = "GlorotN"
	HeU      Type = "HeU"
	HeN      Type = "HeN"
	Gaussian Type = "Gaussian"
	Zeroes   Type = "Zeroes"
)

// Config describes a Gorgonia weight initializer. Gain is used by the
// Glorot and He initializers, Mean and StdDev by the Gaussian
// initializer.
type Config struct {
	Type   Type
	Gain   float64 `json:",omitempty"`
	Mean   float64 `json:",omitempty"`
	StdDev float64 `json:",omitempty"`
}

// NewGlorotU returns a Glorot uniform initializer configuration
func NewGlorotU(gain float64) Config {
	return Config{Type: GlorotU, Gain: gain}
}

// NewHeN returns a He normal initializer configuration
func NewHeN(gain float64) Config {
	return Config{Type: HeN, Gain: gain}
}

// NewGaussian returns a Gaussian initializer configuration
func NewGaussian(mean, stddev float64) Config {
	return Config{Type: Gaussian, Mean: mean, StdDev: stddev}
}

// Validate returns an error if the configuration does not describe a
// weight initializer
func (c Config) Validate() error {
	switch c.Type {
	case GlorotU, GlorotN, HeU, HeN:
		if c.Gain <= 0 {
			return fmt.Errorf("validate: %v gain must be positive, got %v",
				c.Type, c.Gain)
		}
	case Gaussian:
		if c.StdDev < 0 {
			return fmt.Errorf("validate: standard deviation must be "+
				"non-negative, got %v", c.StdDev)
		}
	case Zeroes:
	default:
		return fmt.Errorf("validate: unknown initializer type %q", c.Type)
	}
	return nil
}

// Create returns the Gorgonia InitWFn described by the configuration
func (c Config) Create() (G.InitWFn, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	switch c.Type {
	case GlorotU:
		return G.GlorotU(c.Gain), nil
	case GlorotN:
		return G.GlorotN(c.Gain), nil
	case HeU:
		return G.HeU(c.Gain), nil
	case HeN:
		return G.HeN(c.Gain), nil
	case Gaussian:
		return G.Gaussian(c.Mean, c.StdDev), nil
	default:
		return G.Zeroes(), nil
	}
}

func (c Config) String() string {
	return fmt.Sprintf("{%v InitWFn}", c.Type)
}
