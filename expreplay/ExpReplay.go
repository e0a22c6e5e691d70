// Package expreplay implements experience replay buffers. Transitions
// are stored in flat float64 caches and removed oldest first once a
// buffer is full. How batches are drawn is decided by a Selector.
package expreplay

import (
	"fmt"

	ts "github.com/samuelfneumann/racerl/timestep"
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	SampleMethod SelectorType
	SampleSize   int

	// MinReplayCapacity transitions must be stored before the buffer
	// can be sampled. Zero means SampleSize.
	MinReplayCapacity int
	MaxReplayCapacity int
}

// NewConfig returns a Config which samples batches of batchSize
// transitions uniformly from the latest capacity transitions
func NewConfig(batchSize, capacity int) Config {
	return Config{
		SampleMethod:      Uniform,
		SampleSize:        batchSize,
		MinReplayCapacity: batchSize,
		MaxReplayCapacity: capacity,
	}
}

// BatchSize returns the number of transitions in each sampled batch
func (c Config) BatchSize() int {
	return c.SampleSize
}

// Validate checks a Config for invalid fields
func (c Config) Validate() error {
	switch c.SampleMethod {
	case Uniform, Fifo, "":
	default:
		return fmt.Errorf("validate: unknown sample method %q", c.SampleMethod)
	}
	if c.SampleSize < 1 {
		return fmt.Errorf("validate: sample size must be positive, got %v",
			c.SampleSize)
	}
	if c.MaxReplayCapacity < c.SampleSize {
		return fmt.Errorf("validate: cannot have batch size(%v) > max "+
			"buffer capacity (%v)", c.SampleSize, c.MaxReplayCapacity)
	}
	minCap := c.minCapacity()
	if minCap < c.SampleSize || minCap > c.MaxReplayCapacity {
		return fmt.Errorf("validate: min capacity must be in [%v, %v], got %v",
			c.SampleSize, c.MaxReplayCapacity, minCap)
	}
	return nil
}

func (c Config) minCapacity() int {
	if c.MinReplayCapacity == 0 {
		return c.SampleSize
	}
	return c.MinReplayCapacity
}

// Create creates and returns the ExperienceReplayer with the specified
// Config, storing observations of featureSize and actions of
// actionSize elements
func (c Config) Create(featureSize, actionSize int,
	seed uint64) (ExperienceReplayer, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	if featureSize < 1 || actionSize < 1 {
		return nil, fmt.Errorf("create: feature(%v) and action(%v) sizes "+
			"must be positive", featureSize, actionSize)
	}

	// A buffer of one transition replays online
	if c.MaxReplayCapacity == 1 {
		return newOnline(featureSize, actionSize), nil
	}

	sampler, err := NewSelector(c.SampleMethod, c.SampleSize, seed)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return newFifoCache(sampler, c.minCapacity(), c.MaxReplayCapacity,
		featureSize, actionSize), nil
}

// Batch is a batch of transitions sampled from a buffer. Observations
// and actions are flattened row major, one row per transition.
type Batch struct {
	State     []float64
	Action    []float64
	Reward    []float64
	Discount  []float64
	NextState []float64
}

// Size returns the number of transitions in the batch
func (b Batch) Size() int {
	return len(b.Reward)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t ts.Transition) error

	// Sample samples a batch of experience from the buffer
	Sample() (Batch, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// checkSizes returns an error if t does not have the given sizes
func checkSizes(t ts.Transition, featureSize, actionSize int) error {
	if t.State == nil || t.NextState == nil || t.Action == nil {
		return fmt.Errorf("incomplete transition")
	}
	if t.State.Len() != featureSize || t.NextState.Len() != featureSize {
		return fmt.Errorf("invalid feature size \n\twant(%v)\n\thave(%v)",
			featureSize, t.State.Len())
	}
	if t.Action.Len() != actionSize {
		return fmt.Errorf("invalid action size \n\twant(%v)\n\thave(%v)",
			actionSize, t.Action.Len())
	}
	return nil
}
