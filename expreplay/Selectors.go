package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// SelectorType names a method of choosing which transitions are
// sampled from a buffer
type SelectorType string

const (
	// Uniform samples transitions uniformly at random, with
	// replacement
	Uniform SelectorType = "Uniform"

	// Fifo samples the oldest transitions in the buffer
	Fifo SelectorType = "Fifo"
)

// ordered is a buffer whose stored transitions are indexed by
// [0, Capacity()) and which knows the order they were inserted in
type ordered interface {
	Capacity() int

	// insertOrder returns the indices of the oldest n transitions,
	// oldest first
	insertOrder(n int) []int
}

// Selector implements functionality for choosing how data should be
// sampled from an experience replay buffer
type Selector interface {
	// choose selects the indices at which data should be sampled from
	// the experience replay buffer
	choose(o ordered) []int

	// BatchSize returns the number of elements that will be selected
	BatchSize() int
}

// NewSelector returns the Selector of type t drawing batches of
// samples indices. The seed is ignored by deterministic Selectors.
func NewSelector(t SelectorType, samples int, seed uint64) (Selector, error) {
	switch t {
	case Uniform, "":
		return NewUniformSelector(samples, seed), nil
	case Fifo:
		return NewFifoSelector(samples), nil
	}
	return nil, fmt.Errorf("newSelector: unknown selector %q", t)
}

// uniformSelector is a Selector which selects data from an experience
// replay buffer uniformly randomly
type uniformSelector struct {
	samples int
	rng     *rand.Rand
}

// NewUniformSelector returns a new Selector which selects data uniformly
// randomly from an experience replay buffer
func NewUniformSelector(samples int, seed uint64) Selector {
	return &uniformSelector{
		samples: samples,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// BatchSize gets the number of samples in a batch drawn from the buffer
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

func (u *uniformSelector) choose(o ordered) []int {
	selected := make([]int, u.samples)
	for i := range selected {
		selected[i] = u.rng.Intn(o.Capacity())
	}
	return selected
}

// fifoSelector is a Selector which selects the oldest data in an
// experience replay buffer
type fifoSelector struct {
	samples int
}

// NewFifoSelector returns a new Selector which draws the oldest data
// from an experience replay buffer
func NewFifoSelector(samples int) Selector {
	return &fifoSelector{samples: samples}
}

// BatchSize gets the number of samples in a batch drawn from the buffer
func (f *fifoSelector) BatchSize() int {
	return f.samples
}

func (f *fifoSelector) choose(o ordered) []int {
	return o.insertOrder(f.samples)
}
