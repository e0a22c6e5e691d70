package expreplay

import (
	"fmt"

	ts "github.com/samuelfneumann/racerl/timestep"
)

// fifoCache implements a concrete ExperienceReplayer where elements
// are removed from the buffer in a FiFo manner, and only a single
// element is removed at a time, when a new element is added to a full
// buffer. Storage is a ring, so adding never allocates.
type fifoCache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	nextStateCache []float64

	// next is the index the next transition is written to, which is
	// also the index of the oldest transition once the buffer is full
	next   int
	isFull bool

	sampler Selector

	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

func newFifoCache(sampler Selector, minCapacity, maxCapacity, featureSize,
	actionSize int) *fifoCache {
	return &fifoCache{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		discountCache:  make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),

		sampler:     sampler,
		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}
}

// String returns the string representation of the fifoCache
func (f *fifoCache) String() string {
	return fmt.Sprintf("fifoCache{capacity: %v/%v, insert order: %v}",
		f.Capacity(), f.maxCapacity, f.insertOrder(f.Capacity()))
}

// BatchSize returns the number of samples sampled using Sample()
func (f *fifoCache) BatchSize() int {
	return f.sampler.BatchSize()
}

// insertOrder returns the indices of the oldest n transitions, oldest
// first
func (f *fifoCache) insertOrder(n int) []int {
	if n > f.Capacity() {
		n = f.Capacity()
	}
	start := 0
	if f.isFull {
		start = f.next
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = (start + i) % f.maxCapacity
	}
	return indices
}

// Sample samples and returns a batch of transitions from the replay
// buffer
func (f *fifoCache) Sample() (Batch, error) {
	if f.Capacity() == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: ErrEmpty}
	}
	if f.Capacity() < f.MinCapacity() {
		return Batch{}, &ExpReplayError{Op: "sample",
			Err: ErrInsufficientSamples}
	}

	indices := f.sampler.choose(f)
	b := Batch{
		State:     make([]float64, len(indices)*f.featureSize),
		Action:    make([]float64, len(indices)*f.actionSize),
		Reward:    make([]float64, len(indices)),
		Discount:  make([]float64, len(indices)),
		NextState: make([]float64, len(indices)*f.featureSize),
	}
	for i, index := range indices {
		copyRow(b.State, f.stateCache, i, index, f.featureSize)
		copyRow(b.NextState, f.nextStateCache, i, index, f.featureSize)
		copyRow(b.Action, f.actionCache, i, index, f.actionSize)
		b.Reward[i] = f.rewardCache[index]
		b.Discount[i] = f.discountCache[index]
	}
	return b, nil
}

// copyRow copies row src of size elements in from into row dst of to
func copyRow(to, from []float64, dst, src, size int) {
	copy(to[dst*size:(dst+1)*size], from[src*size:(src+1)*size])
}

// Capacity returns the current number of elements in the fifoCache
// that are available for sampling
func (f *fifoCache) Capacity() int {
	if f.isFull {
		return f.maxCapacity
	}
	return f.next
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the fifoCache
func (f *fifoCache) MaxCapacity() int {
	return f.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// fifoCache before sampling is allowed
func (f *fifoCache) MinCapacity() int {
	return f.minCapacity
}

// Add adds a transition to the fifoCache, replacing the oldest
// transition if the buffer is full
func (f *fifoCache) Add(t ts.Transition) error {
	if err := checkSizes(t, f.featureSize, f.actionSize); err != nil {
		return &ExpReplayError{Op: "add", Err: err}
	}

	index := f.next
	copy(f.stateCache[index*f.featureSize:], t.State.RawVector().Data)
	copy(f.nextStateCache[index*f.featureSize:], t.NextState.RawVector().Data)
	copy(f.actionCache[index*f.actionSize:], t.Action.RawVector().Data)
	f.rewardCache[index] = t.Reward
	f.discountCache[index] = t.Discount

	f.next = (f.next + 1) % f.maxCapacity
	if f.next == 0 {
		f.isFull = true
	}
	return nil
}
