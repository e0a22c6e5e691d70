package expreplay

import (
	ts "github.com/samuelfneumann/racerl/timestep"
)

// onlineCache implements an experience replay buffer for sampling
// completely online: only the most recent transition is kept and every
// batch is that single transition.
type onlineCache struct {
	batch       Batch
	featureSize int
	actionSize  int
}

// newOnline returns a new online replay buffer
func newOnline(featureSize, actionSize int) ExperienceReplayer {
	return &onlineCache{featureSize: featureSize, actionSize: actionSize}
}

// Add replaces the stored transition with a copy of t
func (o *onlineCache) Add(t ts.Transition) error {
	if err := checkSizes(t, o.featureSize, o.actionSize); err != nil {
		return &ExpReplayError{Op: "add", Err: err}
	}
	o.batch = Batch{
		State:     append([]float64(nil), t.State.RawVector().Data...),
		Action:    append([]float64(nil), t.Action.RawVector().Data...),
		Reward:    []float64{t.Reward},
		Discount:  []float64{t.Discount},
		NextState: append([]float64(nil), t.NextState.RawVector().Data...),
	}
	return nil
}

// Sample returns the last transition added
func (o *onlineCache) Sample() (Batch, error) {
	if o.batch.Size() == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: ErrEmpty}
	}
	return o.batch, nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (o *onlineCache) Capacity() int {
	return o.batch.Size()
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (o *onlineCache) MaxCapacity() int {
	return 1
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (o *onlineCache) MinCapacity() int {
	return 1
}

// BatchSize returns the number of samples sampled using Sample()
func (o *onlineCache) BatchSize() int {
	return 1
}
