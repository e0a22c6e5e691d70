package vanillapg

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// gaeBuffer stores a batch of on-policy transitions and computes
// advantages with generalized advantage estimation, and returns-to-go
// as the value function targets. A batch may hold several episodes
// (paths); each path is finished with finishPath before the next one
// starts.
type gaeBuffer struct {
	obsSize      int
	actionSize   int
	maxSize      int
	currentPos   int
	pathStartIdx int
	lambda       float64
	gamma        float64

	obsBuffer []float64
	actBuffer []float64
	advBuffer []float64
	rewBuffer []float64
	retBuffer []float64
	valBuffer []float64
}

func newGAEBuffer(obsDim, actDim, size int, lambda, gamma float64) *gaeBuffer {
	return &gaeBuffer{
		obsSize:    obsDim,
		actionSize: actDim,
		maxSize:    size,
		lambda:     lambda,
		gamma:      gamma,
		obsBuffer:  make([]float64, size*obsDim),
		actBuffer:  make([]float64, size*actDim),
		advBuffer:  make([]float64, size),
		rewBuffer:  make([]float64, size),
		retBuffer:  make([]float64, size),
		valBuffer:  make([]float64, size),
	}
}

// full returns whether the buffer holds a complete batch
func (b *gaeBuffer) full() bool {
	return b.currentPos == b.maxSize
}

// len returns the number of transitions stored
func (b *gaeBuffer) len() int {
	return b.currentPos
}

// store stores a single transition's observation, action, reward, and
// the value of the observation
func (b *gaeBuffer) store(obs, act []float64, rew, val float64) error {
	if b.full() {
		return fmt.Errorf("store: cannot add new transition, buffer at " +
			"maximum capacity")
	}
	if len(obs) != b.obsSize {
		return fmt.Errorf("store: illegal obs length \n\twant(%v)\n\thave(%v)",
			b.obsSize, len(obs))
	}
	if len(act) != b.actionSize {
		return fmt.Errorf("store: illegal act length \n\twant(%v)\n\thave(%v)",
			b.actionSize, len(act))
	}

	copy(b.obsBuffer[b.currentPos*b.obsSize:], obs)
	copy(b.actBuffer[b.currentPos*b.actionSize:], act)
	b.rewBuffer[b.currentPos] = rew
	b.valBuffer[b.currentPos] = val
	b.currentPos++
	return nil
}

// finishPath computes the advantages and returns-to-go of the current
// path. The argument lastVal bootstraps the path: it should be 0 if the
// path ended in a terminal state and the value estimate of the final
// observation otherwise.
func (b *gaeBuffer) finishPath(lastVal float64) {
	start, stop := b.pathStartIdx, b.currentPos
	if start == stop {
		return
	}

	rews := append(append([]float64(nil), b.rewBuffer[start:stop]...),
		lastVal)
	vals := append(append([]float64(nil), b.valBuffer[start:stop]...),
		lastVal)

	// GAE-lambda advantage calculation
	deltas := make([]float64, len(rews)-1)
	for i := range deltas {
		deltas[i] = rews[i] + b.gamma*vals[i+1] - vals[i]
	}
	copy(b.advBuffer[start:stop], discountCumSum(deltas, b.gamma*b.lambda))

	// Rewards-to-go
	rewsToGo := discountCumSum(rews, b.gamma)
	copy(b.retBuffer[start:stop], rewsToGo[:len(rewsToGo)-1])

	b.pathStartIdx = b.currentPos
}

// discountCumSum returns the discounted cumulative sums of x, with
// element i equal to x[i] + discount * x[i+1] + discount² * x[i+2] ...
func discountCumSum(x []float64, discount float64) []float64 {
	cumSums := make([]float64, len(x))
	next := 0.0
	for i := len(x) - 1; i >= 0; i-- {
		next = x[i] + discount*next
		cumSums[i] = next
	}
	return cumSums
}

// get returns copies of the stored observations, actions, normalized
// advantages, and returns-to-go, then empties the buffer. The buffer
// must be full and its last path finished.
func (b *gaeBuffer) get() (obs, act, adv, ret []float64, err error) {
	if !b.full() {
		err := fmt.Errorf("get: buffer must be full before sampling")
		return nil, nil, nil, nil, err
	}
	if b.pathStartIdx != b.currentPos {
		err := fmt.Errorf("get: last path has not been finished")
		return nil, nil, nil, nil, err
	}

	b.currentPos = 0
	b.pathStartIdx = 0

	// Advantage normalization
	adv = append([]float64(nil), b.advBuffer...)
	mean, std := stat.MeanStdDev(adv, nil)
	floats.AddConst(-mean, adv)
	floats.Scale(1/(std+1e-8), adv)

	obs = append([]float64(nil), b.obsBuffer...)
	act = append([]float64(nil), b.actBuffer...)
	ret = append([]float64(nil), b.retBuffer...)
	return obs, act, adv, ret, nil
}
