package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// UniformStarter samples starting states uniformly from a box. The
// sequence of starting states is fully determined by the seed, and
// Seed() rewinds the sequence.
type UniformStarter struct {
	bounds []r1.Interval
	seed   uint64
	rand   *distmv.Uniform
}

// NewUniformStarter returns a new UniformStarter sampling each
// dimension i from bounds[i]
func NewUniformStarter(bounds []r1.Interval, seed uint64) *UniformStarter {
	u := &UniformStarter{bounds: append([]r1.Interval(nil), bounds...)}
	u.Seed(seed)
	return u
}

// Seed restarts the sequence of starting states from seed
func (u *UniformStarter) Seed(seed uint64) {
	u.seed = seed
	u.rand = distmv.NewUniform(u.bounds, rand.NewSource(seed))
}

// Start samples a starting state
func (u *UniformStarter) Start() *mat.VecDense {
	return mat.NewVecDense(len(u.bounds), u.rand.Rand(nil))
}
