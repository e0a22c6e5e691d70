package timestep

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestTransitionDiscount(t *testing.T) {
	obs := mat.NewVecDense(1, []float64{1})
	action := mat.NewVecDense(1, []float64{0.5})
	first := New(First, 0, 0.9, obs, 0)

	tests := []struct {
		end  EndType
		want float64
	}{
		{NotEnded, 0.9},
		{Truncated, 0.9},
		{Terminated, 0},
	}
	for _, test := range tests {
		next := New(Mid, 2, 0.9, mat.NewVecDense(1, []float64{2}), 1)
		if test.end != NotEnded {
			next.SetEnd(test.end)
		}

		tr := NewTransition(first, action, next)
		if tr.Discount != test.want {
			t.Errorf("%v: want discount(%v) have(%v)", test.end, test.want,
				tr.Discount)
		}
		if tr.Reward != 2 || tr.State != obs || tr.NextState.AtVec(0) != 2 {
			t.Errorf("%v: transition fields not taken from the timesteps: %v",
				test.end, tr)
		}
	}
}
