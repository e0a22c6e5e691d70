package floatutils

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r1"
)

func TestClip(t *testing.T) {
	tests := []struct {
		value, min, max, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-2, -1, 1, -1},
		{3, -1, 1, 1},
	}

	for _, test := range tests {
		if got := Clip(test.value, test.min, test.max); got != test.want {
			t.Errorf("Clip(%v, %v, %v): want(%v) have(%v)", test.value,
				test.min, test.max, test.want, got)
		}
		interval := r1.Interval{Min: test.min, Max: test.max}
		if got := ClipInterval(test.value, interval); got != test.want {
			t.Errorf("ClipInterval(%v, %v): want(%v) have(%v)", test.value,
				interval, test.want, got)
		}
	}
}

func TestSign(t *testing.T) {
	if Sign(-3) != -1 || Sign(0) != 0 || Sign(2.5) != 1 {
		t.Error("sign: incorrect sign")
	}
}
