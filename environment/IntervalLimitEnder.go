package environment

import (
	ts "github.com/samuelfneumann/racerl/timestep"
	"gonum.org/v1/gonum/spatial/r1"
)

// IntervalLimit implements the Ender interface to end episodes
// whenever a single feature in a feature vector leaves some interval
type IntervalLimit struct {
	intervals []r1.Interval
	indices   []int
	endType   ts.EndType
}

// NewIntervalLimit creates and returns a new interval limit. The endType
// argument determines what the episode end should be considered as.
func NewIntervalLimit(limits []r1.Interval, obsIndices []int,
	endType ts.EndType) Ender {
	if len(limits) != len(obsIndices) {
		panic("limits should have same length as observation indices")
	}

	return &IntervalLimit{limits, obsIndices, endType}
}

// End ends the episode if any tracked feature lies outside its
// interval.
func (i *IntervalLimit) End(t *ts.TimeStep) bool {
	for index, featureIndex := range i.indices {
		interval := i.intervals[index]
		value := t.Observation.AtVec(featureIndex)

		if value > interval.Max || value < interval.Min {
			t.SetEnd(i.endType)
			return true
		}
	}
	return false
}
