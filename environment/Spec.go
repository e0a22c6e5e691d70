package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an action, an observation, a discount, or a reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Component names a contiguous block of a structured observation
type Component struct {
	Name string
	Size int
}

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, discount, or reward in
// an environment.
//
// Observations may be structured: a named mapping of sub-observations
// laid out contiguously in the order of Components. A Spec with no
// Components describes a flat vector.
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
	Components []Component
}

// NewSpec constructs a new environment specification
// The shape argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// arguments describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if shape.Len() != lowerBound.Len() {
		panic(fmt.Sprintf("shape length %v must match lower bounds length %v",
			shape.Len(), lowerBound.Len()))
	}
	if shape.Len() != upperBound.Len() {
		panic(fmt.Sprintf("shape length %v must match upper bounds length %v",
			shape.Len(), upperBound.Len()))
	}
	return Spec{
		Shape:       shape,
		Type:        t,
		LowerBound:  lowerBound,
		UpperBound:  upperBound,
		Cardinality: cardinality,
	}
}

// NewStructuredSpec constructs an observation specification made up of
// named components. The component sizes must sum to the length of the
// bounds.
func NewStructuredSpec(components []Component, lowerBound,
	upperBound mat.Vector) Spec {
	size := 0
	for _, c := range components {
		if c.Size <= 0 {
			panic(fmt.Sprintf("component %q must have positive size", c.Name))
		}
		size += c.Size
	}
	if size != lowerBound.Len() {
		panic(fmt.Sprintf("component sizes %v must match bounds length %v",
			size, lowerBound.Len()))
	}

	spec := NewSpec(mat.NewVecDense(size, nil), Observation, lowerBound,
		upperBound, Continuous)
	spec.Components = append([]Component(nil), components...)
	return spec
}

// Layout returns the observation layout described by the Spec
func (s Spec) Layout() Layout {
	if len(s.Components) > 0 {
		return Structured
	}
	return Flat
}

// Layout is a tagged variant over the two observation representations
// an agent may have to consume
type Layout int

const (
	// Flat observations are a single continuous vector
	Flat Layout = iota

	// Structured observations are a named mapping of sub-observations
	Structured
)

func (l Layout) String() string {
	if l == Structured {
		return "Structured"
	}
	return "Flat"
}
