// Package network implements feed forward neural networks built on
// Gorgonia computational graphs
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network on a Gorgonia computational graph.
// Inputs are batches of observations in row major order.
type NeuralNet interface {
	Graph() *G.ExprGraph
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the value of the input node(s) before running the
	// forward pass
	SetInput([]float64) error

	// Set sets the weights of the network to those of another network
	// with the same architecture
	Set(NeuralNet) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Prediction returns the output node of the network and Output
	// returns its value after the graph has been run
	Prediction() *G.Node
	Output() G.Value

	// Weights returns a copy of the values of all learnable nodes, in
	// the order of Learnables()
	Weights() [][]float64
	SetWeights([][]float64) error
}
