package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLP implements a multi-layered perceptron.
//
// An MLP may take its input as a number of separate feature groups.
// Each group is first passed through its own fully connected encoder
// layer, and the encodings are concatenated before the shared hidden
// layers. An MLP with a single group has no encoders, and feeds its
// input directly to the hidden layers.
//
// A final linear layer with no activation always maps the last hidden
// layer to the outputs.
type MLP struct {
	g     *G.ExprGraph
	batch int

	groups      []int
	encoderSize int
	inputs      []*G.Node
	encoders    []*fcLayer

	hiddenSizes []int
	activations []*Activation
	layers      []*fcLayer
	outputs     int

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewMLP creates and returns a new MLP on graph g taking a single
// group of features as input. The number of hidden layers is
// len(hiddenSizes), hidden layer i has hiddenSizes[i] units and
// activation activations[i]. The parameter init determines the weight
// initialization scheme.
func NewMLP(g *G.ExprGraph, batch, features, outputs int, hiddenSizes []int,
	activations []*Activation, init G.InitWFn) (*MLP, error) {
	return newMLP(g, batch, []int{features}, 0, outputs, hiddenSizes,
		activations, init)
}

// NewMultiInputMLP creates and returns a new MLP on graph g which takes
// its input as a number of feature groups, where group i has groups[i]
// features. Each group is encoded by a ReLU layer of encoderSize units
// before the hidden layers.
func NewMultiInputMLP(g *G.ExprGraph, batch int, groups []int, encoderSize,
	outputs int, hiddenSizes []int, activations []*Activation,
	init G.InitWFn) (*MLP, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("newMultiInputMLP: at least one input group " +
			"is required")
	}
	if encoderSize <= 0 {
		return nil, fmt.Errorf("newMultiInputMLP: encoder size must be "+
			"positive, got %v", encoderSize)
	}
	return newMLP(g, batch, groups, encoderSize, outputs, hiddenSizes,
		activations, init)
}

func newMLP(g *G.ExprGraph, batch int, groups []int, encoderSize,
	outputs int, hiddenSizes []int, activations []*Activation,
	init G.InitWFn) (*MLP, error) {
	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newMLP: invalid number of activations\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if batch <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("newMLP: batch size and outputs must be "+
			"positive, got %v and %v", batch, outputs)
	}
	for i, size := range groups {
		if size <= 0 {
			return nil, fmt.Errorf("newMLP: input group %v has %v features",
				i, size)
		}
	}

	net := &MLP{
		g:           g,
		batch:       batch,
		groups:      append([]int(nil), groups...),
		encoderSize: encoderSize,
		hiddenSizes: append([]int(nil), hiddenSizes...),
		activations: append([]*Activation(nil), activations...),
		outputs:     outputs,
	}

	// Set up the input nodes
	net.inputs = make([]*G.Node, len(groups))
	for i, size := range groups {
		name := "input"
		if len(groups) > 1 {
			name = fmt.Sprintf("input%v", i)
		}
		net.inputs[i] = G.NewMatrix(g, tensor.Float64,
			G.WithShape(batch, size), G.WithName(name),
			G.WithInit(G.Zeroes()))
	}

	// Encoders for multi-input networks
	features := groups[0]
	if len(groups) > 1 {
		net.encoders = make([]*fcLayer, len(groups))
		for i, size := range groups {
			net.encoders[i] = newFCLayer(g, size, encoderSize, ReLU(), init,
				fmt.Sprintf("encoder%v", i))
		}
		features = encoderSize * len(groups)
	}

	// Hidden layers followed by the linear output layer
	in := features
	for i, size := range hiddenSizes {
		net.layers = append(net.layers, newFCLayer(g, in, size,
			activations[i], init, fmt.Sprintf("L%v", i)))
		in = size
	}
	net.layers = append(net.layers, newFCLayer(g, in, outputs, Identity(),
		init, "out"))

	if err := net.fwd(); err != nil {
		return nil, fmt.Errorf("newMLP: could not compute forward pass: %w",
			err)
	}
	return net, nil
}

// fwd adds the forward pass of the MLP to its graph
func (m *MLP) fwd() error {
	var x *G.Node
	if len(m.encoders) == 0 {
		x = m.inputs[0]
	} else {
		encodings := make([]*G.Node, len(m.encoders))
		for i, enc := range m.encoders {
			var err error
			if encodings[i], err = enc.fwd(m.inputs[i]); err != nil {
				return fmt.Errorf("fwd: could not encode input %v: %w", i, err)
			}
		}

		var err error
		if x, err = G.Concat(1, encodings...); err != nil {
			return fmt.Errorf("fwd: could not concatenate encodings: %w", err)
		}
	}

	for i, l := range m.layers {
		var err error
		if x, err = l.fwd(x); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %w"
			return fmt.Errorf(msg, i, err)
		}
	}

	m.prediction = x
	G.Read(m.prediction, &m.predVal)
	return nil
}

// Graph returns the computational graph of the MLP
func (m *MLP) Graph() *G.ExprGraph {
	return m.g
}

// BatchSize returns the batch size of inputs to the MLP
func (m *MLP) BatchSize() int {
	return m.batch
}

// Features returns the total number of features in a single input
// vector, across all input groups
func (m *MLP) Features() int {
	total := 0
	for _, size := range m.groups {
		total += size
	}
	return total
}

// Groups returns the number of features in each input group
func (m *MLP) Groups() []int {
	return append([]int(nil), m.groups...)
}

// Outputs returns the number of outputs of the MLP
func (m *MLP) Outputs() int {
	return m.outputs
}

// SetInput sets the value of the input nodes before running the
// forward pass. The input is a batch of feature vectors in row major
// order, each feature vector holding its groups contiguously.
func (m *MLP) SetInput(input []float64) error {
	features := m.Features()
	if len(input) != features*m.batch {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", features*m.batch, len(input))
	}

	if len(m.inputs) == 1 {
		return G.Let(m.inputs[0], tensor.New(
			tensor.WithBacking(input),
			tensor.WithShape(m.batch, features),
		))
	}

	offset := 0
	for i, size := range m.groups {
		group := make([]float64, 0, size*m.batch)
		for row := 0; row < m.batch; row++ {
			start := row*features + offset
			group = append(group, input[start:start+size]...)
		}

		err := G.Let(m.inputs[i], tensor.New(
			tensor.WithBacking(group),
			tensor.WithShape(m.batch, size),
		))
		if err != nil {
			return fmt.Errorf("setInput: could not set input group %v: %w",
				i, err)
		}
		offset += size
	}
	return nil
}

// CloneWithBatch returns a copy of the MLP on a new graph, taking
// inputs of the given batch size
func (m *MLP) CloneWithBatch(batch int) (NeuralNet, error) {
	clone, err := newMLP(G.NewGraph(), batch, m.groups, m.encoderSize,
		m.outputs, m.hiddenSizes, m.activations, G.Zeroes())
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %w", err)
	}

	if err := clone.Set(m); err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %w", err)
	}
	return clone, nil
}

// Set sets the weights of the MLP to be equal to the weights of
// another network
func (m *MLP) Set(source NeuralNet) error {
	return m.SetWeights(source.Weights())
}

// Learnables returns the learnable nodes of the MLP
func (m *MLP) Learnables() G.Nodes {
	// Lazy instantiation
	if m.learnables == nil {
		for _, enc := range m.encoders {
			m.learnables = append(m.learnables, enc.learnables()...)
		}
		for _, l := range m.layers {
			m.learnables = append(m.learnables, l.learnables()...)
		}
	}
	return m.learnables
}

// Model returns the learnables nodes with their gradients
func (m *MLP) Model() []G.ValueGrad {
	if m.model == nil {
		for _, node := range m.Learnables() {
			m.model = append(m.model, node)
		}
	}
	return m.model
}

// Prediction returns the output node of the MLP
func (m *MLP) Prediction() *G.Node {
	return m.prediction
}

// Output returns the value of the output node after the graph has been
// run
func (m *MLP) Output() G.Value {
	return m.predVal
}

// Weights returns a copy of the values of each learnable node
func (m *MLP) Weights() [][]float64 {
	learnables := m.Learnables()
	weights := make([][]float64, len(learnables))
	for i, node := range learnables {
		data := node.Value().Data().([]float64)
		weights[i] = append([]float64(nil), data...)
	}
	return weights
}

// SetWeights sets the values of each learnable node. The weights must
// have been produced by an MLP of the same architecture.
func (m *MLP) SetWeights(weights [][]float64) error {
	learnables := m.Learnables()
	if len(weights) != len(learnables) {
		return fmt.Errorf("setWeights: invalid number of weight tensors"+
			"\n\twant(%v)\n\thave(%v)", len(learnables), len(weights))
	}

	for i, node := range learnables {
		if len(weights[i]) != node.Shape().TotalSize() {
			return fmt.Errorf("setWeights: weight tensor %v (%v) has %v "+
				"values, want %v", i, node.Name(), len(weights[i]),
				node.Shape().TotalSize())
		}

		value := tensor.New(
			tensor.WithShape(node.Shape().Clone()...),
			tensor.WithBacking(append([]float64(nil), weights[i]...)),
		)
		if err := G.Let(node, value); err != nil {
			return fmt.Errorf("setWeights: %w", err)
		}
	}
	return nil
}
