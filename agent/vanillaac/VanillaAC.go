// Package vanillaac implements a vanilla actor-critic algorithm with a
// Gaussian policy of fixed standard deviation, trained off-line from an
// experience replay buffer.
//
// The critic learns state values by regression on one step TD targets
// r + γV(s'), and the actor follows the policy gradient weighted by
// the TD error of each sampled transition.
package vanillaac

import (
	"fmt"
	"log"
	"os"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/device"
	"github.com/samuelfneumann/racerl/expreplay"
	"github.com/samuelfneumann/racerl/network"
	ts "github.com/samuelfneumann/racerl/timestep"
	"github.com/samuelfneumann/racerl/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var logger = log.New(os.Stderr, "vanillaac: ", log.LstdFlags)

// VAC implements the vanilla actor-critic algorithm.
//
// The policy exists twice: a behaviour copy with a batch size of 1
// which acts in the environment and a training copy which takes
// batches from the replay buffer. The critic likewise has a training
// copy and a prediction copy of the same batch size, which evaluates
// TD targets without touching the training graph's gradients.
type VAC struct {
	config Config
	device device.Device

	lower, upper []float64 // Action bounds

	// Policy
	behaviour    network.NeuralNet
	behaviourVM  G.VM
	policy       network.NeuralNet
	policyVM     G.VM
	policySolver G.Solver
	actions      *G.Node
	advantages   *G.Node

	// State value critic
	value        network.NeuralNet
	valueVM      G.VM
	trainValue   network.NeuralNet
	trainValueVM G.VM
	valueSolver  G.Solver
	targets      *G.Node

	replay    expreplay.ExperienceReplayer
	noise     distuv.Normal
	prevStep  ts.TimeStep
	steps     int
	updatedAt int
	updates   int
	eval      bool
}

// New creates and returns a new actor-critic agent acting in env.
// Graphs are executed by Gorgonia's tape machine on the host whatever
// the device.
func New(env agent.Env, c Config, seed uint64, dev device.Device) (*VAC,
	error) {
	if env == nil {
		return nil, fmt.Errorf("new: nil environment")
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	if dev.Accelerated() {
		logger.Printf("device %v requested, graphs execute on the host", dev)
	}

	actionSpec := env.ActionSpec()
	actionDims := actionSpec.Shape.Len()
	features := env.ObservationSpec().Shape.Len()

	replay, err := c.ExpReplay.Create(features, actionDims, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not construct experience "+
			"replay buffer: %w", err)
	}

	v := &VAC{
		config: c,
		device: dev,
		lower:  make([]float64, actionDims),
		upper:  make([]float64, actionDims),
		noise: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(seed),
		},
		replay:    replay,
		updatedAt: -1,
	}
	for i := 0; i < actionDims; i++ {
		v.lower[i] = actionSpec.LowerBound.AtVec(i)
		v.upper[i] = actionSpec.UpperBound.AtVec(i)
	}

	if err := v.buildPolicy(env, actionDims); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	if err := v.buildValueFn(env); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return v, nil
}

// newNet creates a network of the architecture family required by env
func newNet(env agent.Env, c Config, batch, outputs int) (network.NeuralNet,
	error) {
	init, err := c.InitWFn.Create()
	if err != nil {
		return nil, err
	}

	obsSpec := env.ObservationSpec()
	switch env.Architecture() {
	case agent.MLP:
		return network.NewMLP(G.NewGraph(), batch, obsSpec.Shape.Len(),
			outputs, c.Hidden, c.Activations, init)

	case agent.MultiInputMLP:
		groups := make([]int, len(obsSpec.Components))
		for i, component := range obsSpec.Components {
			groups[i] = component.Size
		}
		return network.NewMultiInputMLP(G.NewGraph(), batch, groups,
			c.EncoderSize, outputs, c.Hidden, c.Activations, init)
	}
	return nil, fmt.Errorf("newNet: unsupported architecture %q",
		env.Architecture())
}

// buildPolicy creates the training and behaviour policy networks. The
// loss is the Gaussian negative log-likelihood of the batch actions,
// up to a constant, weighted by the TD errors.
func (v *VAC) buildPolicy(env agent.Env, actionDims int) error {
	batch := v.config.BatchSize()
	policy, err := newNet(env, v.config, batch, actionDims)
	if err != nil {
		return fmt.Errorf("buildPolicy: %w", err)
	}
	g := policy.Graph()

	v.actions = G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, actionDims), G.WithName("actions"),
		G.WithInit(G.Zeroes()))
	v.advantages = G.NewVector(g, tensor.Float64,
		G.WithShape(batch), G.WithName("advantages"),
		G.WithInit(G.Zeroes()))

	loss := G.Must(G.Sub(v.actions, policy.Prediction()))
	loss = G.Must(G.Square(loss))
	loss = G.Must(G.Sum(loss, 1))
	loss = G.Must(G.HadamardProd(loss, v.advantages))
	loss = G.Must(G.Mean(loss))

	if _, err := G.Grad(loss, policy.Learnables()...); err != nil {
		return fmt.Errorf("buildPolicy: could not compute gradient: %w", err)
	}

	behaviour, err := policy.CloneWithBatch(1)
	if err != nil {
		return fmt.Errorf("buildPolicy: %w", err)
	}
	v.policySolver, err = v.config.PolicySolver.Create()
	if err != nil {
		return fmt.Errorf("buildPolicy: %w", err)
	}

	v.policy = policy
	v.policyVM = G.NewTapeMachine(g, G.BindDualValues(policy.Learnables()...))
	v.behaviour = behaviour
	v.behaviourVM = G.NewTapeMachine(behaviour.Graph())
	return nil
}

// buildValueFn creates the training and prediction critics
func (v *VAC) buildValueFn(env agent.Env) error {
	batch := v.config.BatchSize()
	trainValue, err := newNet(env, v.config, batch, 1)
	if err != nil {
		return fmt.Errorf("buildValueFn: %w", err)
	}
	g := trainValue.Graph()

	v.targets = G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, 1), G.WithName("targets"),
		G.WithInit(G.Zeroes()))

	loss := G.Must(G.Sub(trainValue.Prediction(), v.targets))
	loss = G.Must(G.Square(loss))
	loss = G.Must(G.Mean(loss))

	if _, err := G.Grad(loss, trainValue.Learnables()...); err != nil {
		return fmt.Errorf("buildValueFn: could not compute gradient: %w", err)
	}

	value, err := trainValue.CloneWithBatch(batch)
	if err != nil {
		return fmt.Errorf("buildValueFn: %w", err)
	}
	v.valueSolver, err = v.config.ValueSolver.Create()
	if err != nil {
		return fmt.Errorf("buildValueFn: %w", err)
	}

	v.trainValue = trainValue
	v.trainValueVM = G.NewTapeMachine(g,
		G.BindDualValues(trainValue.Learnables()...))
	v.value = value
	v.valueVM = G.NewTapeMachine(value.Graph())
	return nil
}

// predict runs the forward pass of a network without gradients
func predict(net network.NeuralNet, vm G.VM, input []float64) ([]float64,
	error) {
	defer vm.Reset()
	if err := net.SetInput(input); err != nil {
		return nil, err
	}
	if err := vm.RunAll(); err != nil {
		return nil, err
	}
	return append([]float64(nil), net.Output().Data().([]float64)...), nil
}

// SelectAction returns an action at the given timestep. In evaluation
// mode the action is the policy mean clipped to the action bounds. In
// training mode Gaussian noise is added to the mean.
func (v *VAC) SelectAction(t ts.TimeStep) *mat.VecDense {
	mean, err := predict(v.behaviour, v.behaviourVM,
		t.Observation.RawVector().Data)
	if err != nil {
		panic(fmt.Sprintf("selectAction: %v", err))
	}

	for i := range mean {
		if v.eval {
			mean[i] = floatutils.Clip(mean[i], v.lower[i], v.upper[i])
		} else {
			mean[i] += v.config.StdDev * v.noise.Rand()
		}
	}
	return mat.NewVecDense(len(mean), mean)
}

// ObserveFirst observes and records information about the first
// timestep in an episode.
func (v *VAC) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observeFirst: timestep %v is not the first in "+
			"its episode", t.Number)
	}
	v.prevStep = t
	return nil
}

// Observe adds the transition from the previously observed timestep to
// nextStep by taking action to the replay buffer. Nothing is recorded
// in evaluation mode.
func (v *VAC) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if v.eval {
		return nil
	}
	prev := v.prevStep
	v.prevStep = nextStep
	if prev.Observation == nil {
		return fmt.Errorf("observe: no previous timestep, call " +
			"ObserveFirst at the start of each episode")
	}

	act := mat.VecDenseCopyOf(action)
	if err := v.replay.Add(ts.NewTransition(prev, act, nextStep)); err != nil {
		return fmt.Errorf("observe: could not add to replay buffer: %w", err)
	}
	v.steps++
	return nil
}

// due returns whether an update should be made at the current step
func (v *VAC) due() bool {
	return v.steps > v.config.LearningStarts &&
		v.steps%v.config.TrainFrequency == 0 &&
		v.steps != v.updatedAt
}

// Step updates the agent with a batch sampled from the replay buffer
// once every TrainFrequency observed transitions. Nothing happens in
// evaluation mode or while the buffer holds too few transitions.
func (v *VAC) Step() error {
	if v.eval || !v.due() {
		return nil
	}

	b, err := v.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	v.updatedAt = v.steps

	stateValue, err := predict(v.value, v.valueVM, b.State)
	if err != nil {
		return fmt.Errorf("step: state values: %w", err)
	}
	nextValue, err := predict(v.value, v.valueVM, b.NextState)
	if err != nil {
		return fmt.Errorf("step: next state values: %w", err)
	}

	// TD targets and errors, with the advantages scaled by the Gaussian
	// log-likelihood constant
	scale := 1 / (2 * v.config.StdDev * v.config.StdDev)
	targets := make([]float64, b.Size())
	advantages := make([]float64, b.Size())
	for i := range targets {
		targets[i] = b.Reward[i] + v.config.Gamma*b.Discount[i]*nextValue[i]
		advantages[i] = scale * (targets[i] - stateValue[i])
	}

	if err := v.updatePolicy(b, advantages); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	if err := v.updateValueFn(b, targets); err != nil {
		return fmt.Errorf("step: %w", err)
	}

	// Update behaviour policy and prediction value function
	if err := v.behaviour.Set(v.policy); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	if err := v.value.Set(v.trainValue); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	v.updates++
	return nil
}

func (v *VAC) updatePolicy(b expreplay.Batch, advantages []float64) error {
	defer v.policyVM.Reset()

	if err := v.policy.SetInput(b.State); err != nil {
		return fmt.Errorf("updatePolicy: %w", err)
	}
	actions := tensor.New(
		tensor.WithShape(b.Size(), len(b.Action)/b.Size()),
		tensor.WithBacking(b.Action),
	)
	if err := G.Let(v.actions, actions); err != nil {
		return fmt.Errorf("updatePolicy: %w", err)
	}
	if err := G.Let(v.advantages, tensor.New(
		tensor.WithShape(b.Size()),
		tensor.WithBacking(advantages),
	)); err != nil {
		return fmt.Errorf("updatePolicy: %w", err)
	}
	if err := v.policyVM.RunAll(); err != nil {
		return fmt.Errorf("updatePolicy: %w", err)
	}
	if err := v.policySolver.Step(v.policy.Model()); err != nil {
		return fmt.Errorf("updatePolicy: %w", err)
	}
	return nil
}

func (v *VAC) updateValueFn(b expreplay.Batch, targets []float64) error {
	for i := 0; i < v.config.GradientSteps; i++ {
		if err := v.trainValue.SetInput(b.State); err != nil {
			return fmt.Errorf("updateValueFn: %w", err)
		}
		if err := G.Let(v.targets, tensor.New(
			tensor.WithShape(b.Size(), 1),
			tensor.WithBacking(targets),
		)); err != nil {
			return fmt.Errorf("updateValueFn: %w", err)
		}
		if err := v.trainValueVM.RunAll(); err != nil {
			return fmt.Errorf("updateValueFn: %w", err)
		}
		if err := v.valueSolver.Step(v.trainValue.Model()); err != nil {
			return fmt.Errorf("updateValueFn: %w", err)
		}
		v.trainValueVM.Reset()
	}
	return nil
}

// EndEpisode performs cleanup at the end of an episode.
func (v *VAC) EndEpisode() {
	v.prevStep = ts.TimeStep{}
}

// Eval sets the algorithm into evaluation mode
func (v *VAC) Eval() { v.eval = true }

// Train sets the algorithm into training mode
func (v *VAC) Train() { v.eval = false }

// IsEval returns whether the algorithm is in evaluation mode
func (v *VAC) IsEval() bool { return v.eval }

// Updates returns the number of updates performed
func (v *VAC) Updates() int { return v.updates }

// Device returns the device the agent was created for
func (v *VAC) Device() device.Device { return v.device }

// Config returns the configuration of the agent
func (v *VAC) Config() Config { return v.config }
