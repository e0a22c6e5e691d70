// Package vanillapg implements the Vanilla Policy Gradient algorithm
// with generalized advantage estimation (GAE) and a Gaussian policy
// with fixed standard deviation.
//
// Adapted from https://spinningup.openai.com/en/latest/algorithms/vpg.html
package vanillapg

import (
	"fmt"
	"log"
	"os"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/device"
	"github.com/samuelfneumann/racerl/network"
	ts "github.com/samuelfneumann/racerl/timestep"
	"github.com/samuelfneumann/racerl/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var logger = log.New(os.Stderr, "vanillapg: ", log.LstdFlags)

// VPG implements the Vanilla Policy Gradient algorithm.
//
// The policy and the state value function each exist twice: a
// behaviour copy with a batch size of 1 which acts in the environment,
// and a training copy with a batch size of Config.BatchSize which is
// updated. After each update the training weights are copied into the
// behaviour networks.
//
// Unlike many implementations, a batch may end part way through an
// episode. The partial path is bootstrapped with the value of its last
// observation and the next batch starts at the following step.
type VPG struct {
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

	noise    distuv.Normal
	buffer   *gaeBuffer
	prevStep ts.TimeStep
	steps    int
	updates  int
	eval     bool
}

// New creates and returns a new VPG agent acting in env. The device is
// recorded with the agent; computational graphs are always executed by
// Gorgonia's tape machine on the host.
func New(env agent.Env, c Config, seed uint64, dev device.Device) (*VPG,
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

	v := &VPG{
		config: c,
		device: dev,
		lower:  make([]float64, actionDims),
		upper:  make([]float64, actionDims),
		noise: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(seed),
		},
		buffer: newGAEBuffer(features, actionDims, c.BatchSize, c.Lambda,
			c.Gamma),
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
// training loss is the negative Gaussian log-likelihood of the batch
// actions weighted by the advantages, up to a constant.
func (v *VPG) buildPolicy(env agent.Env, actionDims int) error {
	policy, err := newNet(env, v.config, v.config.BatchSize, actionDims)
	if err != nil {
		return fmt.Errorf("buildPolicy: %w", err)
	}
	g := policy.Graph()

	v.actions = G.NewMatrix(g, tensor.Float64,
		G.WithShape(v.config.BatchSize, actionDims), G.WithName("actions"),
		G.WithInit(G.Zeroes()))
	v.advantages = G.NewVector(g, tensor.Float64,
		G.WithShape(v.config.BatchSize), G.WithName("advantages"),
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

// buildValueFn creates the training and prediction state value
// networks, trained by regression on the returns-to-go
func (v *VPG) buildValueFn(env agent.Env) error {
	trainValue, err := newNet(env, v.config, v.config.BatchSize, 1)
	if err != nil {
		return fmt.Errorf("buildValueFn: %w", err)
	}
	g := trainValue.Graph()

	v.targets = G.NewMatrix(g, tensor.Float64,
		G.WithShape(v.config.BatchSize, 1), G.WithName("targets"),
		G.WithInit(G.Zeroes()))

	loss := G.Must(G.Sub(trainValue.Prediction(), v.targets))
	loss = G.Must(G.Square(loss))
	loss = G.Must(G.Mean(loss))

	if _, err := G.Grad(loss, trainValue.Learnables()...); err != nil {
		return fmt.Errorf("buildValueFn: could not compute gradient: %w", err)
	}

	value, err := trainValue.CloneWithBatch(1)
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

// predict runs the forward pass of a batch 1 network
func predict(net network.NeuralNet, vm G.VM, obs []float64) ([]float64,
	error) {
	defer vm.Reset()
	if err := net.SetInput(obs); err != nil {
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
func (v *VPG) SelectAction(t ts.TimeStep) *mat.VecDense {
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

// stateValue returns the value estimate of an observation
func (v *VPG) stateValue(obs *mat.VecDense) (float64, error) {
	val, err := predict(v.value, v.valueVM, obs.RawVector().Data)
	if err != nil {
		return 0, fmt.Errorf("stateValue: %w", err)
	}
	if len(val) != 1 {
		return 0, fmt.Errorf("stateValue: multiple values predicted")
	}
	return val[0], nil
}

// ObserveFirst observes and records information about the first
// timestep in an episode.
func (v *VPG) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observeFirst: timestep %v is not the first in "+
			"its episode", t.Number)
	}
	v.prevStep = t
	return nil
}

// Observe records the transition from the previously observed timestep
// to nextStep by taking action. Nothing is recorded in evaluation mode.
func (v *VPG) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if v.eval {
		return nil
	}
	prev := v.prevStep
	v.prevStep = nextStep

	v.steps++
	if v.steps <= v.config.LearningStarts {
		return nil
	}
	if prev.Observation == nil {
		return fmt.Errorf("observe: no previous timestep, call " +
			"ObserveFirst at the start of each episode")
	}

	val, err := v.stateValue(prev.Observation)
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}
	act := make([]float64, action.Len())
	for i := range act {
		act[i] = action.AtVec(i)
	}
	err = v.buffer.store(prev.Observation.RawVector().Data, act,
		nextStep.Reward, val)
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}

	if nextStep.Last() || v.buffer.full() {
		lastVal := 0.0
		if !nextStep.Terminated() {
			if lastVal, err = v.stateValue(nextStep.Observation); err != nil {
				return fmt.Errorf("observe: %w", err)
			}
		}
		v.buffer.finishPath(lastVal)
	}
	return nil
}

// Step updates the agent once a full batch has been collected. If the
// agent is in evaluation mode, then this function simply returns.
func (v *VPG) Step() error {
	if v.eval || !v.buffer.full() {
		return nil
	}

	obs, act, adv, ret, err := v.buffer.get()
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}

	// Scale the advantages by the Gaussian log-likelihood constant
	scale := 1 / (2 * v.config.StdDev * v.config.StdDev)
	for i := range adv {
		adv[i] *= scale
	}

	batch := v.config.BatchSize
	for i := 0; i < v.config.GradientSteps; i++ {
		if err := v.policy.SetInput(obs); err != nil {
			return fmt.Errorf("step: %w", err)
		}
		actions := tensor.New(
			tensor.WithShape(batch, len(act)/batch),
			tensor.WithBacking(act),
		)
		if err := G.Let(v.actions, actions); err != nil {
			return fmt.Errorf("step: %w", err)
		}
		if err := G.Let(v.advantages, tensor.New(
			tensor.WithShape(batch),
			tensor.WithBacking(adv),
		)); err != nil {
			return fmt.Errorf("step: %w", err)
		}
		if err := v.policyVM.RunAll(); err != nil {
			return fmt.Errorf("step: policy update: %w", err)
		}
		if err := v.policySolver.Step(v.policy.Model()); err != nil {
			return fmt.Errorf("step: policy update: %w", err)
		}
		v.policyVM.Reset()
	}

	for i := 0; i < v.config.GradientSteps; i++ {
		if err := v.trainValue.SetInput(obs); err != nil {
			return fmt.Errorf("step: %w", err)
		}
		if err := G.Let(v.targets, tensor.New(
			tensor.WithShape(batch, 1),
			tensor.WithBacking(ret),
		)); err != nil {
			return fmt.Errorf("step: %w", err)
		}
		if err := v.trainValueVM.RunAll(); err != nil {
			return fmt.Errorf("step: value update: %w", err)
		}
		if err := v.valueSolver.Step(v.trainValue.Model()); err != nil {
			return fmt.Errorf("step: value update: %w", err)
		}
		v.trainValueVM.Reset()
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

// EndEpisode performs cleanup at the end of an episode.
func (v *VPG) EndEpisode() {
	v.prevStep = ts.TimeStep{}
}

// Eval sets the algorithm into evaluation mode
func (v *VPG) Eval() { v.eval = true }

// Train sets the algorithm into training mode
func (v *VPG) Train() { v.eval = false }

// IsEval returns whether the algorithm is in evaluation mode
func (v *VPG) IsEval() bool { return v.eval }

// Updates returns the number of policy updates performed
func (v *VPG) Updates() int { return v.updates }

// Device returns the device the agent was created for
func (v *VPG) Device() device.Device { return v.device }

// Config returns the configuration of the agent
func (v *VPG) Config() Config { return v.config }
