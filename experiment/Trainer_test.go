package experiment

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"testing"

	"github.com/samuelfneumann/racerl/environment"
	"github.com/samuelfneumann/racerl/environment/wrappers"
	"github.com/samuelfneumann/racerl/experiment/checkpointer"
	"github.com/samuelfneumann/racerl/experiment/evaluation"
	"github.com/samuelfneumann/racerl/experiment/tracker"
	ts "github.com/samuelfneumann/racerl/timestep"
	"gonum.org/v1/gonum/mat"
)

// chain is an environment whose episodes last length steps, each
// rewarded with 1
type chain struct {
	length int
	step   ts.TimeStep
}

func (c *chain) Seed(uint64) {}

func (c *chain) Reset() (ts.TimeStep, error) {
	c.step = ts.New(ts.First, 0, 1, mat.NewVecDense(1, nil), 0)
	return c.step, nil
}

func (c *chain) Step(*mat.VecDense) (ts.TimeStep, bool, error) {
	n := c.step.Number + 1
	c.step = ts.New(ts.Mid, 1, 1, mat.NewVecDense(1, []float64{float64(n)}), n)
	if n >= c.length {
		c.step.SetEnd(ts.Terminated)
	}
	return c.step, c.step.Last(), nil
}

func (c *chain) CurrentTimeStep() ts.TimeStep { return c.step }

func (c *chain) ObservationSpec() environment.Spec {
	return environment.NewSpec(mat.NewVecDense(1, nil), environment.Observation,
		mat.NewVecDense(1, nil), mat.NewVecDense(1, []float64{100}),
		environment.Continuous)
}

func (c *chain) ActionSpec() environment.Spec {
	return environment.NewSpec(mat.NewVecDense(1, nil), environment.Action,
		mat.NewVecDense(1, []float64{-1}), mat.NewVecDense(1, []float64{1}),
		environment.Continuous)
}

func (c *chain) DiscountSpec() environment.Spec {
	one := mat.NewVecDense(1, []float64{1})
	return environment.NewSpec(one, environment.Discount, one, one,
		environment.Continuous)
}

func (c *chain) Close() error { return nil }

// fakeAgent counts the calls made to it
type fakeAgent struct {
	eval      bool
	failSave  bool
	firsts    int
	observed  int
	updates   int
	episodes  int
	evalSteps int
}

func (f *fakeAgent) SelectAction(ts.TimeStep) *mat.VecDense {
	if f.eval {
		f.evalSteps++
	}
	return mat.NewVecDense(1, nil)
}

func (f *fakeAgent) ObserveFirst(ts.TimeStep) error {
	f.firsts++
	return nil
}

func (f *fakeAgent) Observe(mat.Vector, ts.TimeStep) error {
	f.observed++
	return nil
}

func (f *fakeAgent) Step() error {
	f.updates++
	return nil
}

func (f *fakeAgent) EndEpisode()  { f.episodes++ }
func (f *fakeAgent) Eval()        { f.eval = true }
func (f *fakeAgent) Train()       { f.eval = false }
func (f *fakeAgent) IsEval() bool { return f.eval }

func (f *fakeAgent) Save(w io.Writer) error {
	if f.failSave {
		return errors.New("disk full")
	}
	_, err := w.Write([]byte("agent"))
	return err
}

func (f *fakeAgent) Load(io.Reader) error { return nil }

func newChain(t *testing.T, length int) *wrappers.Adapter {
	t.Helper()
	a, err := wrappers.NewAdapter(&chain{length: length}, wrappers.AdapterConfig{})
	if err != nil {
		t.Fatalf("newAdapter: %v", err)
	}
	return a
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestTrainerSchedules(t *testing.T) {
	dir := t.TempDir()
	evaluator, err := evaluation.NewScheduler(newChain(t, 5),
		evaluation.Config{Frequency: 10000, Episodes: 2}, nil, nil)
	if err != nil {
		t.Fatalf("newScheduler: %v", err)
	}
	evaluator.SetLogger(quietLogger())
	checkpoints, err := checkpointer.NewManager(dir, 10000)
	if err != nil {
		t.Fatalf("newManager: %v", err)
	}
	returns := tracker.NewReturn(dir + "/returns.bin")

	a := &fakeAgent{}
	trainer, err := NewTrainer(newChain(t, 7), a, TrainerConfig{MaxSteps: 25000},
		WithEvaluator(evaluator), WithCheckpointer(checkpoints),
		WithTrackers(returns), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("newTrainer: %v", err)
	}
	if err := trainer.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if trainer.Steps() != 25000 || a.observed != 25000 || a.updates != 25000 {
		t.Errorf("want 25000 steps, have %v steps %v observations %v updates",
			trainer.Steps(), a.observed, a.updates)
	}

	records := evaluator.Records()
	if len(records) != 2 || records[0].Step != 10000 || records[1].Step != 20000 {
		t.Errorf("want evaluations at steps 10000 and 20000, have %v", records)
	}
	if a.evalSteps != 2*2*5 {
		t.Errorf("want %v evaluation steps, have %v", 2*2*5, a.evalSteps)
	}
	if a.IsEval() {
		t.Error("agent left in evaluation mode")
	}

	steps, err := checkpointer.Checkpoints(dir)
	if err != nil {
		t.Fatalf("checkpoints: %v", err)
	}
	if !reflect.DeepEqual(steps, []int{10000, 20000}) {
		t.Errorf("want checkpoints [10000 20000], have %v", steps)
	}

	if len(returns.Returns()) != 25000/7 || a.episodes != 25000/7 {
		t.Errorf("want %v finished episodes, have %v returns and %v episodes",
			25000/7, len(returns.Returns()), a.episodes)
	}
	if a.firsts != 25000/7+1 {
		t.Errorf("want %v episodes started, have %v", 25000/7+1, a.firsts)
	}
}

func TestTrainerContinuesAfterSaveFailure(t *testing.T) {
	checkpoints, err := checkpointer.NewManager(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("newManager: %v", err)
	}

	a := &fakeAgent{failSave: true}
	trainer, err := NewTrainer(newChain(t, 4), a, TrainerConfig{MaxSteps: 50},
		WithCheckpointer(checkpoints), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("newTrainer: %v", err)
	}
	if err := trainer.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if trainer.Steps() != 50 {
		t.Errorf("want 50 steps, have %v", trainer.Steps())
	}
}

func TestTrainerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trainer, err := NewTrainer(newChain(t, 4), &fakeAgent{},
		TrainerConfig{MaxSteps: 50}, WithContext(ctx))
	if err != nil {
		t.Fatalf("newTrainer: %v", err)
	}
	if err := trainer.Run(); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, have %v", err)
	}
	if trainer.Steps() != 0 {
		t.Errorf("want no steps after cancellation, have %v", trainer.Steps())
	}
}

func TestNewTrainerInvalid(t *testing.T) {
	if _, err := NewTrainer(newChain(t, 4), &fakeAgent{},
		TrainerConfig{}); err == nil {
		t.Error("zero maximum steps should be rejected")
	}
	if _, err := NewTrainer(nil, &fakeAgent{},
		TrainerConfig{MaxSteps: 1}); err == nil {
		t.Error("nil environment should be rejected")
	}
}
