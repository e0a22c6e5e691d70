package vanillaac

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/device"
	"github.com/samuelfneumann/racerl/environment"
	ts "github.com/samuelfneumann/racerl/timestep"
	"gonum.org/v1/gonum/mat"
)

// fakeEnv describes a 4 dimensional observation space, optionally
// split into two components, and a 2 dimensional action space in
// [-1, 1].
type fakeEnv struct {
	structured bool
}

func (f fakeEnv) ObservationSpec() environment.Spec {
	low := mat.NewVecDense(4, []float64{-1, -1, -1, -1})
	high := mat.NewVecDense(4, []float64{1, 1, 1, 1})
	if f.structured {
		return environment.NewStructuredSpec([]environment.Component{
			{Name: "vehicle", Size: 3},
			{Name: "lidar", Size: 1},
		}, low, high)
	}
	return environment.NewSpec(mat.NewVecDense(4, nil),
		environment.Observation, low, high, environment.Continuous)
}

func (f fakeEnv) ActionSpec() environment.Spec {
	return environment.NewSpec(mat.NewVecDense(2, nil), environment.Action,
		mat.NewVecDense(2, []float64{-1, -1}),
		mat.NewVecDense(2, []float64{1, 1}), environment.Continuous)
}

func (f fakeEnv) Architecture() agent.Architecture {
	if f.structured {
		return agent.MultiInputMLP
	}
	return agent.MLP
}

func testConfig() Config {
	c := Default(1e-2, 0.99, 4, 16)
	c.Hidden = []int{16}
	c.Activations = c.Activations[:1]
	c.EncoderSize = 4
	c.LearningStarts = 0
	return c
}

func newAgent(t *testing.T, env agent.Env, c Config, seed uint64) *VAC {
	t.Helper()
	v, err := New(env, c, seed, device.CPU)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return v
}

func observation(i int) *mat.VecDense {
	x := float64(i)
	return mat.NewVecDense(4, []float64{
		math.Sin(x), math.Cos(x), 0.1 * x, -0.05 * x,
	})
}

// runSteps feeds the agent n steps of an episode which terminates on
// every third step
func runSteps(t *testing.T, v *VAC, n int) {
	t.Helper()
	step := ts.New(ts.First, 0, 1, observation(0), 0)
	if err := v.ObserveFirst(step); err != nil {
		t.Fatalf("observeFirst: %v", err)
	}
	for i := 0; i < n; i++ {
		action := v.SelectAction(step)
		next := ts.New(ts.Mid, float64(i%3), 1, observation(i+1), step.Number+1)
		if i%3 == 2 {
			next.SetEnd(ts.Terminated)
		}
		if err := v.Observe(action, next); err != nil {
			t.Fatalf("observe: %v", err)
		}
		if err := v.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}

		step = next
		if step.Last() {
			v.EndEpisode()
			step = ts.New(ts.First, 0, 1, observation(i+1), 0)
			if err := v.ObserveFirst(step); err != nil {
				t.Fatalf("observeFirst: %v", err)
			}
		}
	}
}

func TestEvalDeterministic(t *testing.T) {
	for _, env := range []fakeEnv{{false}, {true}} {
		v := newAgent(t, env, testConfig(), 1)
		v.Eval()
		step := ts.New(ts.First, 0, 1, observation(3), 0)

		first := v.SelectAction(step)
		if !mat.Equal(first, v.SelectAction(step)) {
			t.Errorf("structured=%v: evaluation actions differ", env.structured)
		}
		for i := 0; i < first.Len(); i++ {
			if a := first.AtVec(i); a < -1 || a > 1 {
				t.Errorf("evaluation action %v outside bounds", a)
			}
		}
	}
}

func TestTrainFrequency(t *testing.T) {
	c := testConfig()
	c.TrainFrequency = 2
	v := newAgent(t, fakeEnv{}, c, 2)
	v.Eval()
	step := ts.New(ts.First, 0, 1, observation(0), 0)
	before := v.SelectAction(step)
	v.Train()

	// The buffer holds fewer than a batch of transitions at step 2
	runSteps(t, v, 3)
	if v.Updates() != 0 {
		t.Fatalf("updated before a batch was stored")
	}
	runSteps(t, v, 3)
	if v.Updates() != 2 {
		t.Fatalf("want updates at steps 4 and 6, have %v", v.Updates())
	}
	if err := v.Step(); err != nil || v.Updates() != 2 {
		t.Errorf("a step should be updated at most once: err=%v updates=%v",
			err, v.Updates())
	}

	v.Eval()
	if mat.Equal(before, v.SelectAction(step)) {
		t.Error("update did not change the policy")
	}
}

func TestLearningStarts(t *testing.T) {
	c := testConfig()
	c.LearningStarts = 10
	v := newAgent(t, fakeEnv{}, c, 1)

	runSteps(t, v, 10)
	if v.Updates() != 0 {
		t.Errorf("want no updates in the first %v steps", c.LearningStarts)
	}
	if v.replay.Capacity() != 10 {
		t.Errorf("transitions should be stored before learning starts, "+
			"have %v", v.replay.Capacity())
	}
	runSteps(t, v, 1)
	if v.Updates() != 1 {
		t.Errorf("want 1 update, have %v", v.Updates())
	}
}

func TestBufferSize(t *testing.T) {
	v := newAgent(t, fakeEnv{}, testConfig(), 1)
	runSteps(t, v, 40)
	if have := v.replay.Capacity(); have != 16 {
		t.Errorf("want the buffer capped at 16 transitions, have %v", have)
	}
}

func TestEvalStoresNothing(t *testing.T) {
	v := newAgent(t, fakeEnv{}, testConfig(), 1)
	v.Eval()
	runSteps(t, v, 8)
	if v.replay.Capacity() != 0 || v.Updates() != 0 {
		t.Errorf("evaluation stored %v transitions and made %v updates",
			v.replay.Capacity(), v.Updates())
	}
}

func TestSaveRestore(t *testing.T) {
	for _, env := range []fakeEnv{{false}, {true}} {
		trained := newAgent(t, env, testConfig(), 3)
		runSteps(t, trained, 8)

		var buf bytes.Buffer
		if err := trained.Save(&buf); err != nil {
			t.Fatalf("save: %v", err)
		}
		data := buf.Bytes()

		loaded := newAgent(t, env, testConfig(), 4)
		if err := loaded.Load(bytes.NewReader(data)); err != nil {
			t.Fatalf("load: %v", err)
		}
		restored, err := agent.Restore(bytes.NewReader(data), env, device.CPU)
		if err != nil {
			t.Fatalf("restore: %v", err)
		}
		if _, ok := restored.(*VAC); !ok {
			t.Fatalf("want *VAC, have %T", restored)
		}

		trained.Eval()
		loaded.Eval()
		restored.Eval()
		for i := 0; i < 5; i++ {
			step := ts.New(ts.First, 0, 1, observation(i), 0)
			want := trained.SelectAction(step)
			if have := loaded.SelectAction(step); !mat.Equal(want, have) {
				t.Errorf("loaded action: want(%v) have(%v)",
					want.RawVector().Data, have.RawVector().Data)
			}
			if have := restored.SelectAction(step); !mat.Equal(want, have) {
				t.Errorf("restored action: want(%v) have(%v)",
					want.RawVector().Data, have.RawVector().Data)
			}
		}
	}
}

func TestRestoreCorrupt(t *testing.T) {
	_, err := agent.Restore(bytes.NewReader([]byte("not a model")), fakeEnv{},
		device.CPU)
	if err == nil {
		t.Error("restoring corrupt data should fail")
	}
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"activations", func(c *Config) { c.Activations = nil }},
		{"std dev", func(c *Config) { c.StdDev = 0 }},
		{"gamma", func(c *Config) { c.Gamma = -0.1 }},
		{"batch", func(c *Config) { c.ExpReplay.SampleSize = 0 }},
		{"buffer", func(c *Config) { c.ExpReplay.MaxReplayCapacity = 2 }},
		{"train frequency", func(c *Config) { c.TrainFrequency = 0 }},
		{"gradient steps", func(c *Config) { c.GradientSteps = 0 }},
		{"solver", func(c *Config) { c.ValueSolver.StepSize = 0 }},
	}

	if err := testConfig().Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := testConfig()
			test.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestTypedConfig(t *testing.T) {
	data, err := json.Marshal(agent.NewTypedConfig(testConfig()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var typed agent.TypedConfig
	if err := json.Unmarshal(data, &typed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	c, ok := typed.Config.(Config)
	if !ok {
		t.Fatalf("want Config, have %T", typed.Config)
	}
	if c.BatchSize() != 4 || c.ExpReplay.MaxReplayCapacity != 16 {
		t.Errorf("replay config changed: %+v", c.ExpReplay)
	}

	a, err := typed.CreateAgent(fakeEnv{}, 1, device.CPU)
	if err != nil {
		t.Fatalf("createAgent: %v", err)
	}
	if _, ok := a.(*VAC); !ok {
		t.Errorf("want *VAC, have %T", a)
	}
}
