package rollout

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/samuelfneumann/racerl/agent/vanillapg"
	"github.com/samuelfneumann/racerl/device"
	"github.com/samuelfneumann/racerl/environment"
	"github.com/samuelfneumann/racerl/environment/envconfig"
	"github.com/samuelfneumann/racerl/environment/wrappers"
	ts "github.com/samuelfneumann/racerl/timestep"
	"gonum.org/v1/gonum/mat"
)

func trackEnv(t *testing.T, cutoff int) *wrappers.Adapter {
	t.Helper()
	c := envconfig.Default(envconfig.CarRacingObstacles)
	c.EpisodeCutoff = cutoff
	env, err := c.Create(5)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

func agentConfig() vanillapg.Config {
	c := vanillapg.Default(1e-3, 0.99, 8)
	c.Hidden = []int{16}
	c.Activations = c.Activations[:1]
	return c
}

// checkpoint returns the saved parameters of a freshly initialised
// agent on env
func checkpoint(t *testing.T, env *wrappers.Adapter) []byte {
	t.Helper()
	a, err := vanillapg.New(env, agentConfig(), 9, device.CPU)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var buf bytes.Buffer
	if err := a.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	return buf.Bytes()
}

// constant always takes the same action in a non-renderable
// environment
type constant struct{ eval bool }

func (c *constant) SelectAction(ts.TimeStep) *mat.VecDense {
	return mat.NewVecDense(1, []float64{0.5})
}
func (c *constant) Eval()        { c.eval = true }
func (c *constant) Train()       { c.eval = false }
func (c *constant) IsEval() bool { return c.eval }

type line struct{ step ts.TimeStep }

func (l *line) Seed(uint64) {}

func (l *line) Reset() (ts.TimeStep, error) {
	l.step = ts.New(ts.First, 0, 1, mat.NewVecDense(1, nil), 0)
	return l.step, nil
}

func (l *line) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	n := l.step.Number + 1
	l.step = ts.New(ts.Mid, a.AtVec(0), 1, mat.NewVecDense(1, nil), n)
	return l.step, false, nil
}

func (l *line) CurrentTimeStep() ts.TimeStep { return l.step }

func (l *line) ObservationSpec() environment.Spec {
	return environment.NewSpec(mat.NewVecDense(1, nil), environment.Observation,
		mat.NewVecDense(1, []float64{-1}), mat.NewVecDense(1, []float64{1}),
		environment.Continuous)
}

func (l *line) ActionSpec() environment.Spec {
	return environment.NewSpec(mat.NewVecDense(1, nil), environment.Action,
		mat.NewVecDense(1, []float64{-1}), mat.NewVecDense(1, []float64{1}),
		environment.Continuous)
}

func (l *line) DiscountSpec() environment.Spec {
	one := mat.NewVecDense(1, []float64{1})
	return environment.NewSpec(one, environment.Discount, one, one,
		environment.Continuous)
}

func (l *line) Close() error { return nil }

func lineEnv(t *testing.T, cutoff int) *wrappers.Adapter {
	t.Helper()
	env, err := wrappers.NewAdapter(&line{}, wrappers.AdapterConfig{
		MaxEpisodeSteps: cutoff,
	})
	if err != nil {
		t.Fatalf("newAdapter: %v", err)
	}
	return env
}

func TestDeterministic(t *testing.T) {
	saved := checkpoint(t, trackEnv(t, 40))

	run := func() Result {
		env := trackEnv(t, 40)
		a, err := vanillapg.Restore(bytes.NewReader(saved), env, device.CPU)
		if err != nil {
			t.Fatalf("restore: %v", err)
		}
		r, err := New(env, a, Config{Seed: 17})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		res, err := r.Run()
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if a.IsEval() {
			t.Error("policy left in evaluation mode")
		}
		return res
	}

	first, second := run(), run()
	if first.Steps == 0 {
		t.Fatal("roll-out took no steps")
	}
	if first.Return != second.Return || first.Steps != second.Steps {
		t.Errorf("roll-outs differ: %v and %v", first, second)
	}
	if !reflect.DeepEqual(first.Actions, second.Actions) {
		t.Error("roll-outs took different actions")
	}
}

func TestRecordFrames(t *testing.T) {
	env := trackEnv(t, 25)
	a, err := vanillapg.New(env, agentConfig(), 2, device.CPU)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	path := filepath.Join(t.TempDir(), "vods", "model.avi")
	displayed := 0
	r, err := New(env, a, Config{
		Seed:      1,
		VideoPath: path,
		FPS:       30,
		Display:   func(image.Image) { displayed++ },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := r.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Frames != res.Steps || displayed != res.Steps {
		t.Errorf("want %v frames, have %v recorded and %v displayed",
			res.Steps, res.Frames, displayed)
	}
	if !res.Terminated && !res.Truncated {
		t.Errorf("episode should have ended: %v", res)
	}
	if res.VideoPath != path {
		t.Errorf("want video %v, have %v", path, res.VideoPath)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("video not written: %v", err)
	}
}

func TestMaxSteps(t *testing.T) {
	r, err := New(lineEnv(t, 0), &constant{}, Config{MaxSteps: 7})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := r.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Steps != 7 || res.Return != 3.5 {
		t.Errorf("want 7 steps with return 3.5, have %v", res)
	}
	if res.Terminated || res.Truncated {
		t.Errorf("bounded roll-out should not report an episode end: %v", res)
	}

	r, err = New(lineEnv(t, 4), &constant{}, Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if res, err = r.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Steps != 4 || !res.Truncated {
		t.Errorf("want truncation after 4 steps, have %v", res)
	}
}

func TestFailFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.avi")
	_, err := New(lineEnv(t, 5), &constant{}, Config{VideoPath: path})
	if !errors.Is(err, environment.ErrNotRenderable) {
		t.Errorf("want ErrNotRenderable, have %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("failed roll-out should not create a video: %v", err)
	}

	if _, err := New(nil, &constant{}, Config{}); err == nil {
		t.Error("nil environment should be rejected")
	}
	if _, err := New(lineEnv(t, 5), nil, Config{}); err == nil {
		t.Error("nil policy should be rejected")
	}
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := New(lineEnv(t, 5), &constant{}, Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := r.RunContext(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, have %v", err)
	}
	if res.Steps != 0 {
		t.Errorf("want no steps, have %v", res.Steps)
	}
}
