package experiment

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/agent/vanillaac"
	"github.com/samuelfneumann/racerl/agent/vanillapg"
	"github.com/samuelfneumann/racerl/device"
	"github.com/samuelfneumann/racerl/environment/envconfig"
	"github.com/samuelfneumann/racerl/experiment/checkpointer"
	"github.com/samuelfneumann/racerl/experiment/evaluation"
	"github.com/samuelfneumann/racerl/experiment/tracker"
	"github.com/samuelfneumann/racerl/network"
)

var started = time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)

func smallConfig() Config {
	a := vanillapg.Default(1e-3, 0.99, 8)
	a.Hidden = []int{8}
	a.Activations = []*network.Activation{network.ReLU()}
	a.EncoderSize = 4
	a.LearningStarts = 0

	e := envconfig.Default(envconfig.CarRacingObstacles)
	e.EpisodeCutoff = 20

	return Config{
		MaxSteps:      40,
		Seed:          3,
		EvalFrequency: 20,
		EvalEpisodes:  1,
		SaveFrequency: 20,
		EnvConf:       e,
		AgentConf:     agent.NewTypedConfig(a),
	}
}

func runOnce(t *testing.T, c Config, o RunOptions) *Run {
	t.Helper()
	o.Logger = quietLogger()
	r, err := Setup(c, o)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := r.Trainer.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return r
}

func TestSetupActorCritic(t *testing.T) {
	a := vanillaac.Default(1e-3, 0.99, 4, 32)
	a.Hidden = []int{8}
	a.Activations = []*network.Activation{network.ReLU()}
	a.EncoderSize = 4
	a.LearningStarts = 0
	a.TrainFrequency = 2

	c := smallConfig()
	c.AgentConf = agent.NewTypedConfig(a)
	r := runOnce(t, c, RunOptions{
		Root:   t.TempDir(),
		Name:   "ac",
		Date:   started,
		Device: device.CPU,
	})

	vac, ok := r.Agent.(*vanillaac.VAC)
	if !ok {
		t.Fatalf("want *vanillaac.VAC, have %T", r.Agent)
	}
	if vac.Updates() == 0 {
		t.Error("agent never updated from its replay buffer")
	}

	f, err := checkpointer.Open(r.Dir, 40)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	restored, err := agent.Restore(f, r.env, device.CPU)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := restored.(*vanillaac.VAC); !ok {
		t.Errorf("checkpoint restored as %T", restored)
	}
}

func TestRunDir(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"CarRacing-obstaclesV2", "CarRacing-obstaclesV2_0307_baseline"},
		{"gym:Pendulum-v0", "gym-Pendulum-v0_0307_baseline"},
		{"ns/Env-v1", "ns-Env-v1_0307_baseline"},
	}

	for _, test := range tests {
		have := RunDir("runs", test.env, "baseline", started)
		if have != filepath.Join("runs", test.want) {
			t.Errorf("runDir(%v): want(%v) have(%v)", test.env,
				filepath.Join("runs", test.want), have)
		}
	}
}

func TestSetupWritesRun(t *testing.T) {
	root := t.TempDir()
	r := runOnce(t, smallConfig(), RunOptions{
		Root:   root,
		Name:   "first",
		Date:   started,
		Device: device.CPU,
	})

	wantDir := RunDir(root, string(envconfig.CarRacingObstacles), "first",
		started)
	if r.Dir != wantDir {
		t.Fatalf("want run directory %v, have %v", wantDir, r.Dir)
	}

	info, err := ReadRunInfo(r.Dir)
	if err != nil {
		t.Fatalf("readRunInfo: %v", err)
	}
	if info.ID == uuid.Nil || info.ID != r.Info.ID {
		t.Errorf("run id not recorded: %v", info.ID)
	}
	if info.PriorBest != nil {
		t.Errorf("fresh run should have no prior best, have %v",
			*info.PriorBest)
	}
	if info.Config.AgentConf.Type != vanillapg.GaussianVanillaPG {
		t.Errorf("agent type not recorded: %v", info.Config.AgentConf.Type)
	}

	steps, err := checkpointer.Checkpoints(r.Dir)
	if err != nil {
		t.Fatalf("checkpoints: %v", err)
	}
	if !reflect.DeepEqual(steps, []int{20, 40}) {
		t.Errorf("want checkpoints [20 40], have %v", steps)
	}

	entries, err := evaluation.LoadLog(filepath.Join(r.Dir, EvaluationsFile))
	if err != nil {
		t.Fatalf("loadLog: %v", err)
	}
	if len(entries) != 2 || entries[0].Step != 20 || entries[1].Step != 40 {
		t.Errorf("want evaluations at 20 and 40, have %v", entries)
	}

	best, _ := checkpointer.NewBest(r.Dir)
	if _, err := best.Load(); err != nil {
		t.Errorf("best model not saved: %v", err)
	}
	if _, err := os.Stat(best.ModelPath()); err != nil {
		t.Errorf("best model not saved: %v", err)
	}

	returns, err := tracker.LoadReturns(filepath.Join(r.Dir, ReturnsFile))
	if err != nil {
		t.Fatalf("loadReturns: %v", err)
	}
	if len(returns) == 0 {
		t.Error("no episodic returns saved")
	}
	if _, err := tracker.LoadLengths(filepath.Join(r.Dir, LengthsFile)); err != nil {
		t.Errorf("loadLengths: %v", err)
	}
}

func TestPriorBestCarried(t *testing.T) {
	root := t.TempDir()
	first := runOnce(t, smallConfig(), RunOptions{
		Root: root, Name: "first", Date: started, Device: device.CPU,
	})
	best, _ := checkpointer.NewBest(first.Dir)
	info, err := best.Load()
	if err != nil {
		t.Fatalf("load best: %v", err)
	}

	o := RunOptions{
		Root:       root,
		Name:       "second",
		Date:       started,
		PreTrained: best.ModelPath(),
		Device:     device.CPU,
		Logger:     quietLogger(),
	}
	r, err := Setup(smallConfig(), o)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer r.Close()
	if r.Info.PriorBest == nil || *r.Info.PriorBest != info.MeanReward {
		t.Errorf("want prior best %v, have %v", info.MeanReward,
			r.Info.PriorBest)
	}

	o.Name = "third"
	o.ResetBest = true
	reset, err := Setup(smallConfig(), o)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer reset.Close()
	if reset.Info.PriorBest != nil {
		t.Errorf("reset best should discard the prior best, have %v",
			*reset.Info.PriorBest)
	}
}

func TestSetupInvalid(t *testing.T) {
	root := t.TempDir()

	c := smallConfig()
	c.EnvConf.Environment = "NoSuchEnv-v0"
	if _, err := Setup(c, RunOptions{Root: root, Name: "bad",
		Date: started}); err == nil {
		t.Error("unknown environment should be rejected")
	}

	c = smallConfig()
	c.AgentConf = agent.TypedConfig{}
	if _, err := Setup(c, RunOptions{Root: root, Name: "bad",
		Date: started}); err == nil {
		t.Error("missing agent configuration should be rejected")
	}

	c = smallConfig()
	if _, err := Setup(c, RunOptions{Root: root, Name: "bad", Date: started,
		PreTrained: filepath.Join(root, "missing.gob")}); err == nil {
		t.Error("missing pre-trained parameters should be rejected")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("readDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("failed setups should not create run directories, found %v",
			entries)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"MaxSteps": 100,
		"Seed": 2,
		"EvalFrequency": 50,
		"EvalEpisodes": 2,
		"SaveFrequency": 100,
		"EnvConf": {"Environment": "CarRacing-obstaclesV2-dict",
			"EpisodeCutoff": 100, "Discount": 0.99, "Obstacles": 3,
			"Rays": 8, "Observation": "structured"},
		"AgentConf": {"Type": "GaussianVanillaPG", "Config": {
			"Hidden": [16], "Activations": ["relu"], "EncoderSize": 8,
			"InitWFn": {"Type": "GlorotU", "Gain": 1},
			"PolicySolver": {"Type": "Adam", "StepSize": 0.001, "Batch": 1},
			"ValueSolver": {"Type": "Adam", "StepSize": 0.001, "Batch": 1},
			"StdDev": 0.3, "Gamma": 0.99, "Lambda": 0.95, "BatchSize": 8,
			"GradientSteps": 1}}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.EnvConf.Environment != envconfig.CarRacingObstaclesDict {
		t.Errorf("environment: have %v", c.EnvConf.Environment)
	}
	if _, ok := c.AgentConf.Config.(vanillapg.Config); !ok {
		t.Errorf("agent config has type %T", c.AgentConf.Config)
	}
}
