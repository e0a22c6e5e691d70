package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/agent/vanillaac"
	"github.com/samuelfneumann/racerl/agent/vanillapg"
	"github.com/samuelfneumann/racerl/environment/envconfig"
	"github.com/samuelfneumann/racerl/environment/track"
	"github.com/samuelfneumann/racerl/experiment"
	"github.com/samuelfneumann/racerl/experiment/checkpointer"
	"github.com/spf13/cobra"
)

func trainCommand(t *testing.T, args ...string) (*cobra.Command, *trainFlags) {
	t.Helper()
	flags := &trainFlags{}
	cmd := &cobra.Command{Use: "train"}
	flags.register(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	return cmd, flags
}

func TestCheckStep(t *testing.T) {
	tests := []struct {
		step    string
		want    int
		wantErr bool
	}{
		{"", -1, false},
		{"20000", 20000, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"best", 0, true},
	}

	for _, test := range tests {
		have, err := checkStep(test.step)
		if (err != nil) != test.wantErr {
			t.Errorf("checkStep(%q): unexpected error %v", test.step, err)
			continue
		}
		if !test.wantErr && have != test.want {
			t.Errorf("checkStep(%q): want(%v) have(%v)", test.step, test.want,
				have)
		}
	}
}

func TestModelPath(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "CarRacing-obstaclesV2_0307_default")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdirAll: %v", err)
	}

	path, err := modelPath(root, filepath.Base(dir), "")
	if err != nil || path != filepath.Join(dir, "best_model.gob") {
		t.Errorf("best model: have(%v, %v)", path, err)
	}
	path, err = modelPath(root, filepath.Base(dir), "300")
	if err != nil || path != checkpointer.Path(dir, 300) {
		t.Errorf("checkpoint: have(%v, %v)", path, err)
	}

	if _, err := modelPath(root, "missing", ""); !errors.Is(err,
		checkpointer.ErrNotFound) {
		t.Errorf("want ErrNotFound for a missing run, have %v", err)
	}
	if _, err := modelPath(root, filepath.Base(dir), "x1"); err == nil {
		t.Error("malformed checkpoint step should be rejected")
	}
}

func TestExperimentConfigFlags(t *testing.T) {
	cmd, flags := trainCommand(t, "--n-iter", "500", "--lr", "0.01",
		"--obs", "structured", "--batch-size", "32", "--device", "cpu")

	c, err := flags.experimentConfig(cmd)
	if err != nil {
		t.Fatalf("experimentConfig: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if c.MaxSteps != 500 || c.EvalFrequency != experiment.DefaultEvalFrequency {
		t.Errorf("schedule: have %v steps, evaluation every %v", c.MaxSteps,
			c.EvalFrequency)
	}
	if c.EnvConf.Observation != track.Structured || c.EnvConf.EpisodeCutoff != 1000 {
		t.Errorf("environment: have %+v", c.EnvConf)
	}

	vpg, ok := c.AgentConf.Config.(vanillapg.Config)
	if !ok {
		t.Fatalf("agent config has type %T", c.AgentConf.Config)
	}
	if vpg.BatchSize != 32 || vpg.PolicySolver.StepSize != 0.01 ||
		vpg.ValueSolver.StepSize != 0.01 || vpg.LearningStarts != 100 {
		t.Errorf("agent: have %+v", vpg)
	}
}

func TestExperimentConfigActorCritic(t *testing.T) {
	cmd, flags := trainCommand(t, "--agent", "GaussianVanillaAC",
		"--buffer-size", "5000", "--train-freq", "4", "--batch-size", "32",
		"--device", "cpu")

	c, err := flags.experimentConfig(cmd)
	if err != nil {
		t.Fatalf("experimentConfig: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	ac, ok := c.AgentConf.Config.(vanillaac.Config)
	if !ok {
		t.Fatalf("agent config has type %T", c.AgentConf.Config)
	}
	if ac.ExpReplay.MaxReplayCapacity != 5000 || ac.BatchSize() != 32 ||
		ac.TrainFrequency != 4 {
		t.Errorf("replay sizing: have buffer %v, batch %v, train frequency %v",
			ac.ExpReplay.MaxReplayCapacity, ac.BatchSize(), ac.TrainFrequency)
	}

	cmd, flags = trainCommand(t, "--agent", "DQN")
	if _, err := flags.experimentConfig(cmd); err == nil {
		t.Error("unknown agent type should be rejected")
	}
}

func TestExperimentConfigFileReplay(t *testing.T) {
	file := experiment.Config{
		MaxSteps:      100,
		Device:        "cpu",
		EvalFrequency: 10,
		EvalEpisodes:  1,
		SaveFrequency: 50,
		EnvConf:       envconfig.Default(envconfig.CarRacingObstacles),
		AgentConf:     agent.NewTypedConfig(vanillaac.Default(1e-3, 0.99, 16, 1000)),
	}
	data, err := json.Marshal(file)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	cmd, flags := trainCommand(t, "--config", path, "--buffer-size", "64")
	c, err := flags.experimentConfig(cmd)
	if err != nil {
		t.Fatalf("experimentConfig: %v", err)
	}
	ac := c.AgentConf.Config.(vanillaac.Config)
	if ac.ExpReplay.MaxReplayCapacity != 64 || ac.BatchSize() != 16 ||
		ac.TrainFrequency != 1 {
		t.Errorf("want buffer 64 with the file's batch 16, have %+v",
			ac.ExpReplay)
	}
}

func TestExperimentConfigFile(t *testing.T) {
	a := vanillapg.Default(1e-3, 0.9, 64)
	file := experiment.Config{
		MaxSteps:      77,
		Seed:          4,
		Device:        "cpu",
		EvalFrequency: 7,
		EvalEpisodes:  2,
		SaveFrequency: 70,
		EnvConf:       envconfig.Default(envconfig.CarRacingObstaclesDict),
		AgentConf:     agent.NewTypedConfig(a),
	}
	data, err := json.Marshal(file)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	cmd, flags := trainCommand(t, "--config", path, "--eval-freq", "9",
		"--gamma", "0.5")
	c, err := flags.experimentConfig(cmd)
	if err != nil {
		t.Fatalf("experimentConfig: %v", err)
	}

	if c.MaxSteps != 77 || c.Seed != 4 || c.Device != "cpu" {
		t.Errorf("values from the file were overridden: %+v", c)
	}
	if c.EvalFrequency != 9 {
		t.Errorf("want evaluation frequency 9, have %v", c.EvalFrequency)
	}
	if c.EnvConf.Environment != envconfig.CarRacingObstaclesDict {
		t.Errorf("environment: have %v", c.EnvConf.Environment)
	}
	vpg := c.AgentConf.Config.(vanillapg.Config)
	if vpg.Gamma != 0.5 || vpg.BatchSize != 64 {
		t.Errorf("agent: want gamma 0.5 and batch 64, have %v and %v",
			vpg.Gamma, vpg.BatchSize)
	}
}

func TestRolloutVideoFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{"missing", func(t *testing.T, dir string) {}},
		{"corrupt", func(t *testing.T, dir string) {
			path := filepath.Join(dir, checkpointer.BestModel+checkpointer.Extension)
			if err := os.WriteFile(path, []byte("not a model"), 0o644); err != nil {
				t.Fatalf("writeFile: %v", err)
			}
		}},
	}

	for _, test := range tests {
		root, vods := t.TempDir(), t.TempDir()
		model := "CarRacing-obstaclesV2_0307_" + test.name
		dir := filepath.Join(root, model)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdirAll: %v", err)
		}
		test.setup(t, dir)

		cmd := RolloutCommand()
		cmd.SetArgs([]string{"--model", model, "--log-root", root,
			"--vod-dir", vods, "--video", "--device", "cpu"})
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		if err := cmd.Execute(); err == nil {
			t.Errorf("%v checkpoint: want an error", test.name)
		}

		videos, err := filepath.Glob(filepath.Join(vods, "*.avi"))
		if err != nil {
			t.Fatalf("glob: %v", err)
		}
		if len(videos) != 0 {
			t.Errorf("%v checkpoint: videos written %v", test.name, videos)
		}
	}
}
