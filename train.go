package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/agent/vanillaac"
	"github.com/samuelfneumann/racerl/agent/vanillapg"
	"github.com/samuelfneumann/racerl/device"
	"github.com/samuelfneumann/racerl/environment/envconfig"
	"github.com/samuelfneumann/racerl/environment/track"
	"github.com/samuelfneumann/racerl/experiment"
	"github.com/samuelfneumann/racerl/experiment/checkpointer"
	"github.com/spf13/cobra"
)

// envFlags are the flags shared by the train and rollout commands
type envFlags struct {
	env       string
	obstacles int
	obs       string
	epLen     int
	seed      uint64
	device    string
	logRoot   string
	model     string
	check     string
}

func (e *envFlags) register(cmd *cobra.Command, epLen int) {
	f := cmd.Flags()
	f.StringVar(&e.env, "env", string(envconfig.CarRacingObstacles),
		"environment id")
	f.IntVar(&e.obstacles, "n-obst", track.DefaultObstacles,
		"number of obstacles on the track")
	f.StringVar(&e.obs, "obs", string(track.State),
		"observation mode: state, pixels, or structured")
	f.IntVar(&e.epLen, "ep-len", epLen, "maximum steps per episode")
	f.Uint64Var(&e.seed, "seed", experiment.DefaultSeed, "random seed")
	f.StringVar(&e.device, "device", envDefault("RACERL_DEVICE", "auto"),
		"compute device: auto, cpu, or cuda")
	f.StringVar(&e.logRoot, "log-root", envDefault("RACERL_LOG_ROOT", "logs"),
		"directory holding run directories")
	f.StringVar(&e.model, "model", "", "run directory name under the log root")
	f.StringVar(&e.check, "check", "",
		"checkpoint step to load from the model, empty for the best model")
}

// apply overrides the fields of an environment configuration whose
// flags are set
func (e *envFlags) apply(c *envconfig.Config, set func(string) bool) {
	if set("env") {
		c.Environment = envconfig.EnvName(e.env)
	}
	if set("n-obst") {
		c.Obstacles = e.obstacles
	}
	if set("obs") {
		c.Observation = track.ObservationMode(e.obs)
	}
	if set("ep-len") {
		c.EpisodeCutoff = e.epLen
	}
}

type trainFlags struct {
	envFlags

	config         string
	agent          string
	nIter          int
	evalFreq       int
	evalEpisodes   int
	saveFreq       int
	lr             float64
	gamma          float64
	batchSize      int
	bufferSize     int
	trainFreq      int
	learningStarts int
	gradSteps      int
	expName        string
	preTrained     string
	resetBest      bool
}

// TrainCommand returns the train command
func TrainCommand() *cobra.Command {
	t := &trainFlags{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train an agent, evaluating and checkpointing it periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return t.run(cmd)
		},
	}
	t.register(cmd)
	return cmd
}

func (t *trainFlags) register(cmd *cobra.Command) {
	t.envFlags.register(cmd, 1000)

	f := cmd.Flags()
	f.StringVar(&t.config, "config", "",
		"JSON experiment configuration; explicitly set flags override it")
	f.StringVar(&t.agent, "agent", string(vanillapg.GaussianVanillaPG),
		fmt.Sprintf("agent type, one of %v or %v", vanillapg.GaussianVanillaPG,
			vanillaac.GaussianVanillaAC))
	f.IntVar(&t.nIter, "n-iter", experiment.DefaultMaxSteps,
		"number of training steps")
	f.IntVar(&t.evalFreq, "eval-freq", experiment.DefaultEvalFrequency,
		"training steps between evaluations")
	f.IntVar(&t.evalEpisodes, "eval-episodes", experiment.DefaultEvalEpisodes,
		"episodes per evaluation")
	f.IntVar(&t.saveFreq, "save-freq", experiment.DefaultSaveFrequency,
		"training steps between checkpoints")
	f.Float64Var(&t.lr, "lr", 3e-4, "learning rate")
	f.Float64Var(&t.gamma, "gamma", 0.99, "discount factor")
	f.IntVar(&t.batchSize, "batch-size", 256, "transitions per update")
	f.IntVar(&t.bufferSize, "buffer-size", 100000,
		"replay buffer capacity in transitions (GaussianVanillaAC)")
	f.IntVar(&t.trainFreq, "train-freq", 1,
		"environment steps between updates (GaussianVanillaAC)")
	f.IntVar(&t.learningStarts, "learning-starts", 100,
		"steps before learning begins")
	f.IntVar(&t.gradSteps, "grad-steps", 1, "gradient steps per update")
	f.StringVar(&t.expName, "exp-name", "default", "experiment name")
	f.StringVar(&t.preTrained, "pre-trained", "",
		"saved parameters to start training from")
	f.BoolVar(&t.resetBest, "reset-best", false,
		"do not carry forward the best evaluation of the pre-trained model")
}

func (t *trainFlags) run(cmd *cobra.Command) error {
	c, err := t.experimentConfig(cmd)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	dev, err := device.Resolve(c.Device, device.NvidiaProbe)
	if err != nil {
		return err
	}

	pre := t.preTrained
	if pre == "" && t.model != "" {
		if pre, err = modelPath(t.logRoot, t.model, t.check); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stderr, "train: ", log.LstdFlags)
	run, err := experiment.Setup(c, experiment.RunOptions{
		Root:       t.logRoot,
		Name:       t.expName,
		Date:       time.Now(),
		PreTrained: pre,
		ResetBest:  t.resetBest,
		Device:     dev,
		Progress:   os.Stdout,
		Logger:     logger,
	}, experiment.WithContext(ctx))
	if err != nil {
		return err
	}
	logger.Printf("run %v in %v on %v", run.Info.ID, run.Dir, dev)

	runErr := run.Trainer.Run()
	if errors.Is(runErr, context.Canceled) {
		logger.Printf("interrupted after %v steps", run.Trainer.Steps())
		runErr = nil
	}
	return errors.Join(runErr, run.Close())
}

// experimentConfig builds the experiment configuration from the config
// file, if given, and the command line flags. Without a config file
// every flag applies; with one, only flags set on the command line
// override it.
func (t *trainFlags) experimentConfig(cmd *cobra.Command) (experiment.Config,
	error) {
	set := func(name string) bool {
		return t.config == "" || cmd.Flags().Changed(name)
	}

	var c experiment.Config
	if t.config != "" {
		var err error
		if c, err = experiment.LoadConfig(t.config); err != nil {
			return experiment.Config{}, err
		}
	} else {
		c.EnvConf = envconfig.Default(envconfig.EnvName(t.env))
		a, err := t.defaultAgent()
		if err != nil {
			return experiment.Config{}, err
		}
		c.AgentConf = agent.NewTypedConfig(a)
	}
	if t.config != "" && set("agent") && c.AgentConf.Type != agent.Type(t.agent) {
		a, err := t.defaultAgent()
		if err != nil {
			return experiment.Config{}, err
		}
		c.AgentConf = agent.NewTypedConfig(a)
	}

	if set("n-iter") {
		c.MaxSteps = t.nIter
	}
	if set("seed") {
		c.Seed = t.seed
	}
	if set("device") || c.Device == "" {
		c.Device = t.device
	}
	if set("eval-freq") {
		c.EvalFrequency = t.evalFreq
	}
	if set("eval-episodes") {
		c.EvalEpisodes = t.evalEpisodes
	}
	if set("save-freq") {
		c.SaveFrequency = t.saveFreq
	}
	t.envFlags.apply(&c.EnvConf, set)

	switch a := c.AgentConf.Config.(type) {
	case vanillapg.Config:
		if set("lr") {
			a.PolicySolver.StepSize = t.lr
			a.ValueSolver.StepSize = t.lr
		}
		if set("gamma") {
			a.Gamma = t.gamma
		}
		if set("batch-size") {
			a.BatchSize = t.batchSize
		}
		if set("learning-starts") {
			a.LearningStarts = t.learningStarts
		}
		if set("grad-steps") {
			a.GradientSteps = t.gradSteps
		}
		c.AgentConf = agent.NewTypedConfig(a)

	case vanillaac.Config:
		if set("lr") {
			a.PolicySolver.StepSize = t.lr
			a.ValueSolver.StepSize = t.lr
		}
		if set("gamma") {
			a.Gamma = t.gamma
		}
		if set("batch-size") {
			a.ExpReplay.SampleSize = t.batchSize
			a.ExpReplay.MinReplayCapacity = t.batchSize
		}
		if set("buffer-size") {
			a.ExpReplay.MaxReplayCapacity = t.bufferSize
		}
		if set("train-freq") {
			a.TrainFrequency = t.trainFreq
		}
		if set("learning-starts") {
			a.LearningStarts = t.learningStarts
		}
		if set("grad-steps") {
			a.GradientSteps = t.gradSteps
		}
		c.AgentConf = agent.NewTypedConfig(a)
	}
	return c, nil
}

// defaultAgent returns the default configuration of the agent type
// named by the agent flag
func (t *trainFlags) defaultAgent() (agent.Config, error) {
	switch agent.Type(t.agent) {
	case vanillapg.GaussianVanillaPG:
		return vanillapg.Default(t.lr, t.gamma, t.batchSize), nil
	case vanillaac.GaussianVanillaAC:
		return vanillaac.Default(t.lr, t.gamma, t.batchSize, t.bufferSize), nil
	}
	return nil, fmt.Errorf("unknown agent type %q", t.agent)
}

// modelPath returns the path of the parameters saved in the run
// directory model under root at the given checkpoint step. An empty
// step names the best model.
func modelPath(root, model, step string) (string, error) {
	n, err := checkStep(step)
	if err != nil {
		return "", fmt.Errorf("modelPath: %w", err)
	}

	dir := filepath.Join(root, model)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("modelPath: %w: no run directory %v",
			checkpointer.ErrNotFound, dir)
	}
	if n < 0 {
		return filepath.Join(dir, checkpointer.BestModel+checkpointer.Extension),
			nil
	}
	return checkpointer.Path(dir, n), nil
}

// checkStep parses a checkpoint step, returning -1 for the best model
func checkStep(step string) (int, error) {
	if step == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(step)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("malformed checkpoint step %q", step)
	}
	return n, nil
}
