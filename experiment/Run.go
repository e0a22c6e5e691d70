package experiment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/device"
	"github.com/samuelfneumann/racerl/environment/wrappers"
	"github.com/samuelfneumann/racerl/experiment/checkpointer"
	"github.com/samuelfneumann/racerl/experiment/evaluation"
	"github.com/samuelfneumann/racerl/experiment/tracker"
	"github.com/samuelfneumann/racerl/utils/progressbar"
)

// Files written into a run directory
const (
	RunInfoFile     = "run.json"
	EvaluationsFile = "evaluations.jsonl"
	ReturnsFile     = "returns.bin"
	LengthsFile     = "episode_lengths.bin"
)

// evalSeedOffset separates the seed of the evaluation environment from
// that of the training environment
const evalSeedOffset = 1_000_003

// RunDir returns the run directory of an experiment on environment env
// named name, started at date: <root>/<env>_<MMDD>_<name>
func RunDir(root, env, name string, date time.Time) string {
	env = strings.NewReplacer(":", "-", "/", "-").Replace(env)
	return filepath.Join(root, fmt.Sprintf("%v_%v_%v", env,
		date.Format("0102"), name))
}

// RunInfo is written to run.json at the start of a run
type RunInfo struct {
	ID      uuid.UUID     `json:"id"`
	Started time.Time     `json:"started"`
	Device  device.Device `json:"device"`

	// PreTrained is the model parameters were loaded from, if any
	PreTrained string   `json:"pre_trained,omitempty"`
	PriorBest  *float64 `json:"prior_best,omitempty"`

	Config Config `json:"config"`
}

// ReadRunInfo reads the run.json file of a run directory
func ReadRunInfo(dir string) (RunInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, RunInfoFile))
	if err != nil {
		return RunInfo{}, fmt.Errorf("readRunInfo: %w", err)
	}

	var info RunInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return RunInfo{}, fmt.Errorf("readRunInfo: %w", err)
	}
	return info, nil
}

// RunOptions describe where and how a run is set up
type RunOptions struct {
	Root string
	Name string
	Date time.Time

	// PreTrained is the path of saved parameters to start from. The
	// best mean reward recorded next to it is carried forward unless
	// ResetBest is set.
	PreTrained string
	ResetBest  bool

	Device device.Device

	// Progress, if non-nil, receives a progress bar
	Progress io.Writer
	Logger   *log.Logger
}

// Run is a fully assembled training run
type Run struct {
	Info    RunInfo
	Dir     string
	Agent   agent.Agent
	Trainer *Trainer

	env, evalEnv *wrappers.Adapter
	evalLog      *evaluation.Log
}

// Setup validates c, creates the run directory, the training and
// evaluation environments, the agent, and the schedules of a run. All
// configuration errors are returned before the run directory is
// created.
func Setup(c Config, o RunOptions, opts ...Option) (*Run, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	logger := o.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	env, err := c.EnvConf.Create(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	evalEnv, err := c.EnvConf.Create(c.Seed + evalSeedOffset)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}

	r := &Run{env: env, evalEnv: evalEnv}
	if err := r.setup(c, o, logger, opts); err != nil {
		r.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}
	return r, nil
}

func (r *Run) setup(c Config, o RunOptions, logger *log.Logger,
	opts []Option) error {
	a, err := c.AgentConf.CreateAgent(r.env, c.Seed, o.Device)
	if err != nil {
		return err
	}
	r.Agent = a

	var priorBest *float64
	if o.PreTrained != "" {
		if err := loadParameters(a, o.PreTrained); err != nil {
			return err
		}
		logger.Printf("loaded pre-trained parameters from %v", o.PreTrained)
		priorBest = carriedBest(filepath.Dir(o.PreTrained), o.ResetBest)
	}

	r.Dir = RunDir(o.Root, string(c.EnvConf.Environment), o.Name, o.Date)
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return err
	}
	if inPlace := carriedBest(r.Dir, o.ResetBest); inPlace != nil &&
		(priorBest == nil || *inPlace > *priorBest) {
		priorBest = inPlace
	}
	if priorBest != nil {
		logger.Printf("carrying forward best mean reward %.3f", *priorBest)
	}

	r.Info = RunInfo{
		ID:         uuid.New(),
		Started:    o.Date,
		Device:     o.Device,
		PreTrained: o.PreTrained,
		PriorBest:  priorBest,
		Config:     c,
	}
	if err := writeRunInfo(r.Dir, r.Info); err != nil {
		return err
	}

	best, err := checkpointer.NewBest(r.Dir)
	if err != nil {
		return err
	}
	r.evalLog, err = evaluation.OpenLog(filepath.Join(r.Dir, EvaluationsFile))
	if err != nil {
		return err
	}
	evaluator, err := evaluation.NewScheduler(r.evalEnv, evaluation.Config{
		Frequency: c.EvalFrequency,
		Episodes:  c.EvalEpisodes,
		Seed:      c.Seed + evalSeedOffset,
		PriorBest: priorBest,
	}, best, r.evalLog)
	if err != nil {
		return err
	}
	evaluator.SetLogger(logger)

	checkpoints, err := checkpointer.NewManager(r.Dir, c.SaveFrequency)
	if err != nil {
		return err
	}

	options := []Option{
		WithEvaluator(evaluator),
		WithCheckpointer(checkpoints),
		WithTrackers(
			tracker.NewReturn(filepath.Join(r.Dir, ReturnsFile)),
			tracker.NewEpisodeLength(filepath.Join(r.Dir, LengthsFile)),
		),
		WithLogger(logger),
	}
	if o.Progress != nil {
		options = append(options,
			WithProgress(progressbar.New(o.Progress, 40, c.MaxSteps)))
	}
	options = append(options, opts...)

	r.Trainer, err = NewTrainer(r.env, a, TrainerConfig{MaxSteps: c.MaxSteps},
		options...)
	return err
}

// loadParameters loads saved parameters into a
func loadParameters(a agent.Agent, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("loadParameters: %w", err)
	}
	defer f.Close()

	if err := a.Load(f); err != nil {
		return fmt.Errorf("loadParameters: %v: %w", path, err)
	}
	return nil
}

// carriedBest returns the best mean reward recorded in dir, or nil if
// there is none or reset is set
func carriedBest(dir string, reset bool) *float64 {
	if reset {
		return nil
	}
	best, err := checkpointer.NewBest(dir)
	if err != nil {
		return nil
	}
	info, err := best.Load()
	if err != nil {
		return nil
	}
	return &info.MeanReward
}

func writeRunInfo(dir string, info RunInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("writeRunInfo: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, RunInfoFile), data, 0o644)
}

// Close saves the trackers of the run and releases its environments
// and evaluation log
func (r *Run) Close() error {
	var errs []error
	if r.Trainer != nil {
		errs = append(errs, r.Trainer.Save())
	}
	if r.evalLog != nil {
		errs = append(errs, r.evalLog.Close())
	}
	errs = append(errs, r.env.Close(), r.evalEnv.Close())
	return errors.Join(errs...)
}
