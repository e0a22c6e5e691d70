// Package experiment implements functionality for running a training
// experiment: the training loop, its schedules, and the run directory
// it writes to.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/environment/wrappers"
	"github.com/samuelfneumann/racerl/experiment/checkpointer"
	"github.com/samuelfneumann/racerl/experiment/evaluation"
	"github.com/samuelfneumann/racerl/experiment/tracker"
	ts "github.com/samuelfneumann/racerl/timestep"
	"github.com/samuelfneumann/racerl/utils/progressbar"
)

// TrainerConfig configures a Trainer
type TrainerConfig struct {
	// MaxSteps is the total number of environment steps to train for
	MaxSteps int
}

// Trainer runs an agent online in an environment for a fixed number of
// steps. After each agent update, the global step count is passed to
// the evaluation and checkpoint schedules, which decide for themselves
// whether to act. Failures to write checkpoints or the best model are
// logged and training continues.
type Trainer struct {
	env   *wrappers.Adapter
	agent agent.Agent

	maxSteps     int
	currentSteps int

	evaluator   *evaluation.Scheduler
	checkpoints *checkpointer.Manager
	trackers    []tracker.Tracker
	returns     *tracker.Return
	progress    *progressbar.Bar
	logger      *log.Logger
	ctx         context.Context
}

// Option configures optional parts of a Trainer
type Option func(*Trainer)

// WithEvaluator evaluates the agent on the Scheduler's schedule
func WithEvaluator(s *evaluation.Scheduler) Option {
	return func(t *Trainer) { t.evaluator = s }
}

// WithCheckpointer checkpoints the agent on the Manager's schedule
func WithCheckpointer(m *checkpointer.Manager) Option {
	return func(t *Trainer) { t.checkpoints = m }
}

// WithTrackers registers Trackers which are sent every TimeStep
func WithTrackers(trackers ...tracker.Tracker) Option {
	return func(t *Trainer) { t.trackers = append(t.trackers, trackers...) }
}

// WithProgress displays training progress on a progress bar. If a
// Return Tracker is registered, the last episodic return is shown.
func WithProgress(p *progressbar.Bar) Option {
	return func(t *Trainer) { t.progress = p }
}

// WithLogger sets the logger the Trainer reports to
func WithLogger(l *log.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// WithContext stops training once ctx is done
func WithContext(ctx context.Context) Option {
	return func(t *Trainer) { t.ctx = ctx }
}

// NewTrainer creates and returns a new Trainer of agent a on env
func NewTrainer(env *wrappers.Adapter, a agent.Agent, c TrainerConfig,
	opts ...Option) (*Trainer, error) {
	if env == nil || a == nil {
		return nil, fmt.Errorf("newTrainer: environment and agent must be " +
			"non-nil")
	}
	if c.MaxSteps <= 0 {
		return nil, fmt.Errorf("newTrainer: maximum steps must be positive, "+
			"got %v", c.MaxSteps)
	}

	t := &Trainer{
		env:      env,
		agent:    a,
		maxSteps: c.MaxSteps,
		logger:   log.New(io.Discard, "", 0),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, tr := range t.trackers {
		if r, ok := tr.(*tracker.Return); ok {
			t.returns = r
		}
	}
	return t, nil
}

// RunEpisode runs a single episode of the experiment, and returns
// whether the maximum number of steps has been reached
func (t *Trainer) RunEpisode() (bool, error) {
	step, err := t.env.Reset()
	if err != nil {
		return true, fmt.Errorf("runEpisode: %w", err)
	}
	if err := t.agent.ObserveFirst(step); err != nil {
		return true, fmt.Errorf("runEpisode: %w", err)
	}
	t.track(step)

	for !step.Last() && t.currentSteps < t.maxSteps {
		if err := t.ctx.Err(); err != nil {
			return true, err
		}

		// Select action, step in environment
		action := t.agent.SelectAction(step)
		step, _, err = t.env.Step(action)
		if err != nil {
			return true, fmt.Errorf("runEpisode: %w", err)
		}
		t.track(step)

		// Observe the timestep and step the agent
		if err := t.agent.Observe(action, step); err != nil {
			return true, fmt.Errorf("runEpisode: %w", err)
		}
		if err := t.agent.Step(); err != nil {
			return true, fmt.Errorf("runEpisode: %w", err)
		}

		t.currentSteps++
		t.schedule()
	}
	if step.Last() {
		t.agent.EndEpisode()
	}

	return t.currentSteps >= t.maxSteps, nil
}

// schedule passes the current step to the evaluation and checkpoint
// schedules
func (t *Trainer) schedule() {
	if t.evaluator != nil {
		if _, ran, err := t.evaluator.OnStep(t.currentSteps, t.agent); err != nil {
			t.logger.Printf("step %v: evaluation: %v", t.currentSteps, err)
		} else if ran && t.progress != nil {
			t.display()
		}
	}

	if t.checkpoints != nil {
		path, ok, err := t.checkpoints.OnStep(t.currentSteps, t.agent)
		if err != nil {
			t.logger.Printf("step %v: checkpoint: %v", t.currentSteps, err)
		} else if ok {
			t.logger.Printf("step %v: saved checkpoint %v", t.currentSteps,
				path)
		}
	}

	if t.progress != nil && t.currentSteps%displayEvery == 0 {
		t.display()
	}
}

const displayEvery = 100

func (t *Trainer) display() {
	t.progress.Set(t.currentSteps)
	status := ""
	if t.returns != nil {
		if last, ok := t.returns.Last(); ok {
			status = fmt.Sprintf("return: %.2f", last)
		}
	}
	if t.evaluator != nil {
		if best, ok := t.evaluator.Best(); ok {
			status += fmt.Sprintf(" best eval: %.2f", best)
		}
	}
	t.progress.SetStatus("%v", status)
	t.progress.Display()
}

// Run runs the experiment until the maximum number of steps is reached
// or the Trainer's context is done
func (t *Trainer) Run() error {
	for {
		ended, err := t.RunEpisode()
		if err != nil {
			return err
		}
		if ended {
			break
		}
	}
	if t.progress != nil {
		t.display()
		t.progress.Finish()
	}
	return nil
}

// Steps returns the number of steps taken so far
func (t *Trainer) Steps() int {
	return t.currentSteps
}

// Save saves all the data cached by the Trackers to disk
func (t *Trainer) Save() error {
	var errs []error
	for _, tr := range t.trackers {
		if err := tr.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// track tracks the current timestep by caching its data in each
// Tracker
func (t *Trainer) track(step ts.TimeStep) {
	for _, tr := range t.trackers {
		tr.Track(step)
	}
}
