// Package rollout runs a trained policy for a single deterministic
// episode, optionally recording the episode to a video.
package rollout

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/environment"
	"github.com/samuelfneumann/racerl/environment/wrappers"
	"github.com/samuelfneumann/racerl/video"
)

// DefaultMaxSteps bounds roll-outs in environments with no episode
// limit
const DefaultMaxSteps = 1500

// Config configures a roll-out
type Config struct {
	Seed uint64

	// MaxSteps bounds the length of the episode. Zero uses the
	// environment's episode limit, or DefaultMaxSteps if it has none.
	MaxSteps int

	// VideoPath, if set, records every rendered frame to an MJPEG AVI
	// file at FPS frames per second
	VideoPath string
	FPS       int

	// Display, if set, receives every rendered frame
	Display func(image.Image)

	// Logger receives the action taken at each step
	Logger *log.Logger
}

// Result summarises a roll-out
type Result struct {
	Steps   int
	Return  float64
	Actions [][]float64

	Frames     int
	Terminated bool
	Truncated  bool
	VideoPath  string
}

func (r Result) String() string {
	end := "stopped"
	switch {
	case r.Terminated:
		end = "terminated"
	case r.Truncated:
		end = "truncated"
	}
	return fmt.Sprintf("Roll-out | Steps: %v  |  Return: %.3f  |  %v  |  "+
		"Frames: %v", r.Steps, r.Return, end, r.Frames)
}

// Runner runs a policy in an environment for a single episode
type Runner struct {
	env    *wrappers.Adapter
	policy agent.Policy
	config Config
	logger *log.Logger

	maxSteps int
	render   bool
}

// New returns a new Runner of policy p in env. An error is returned
// before anything is written if the Config requests frames from an
// environment which cannot render.
func New(env *wrappers.Adapter, p agent.Policy, c Config) (*Runner, error) {
	if env == nil || p == nil {
		return nil, fmt.Errorf("new: environment and policy must be non-nil")
	}
	if c.MaxSteps < 0 {
		return nil, fmt.Errorf("new: maximum steps must be non-negative, "+
			"got %v", c.MaxSteps)
	}

	render := c.VideoPath != "" || c.Display != nil
	if render && !env.Renderable() {
		return nil, fmt.Errorf("new: %w", environment.ErrNotRenderable)
	}

	maxSteps := c.MaxSteps
	if maxSteps == 0 {
		maxSteps = env.MaxEpisodeSteps()
	}
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}

	logger := c.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Runner{
		env:      env,
		policy:   p,
		config:   c,
		logger:   logger,
		maxSteps: maxSteps,
		render:   render,
	}, nil
}

// Run runs a single episode
func (r *Runner) Run() (Result, error) {
	return r.RunContext(context.Background())
}

// RunContext runs a single episode, stopping early once ctx is done.
// The policy acts in evaluation mode. If a video is recorded, it is
// sealed however the episode ends.
func (r *Runner) RunContext(ctx context.Context) (res Result, err error) {
	if !r.policy.IsEval() {
		r.policy.Eval()
		defer r.policy.Train()
	}

	var rec *video.Recorder
	if r.config.VideoPath != "" {
		rec = video.NewRecorder(r.config.VideoPath, r.config.FPS)
		res.VideoPath = rec.Path()
		defer func() {
			if sealErr := rec.Seal(); sealErr != nil && err == nil {
				err = fmt.Errorf("run: %w", sealErr)
			}
			res.Frames = rec.Frames()
		}()
	}

	step, err := r.env.ResetSeed(r.config.Seed)
	if err != nil {
		return res, fmt.Errorf("run: %w", err)
	}

	for !step.Last() && res.Steps < r.maxSteps {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		action := r.policy.SelectAction(step)
		res.Actions = append(res.Actions,
			append([]float64(nil), action.RawVector().Data...))
		r.logger.Printf("step %v: action %v", res.Steps,
			res.Actions[len(res.Actions)-1])

		step, _, err = r.env.Step(action)
		if err != nil {
			return res, fmt.Errorf("run: step %v: %w", res.Steps, err)
		}
		res.Steps++
		res.Return += step.Reward

		if err := r.frame(rec, &res); err != nil {
			return res, fmt.Errorf("run: step %v: %w", res.Steps, err)
		}
	}

	res.Terminated = step.Terminated()
	res.Truncated = step.Truncated()
	return res, nil
}

// frame renders the current state of the environment and sends it to
// the video and display
func (r *Runner) frame(rec *video.Recorder, res *Result) error {
	if !r.render {
		return nil
	}

	img, err := r.env.Render()
	if err != nil {
		return err
	}
	if rec != nil {
		if err := rec.Write(img); err != nil {
			return err
		}
		res.Frames = rec.Frames()
	}
	if r.config.Display != nil {
		r.config.Display(img)
	}
	return nil
}
