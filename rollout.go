package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/device"
	"github.com/samuelfneumann/racerl/environment/envconfig"
	"github.com/samuelfneumann/racerl/experiment"
	"github.com/samuelfneumann/racerl/experiment/checkpointer"
	"github.com/samuelfneumann/racerl/rollout"
	"github.com/samuelfneumann/racerl/video"
	"github.com/spf13/cobra"
)

type rolloutFlags struct {
	envFlags

	video  bool
	vodDir string
	fps    int
}

// RolloutCommand returns the rollout command
func RolloutCommand() *cobra.Command {
	r := &rolloutFlags{}
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Roll out a trained model for one episode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd)
		},
	}
	r.envFlags.register(cmd, rollout.DefaultMaxSteps)

	f := cmd.Flags()
	f.BoolVar(&r.video, "video", false, "record the roll-out to a video")
	f.StringVar(&r.vodDir, "vod-dir", envDefault("RACERL_VOD_DIR", "vods"),
		"directory videos are written to")
	f.IntVar(&r.fps, "fps", video.DefaultFPS, "video frame rate")
	return cmd
}

func (r *rolloutFlags) run(cmd *cobra.Command) error {
	if r.model == "" {
		return fmt.Errorf("rollout: no model given")
	}
	step, err := checkStep(r.check)
	if err != nil {
		return fmt.Errorf("rollout: %w", err)
	}
	dev, err := device.Resolve(r.device, device.NvidiaProbe)
	if err != nil {
		return fmt.Errorf("rollout: %w", err)
	}

	dir := filepath.Join(r.logRoot, r.model)
	c, err := r.envConfig(cmd, dir)
	if err != nil {
		return fmt.Errorf("rollout: %w", err)
	}

	saved, err := checkpointer.Open(dir, step)
	if err != nil {
		return fmt.Errorf("rollout: %w", err)
	}
	defer saved.Close()

	env, err := c.Create(r.seed)
	if err != nil {
		return fmt.Errorf("rollout: %w", err)
	}
	defer env.Close()

	a, err := agent.Restore(saved, env, dev)
	if err != nil {
		return fmt.Errorf("rollout: %w", err)
	}

	config := rollout.Config{
		Seed:   r.seed,
		FPS:    r.fps,
		Logger: log.New(os.Stdout, "", 0),
	}
	if r.video {
		config.VideoPath = filepath.Join(r.vodDir, r.model+".avi")
	}
	runner, err := rollout.New(env, a, config)
	if err != nil {
		return fmt.Errorf("rollout: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	res, err := runner.RunContext(ctx)
	fmt.Println(res)
	if res.VideoPath != "" && res.Frames > 0 {
		fmt.Printf("video: %v\n", res.VideoPath)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// envConfig returns the configuration of the environment the model in
// dir was trained on, overridden by the flags set on the command line
func (r *rolloutFlags) envConfig(cmd *cobra.Command,
	dir string) (envconfig.Config, error) {
	info, err := experiment.ReadRunInfo(dir)
	var c envconfig.Config
	switch {
	case err == nil:
		c = info.Config.EnvConf
	case errors.Is(err, os.ErrNotExist):
		c = envconfig.Default(envconfig.EnvName(r.env))
	default:
		return envconfig.Config{}, err
	}

	r.envFlags.apply(&c, func(name string) bool {
		return name == "ep-len" || cmd.Flags().Changed(name)
	})
	if err := c.Validate(); err != nil {
		return envconfig.Config{}, err
	}
	return c, nil
}
