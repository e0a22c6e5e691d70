// Package envconfig provides JSON serializable configurations of
// environments and a registry of environment ids. Creating an
// environment from a Config always returns it wrapped in a
// wrappers.Adapter.
package envconfig

import (
	"errors"
	"fmt"
	"strings"

	env "github.com/samuelfneumann/racerl/environment"
	"github.com/samuelfneumann/racerl/environment/track"
	"github.com/samuelfneumann/racerl/environment/wrappers"
)

// ErrUnknownEnvironment is returned for environment ids that are not
// registered
var ErrUnknownEnvironment = errors.New("unknown environment")

// EnvName is an environment id
type EnvName string

// Environments available for configuration
const (
	CarRacingObstacles     EnvName = "CarRacing-obstaclesV2"
	CarRacingObstaclesDict EnvName = "CarRacing-obstaclesV2-dict"
)

// Config implements a specific configuration of an environment
type Config struct {
	Environment EnvName

	// EpisodeCutoff truncates episodes after this many steps. Zero
	// disables truncation.
	EpisodeCutoff int

	Discount float64

	// Track environments only
	Obstacles   int
	Rays        int
	Observation track.ObservationMode
}

// Default returns the default configuration of environment name
func Default(name EnvName) Config {
	return Config{
		Environment:   name,
		EpisodeCutoff: 1000,
		Discount:      0.99,
		Obstacles:     track.DefaultObstacles,
		Rays:          track.DefaultRays,
		Observation:   track.State,
	}
}

// Factory creates the raw environment described by a Config
type Factory func(c Config, seed uint64) (env.Environment, error)

var (
	factories = map[EnvName]Factory{
		CarRacingObstacles:     createTrack,
		CarRacingObstaclesDict: createTrack,
	}
	prefixes = map[string]Factory{}
)

// Register registers a Factory for an environment id
func Register(name EnvName, f Factory) {
	factories[name] = f
}

// RegisterPrefix registers a Factory for all environment ids starting
// with prefix
func RegisterPrefix(prefix string, f Factory) {
	prefixes[prefix] = f
}

// factory returns the Factory for the environment id of the Config
func (c Config) factory() (Factory, error) {
	if f, ok := factories[c.Environment]; ok {
		return f, nil
	}
	for prefix, f := range prefixes {
		if strings.HasPrefix(string(c.Environment), prefix) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEnvironment, c.Environment)
}

// Validate returns an error if the Config cannot be used to create an
// environment. Validate does not construct the environment.
func (c Config) Validate() error {
	if _, err := c.factory(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if c.EpisodeCutoff < 0 {
		return fmt.Errorf("validate: episode cutoff must be non-negative, "+
			"got %v", c.EpisodeCutoff)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1], got %v",
			c.Discount)
	}
	return nil
}

// Create returns the environment described by the Config, wrapped in
// an Adapter which applies the episode cutoff. The environment is
// seeded with seed and reset.
func (c Config) Create(seed uint64) (*wrappers.Adapter, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	f, _ := c.factory()
	raw, err := f(c, seed)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	adapter, err := wrappers.NewAdapter(raw, wrappers.AdapterConfig{
		MaxEpisodeSteps: c.EpisodeCutoff,
	})
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("create: %w", err)
	}
	return adapter, nil
}

func createTrack(c Config, seed uint64) (env.Environment, error) {
	mode := c.Observation
	if c.Environment == CarRacingObstaclesDict {
		mode = track.Structured
	}

	t, err := track.New(track.Config{
		Obstacles:   c.Obstacles,
		Rays:        c.Rays,
		Observation: mode,
		Discount:    c.Discount,
	}, track.NewDrive(), seed)
	if err != nil {
		return nil, err
	}
	return t, nil
}
