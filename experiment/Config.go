package experiment

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/environment/envconfig"
)

// Default schedule and length of training
const (
	DefaultMaxSteps      = 1_000_000
	DefaultEvalFrequency = 10_000
	DefaultEvalEpisodes  = 5
	DefaultSaveFrequency = 100_000
	DefaultSeed          = 1
)

// Config represents a configuration of a training experiment
type Config struct {
	MaxSteps int
	Seed     uint64
	Device   string

	EvalFrequency int
	EvalEpisodes  int
	SaveFrequency int

	EnvConf   envconfig.Config
	AgentConf agent.TypedConfig
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("validate: maximum steps must be positive, got %v",
			c.MaxSteps)
	}
	if c.EvalFrequency <= 0 || c.EvalEpisodes <= 0 {
		return fmt.Errorf("validate: evaluation frequency and episodes must "+
			"be positive, got %v and %v", c.EvalFrequency, c.EvalEpisodes)
	}
	if c.SaveFrequency <= 0 {
		return fmt.Errorf("validate: save frequency must be positive, got %v",
			c.SaveFrequency)
	}
	if err := c.EnvConf.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if c.AgentConf.Config == nil {
		return fmt.Errorf("validate: no agent configuration")
	}
	if err := c.AgentConf.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// LoadConfig reads a JSON Config from a file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loadConfig: %w", err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("loadConfig: %w", err)
	}
	return c, nil
}
