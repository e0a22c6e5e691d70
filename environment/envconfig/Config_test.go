package envconfig

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/environment"
	"github.com/samuelfneumann/racerl/environment/track"
)

func TestCreate(t *testing.T) {
	tests := []struct {
		name EnvName
		arch agent.Architecture
	}{
		{CarRacingObstacles, agent.MLP},
		{CarRacingObstaclesDict, agent.MultiInputMLP},
	}

	for _, test := range tests {
		t.Run(string(test.name), func(t *testing.T) {
			c := Default(test.name)
			env, err := c.Create(1)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			defer env.Close()

			if env.Architecture() != test.arch {
				t.Errorf("architecture: want(%v) have(%v)", test.arch,
					env.Architecture())
			}
			if env.MaxEpisodeSteps() != c.EpisodeCutoff {
				t.Errorf("episode cap: want(%v) have(%v)", c.EpisodeCutoff,
					env.MaxEpisodeSteps())
			}
		})
	}
}

func TestUnknownEnvironment(t *testing.T) {
	c := Default("CarRacing-v0")
	if err := c.Validate(); !errors.Is(err, ErrUnknownEnvironment) {
		t.Errorf("validate: want ErrUnknownEnvironment, have %v", err)
	}
	if _, err := c.Create(1); !errors.Is(err, ErrUnknownEnvironment) {
		t.Errorf("create: want ErrUnknownEnvironment, have %v", err)
	}
}

func TestRegisterPrefix(t *testing.T) {
	called := false
	RegisterPrefix("test:", func(c Config, seed uint64) (environment.Environment, error) {
		called = true
		return track.New(track.Config{Discount: c.Discount}, track.NewDrive(), seed)
	})
	t.Cleanup(func() { delete(prefixes, "test:") })

	c := Default("test:anything")
	env, err := c.Create(2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer env.Close()
	if !called {
		t.Error("registered factory was not used")
	}
}

func TestJSON(t *testing.T) {
	c := Default(CarRacingObstacles)
	c.Obstacles = 3
	c.Observation = track.Pixels

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Config
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != c {
		t.Errorf("want(%+v) have(%+v)", c, decoded)
	}
}
