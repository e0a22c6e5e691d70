package vanillapg

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"

	"github.com/samuelfneumann/racerl/agent"
	"github.com/samuelfneumann/racerl/device"
)

// snapshot is the serialized form of a VPG agent. The configuration is
// stored as JSON since activations only serialize by name.
type snapshot struct {
	Type    agent.Type
	Config  []byte
	Policy  [][]float64
	Value   [][]float64
	Updates int
}

// Save writes the configuration and learned weights of the agent
func (v *VPG) Save(w io.Writer) error {
	config, err := json.Marshal(v.config)
	if err != nil {
		return fmt.Errorf("save: could not marshal config: %w", err)
	}

	s := snapshot{
		Type:    GaussianVanillaPG,
		Config:  config,
		Policy:  v.policy.Weights(),
		Value:   v.trainValue.Weights(),
		Updates: v.updates,
	}
	if err := gob.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Load reads weights written by Save into the agent. The saved agent
// must have the same network architecture.
func (v *VPG) Load(r io.Reader) error {
	s, err := decode(r)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := v.apply(s); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	return nil
}

// Restore creates a new agent acting in env from data written by Save,
// using the saved configuration
func Restore(r io.Reader, env agent.Env, dev device.Device) (*VPG, error) {
	s, err := decode(r)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	var c Config
	if err := json.Unmarshal(s.Config, &c); err != nil {
		return nil, fmt.Errorf("restore: could not unmarshal config: %w", err)
	}
	v, err := New(env, c, 0, dev)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if err := v.apply(s); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return v, nil
}

func decode(r io.Reader) (snapshot, error) {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return snapshot{}, fmt.Errorf("decode: %w", err)
	}
	if s.Type != GaussianVanillaPG {
		return snapshot{}, fmt.Errorf("decode: cannot load agent of type %q",
			s.Type)
	}
	return s, nil
}

// apply sets the weights of all networks from a snapshot
func (v *VPG) apply(s snapshot) error {
	if err := v.policy.SetWeights(s.Policy); err != nil {
		return fmt.Errorf("apply: policy: %w", err)
	}
	if err := v.behaviour.SetWeights(s.Policy); err != nil {
		return fmt.Errorf("apply: policy: %w", err)
	}
	if err := v.trainValue.SetWeights(s.Value); err != nil {
		return fmt.Errorf("apply: value function: %w", err)
	}
	if err := v.value.SetWeights(s.Value); err != nil {
		return fmt.Errorf("apply: value function: %w", err)
	}
	v.updates = s.Updates
	return nil
}
