package agent

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/samuelfneumann/racerl/device"
)

// Restorer creates an agent acting in env from data written by the
// agent's Save method
type Restorer func(r io.Reader, env Env, dev device.Device) (Agent, error)

var restorers = make(map[Type]Restorer)

// RegisterRestorer registers the Restorer for saved agents of type
// agentType
func RegisterRestorer(agentType Type, r Restorer) {
	restorers[agentType] = r
}

// header is the part of every saved agent which names its type
type header struct {
	Type Type
}

// Restore creates an agent acting in env from saved data, dispatching
// on the agent Type recorded in the data. Saved agents must be gob
// encoded structs with a Type field.
func Restore(r io.Reader, env Env, dev device.Device) (Agent, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	var h header
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&h); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	restore, ok := restorers[h.Type]
	if !ok {
		return nil, fmt.Errorf("restore: unregistered agent type %q", h.Type)
	}

	a, err := restore(bytes.NewReader(data), env, dev)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return a, nil
}
