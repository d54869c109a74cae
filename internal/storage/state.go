package storage

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// State is the small persistent record left behind by a completed run.
// Everything else the engine computes is rederived from the certificate and
// config trees themselves.
type State struct {
	Revision  string    `yaml:"revision"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// LoadState reads the previous run's state. A missing state file is not an
// error; it returns an empty State, which forces regeneration.
func (l Layout) LoadState() (*State, error) {
	data, err := os.ReadFile(l.StateFile())
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	state := &State{}
	if err := yaml.Unmarshal(data, state); err != nil {
		// A corrupt state file only costs one full regeneration.
		return &State{}, nil
	}
	return state, nil
}

// SaveState records the revision a completed run was generated from.
func (l Layout) SaveState(state *State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return WriteFileAtomic(l.StateFile(), data, 0644)
}
