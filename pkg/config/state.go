package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// State holds preferences remembered between runs.
type State struct {
	// MyIssues is the "my issues" toggle, remembered only for searches not
	// scoped to a project.
	MyIssues    bool   `yaml:"my_issues,omitempty"`
	LastProject string `yaml:"last_project,omitempty"`
	LastFilter  string `yaml:"last_filter,omitempty"`
}

// StatePath returns the full path to state.yaml.
func StatePath() string {
	dir := StateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "state.yaml")
}

// LoadState reads state from path. A missing file yields the zero State.
func LoadState(path string) (State, error) {
	var st State
	if path == "" {
		return st, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("reading state: %w", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parsing state: %w", err)
	}
	return st, nil
}

// SaveState writes state to path.
func SaveState(path string, st State) error {
	if path == "" {
		return fmt.Errorf("cannot determine state directory")
	}
	return writeYAML(path, st)
}

// StateStore persists the "my issues" preference at a fixed path.
type StateStore struct {
	Path string
}

// MyIssues returns the remembered preference; read errors count as false.
func (s StateStore) MyIssues() bool {
	st, err := LoadState(s.Path)
	return err == nil && st.MyIssues
}

// SetMyIssues remembers the preference, keeping the other state fields.
func (s StateStore) SetMyIssues(on bool) error {
	st, err := LoadState(s.Path)
	if err != nil {
		st = State{}
	}
	st.MyIssues = on
	return SaveState(s.Path, st)
}
