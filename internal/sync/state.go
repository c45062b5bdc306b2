package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State tracks the installed version marker per source. It is persisted as a
// sidecar file next to the installed filters so it lives and dies with them.
type State struct {
	Markers map[string]Marker `json:"markers"`
}

// Marker records what a single source last installed.
type Marker struct {
	// Version is the release tag or commit hash the content came from.
	Version string `json:"version"`

	// Files lists the installed file basenames within the filter directory.
	Files []string `json:"files"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Markers: make(map[string]Marker)}
}

// LoadState reads the sidecar at path. A missing file yields an empty state.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Markers == nil {
		state.Markers = make(map[string]Marker)
	}
	return &state, nil
}

// SaveState persists the state with the same write-new-then-rename discipline
// as the content files, so a crash never leaves a torn sidecar behind.
func SaveState(path string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0644)
}

// FilesPresent reports whether every file the marker references still exists
// in dir. A marker whose files were removed out-of-band cannot back a
// cache-skip, and its source no longer counts as previously installed.
func (m Marker) FilesPresent(dir string) bool {
	if len(m.Files) == 0 {
		return false
	}
	for _, name := range m.Files {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// writeFileAtomic writes data to dest via a temporary file in the same
// directory followed by an atomic rename. A concurrent reader of dest sees
// either the prior complete content or the new complete content, never a
// partial write.
func writeFileAtomic(dest string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".filterlaunch-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("replacing %s: %w", dest, err)
	}
	return nil
}
