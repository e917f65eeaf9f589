package infra

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/timerapps/timerd/internal/domain"
)

// FileRunRegistry implements domain.RunRegistry as a small JSON file so a
// separate status process can see whether the daemon is alive.
type FileRunRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewRunRegistry creates a run registry at the given path.
func NewRunRegistry(path string, pm domain.ProcessManager) *FileRunRegistry {
	return &FileRunRegistry{path: path, processManager: pm}
}

// Register saves the daemon's run state.
func (r *FileRunRegistry) Register(state domain.RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	// Atomic write: temp file, then rename.
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Get returns the recorded run state, nil if none was registered.
func (r *FileRunRegistry) Get() (*domain.RunState, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var state domain.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// IsAlive reports whether a registered daemon is still running.
func (r *FileRunRegistry) IsAlive() bool {
	state, err := r.Get()
	if err != nil || state == nil {
		return false
	}
	return r.processManager.IsRunning(state.PID)
}

// Clear removes the run state file.
func (r *FileRunRegistry) Clear() error {
	err := os.Remove(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Ensure FileRunRegistry implements domain.RunRegistry.
var _ domain.RunRegistry = (*FileRunRegistry)(nil)
