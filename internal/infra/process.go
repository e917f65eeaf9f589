package infra

import (
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/timerapps/timerd/internal/domain"
)

// GopsProcessManager implements domain.ProcessManager using gopsutil.
// Liveness checks verify the process name so a recycled PID from an
// unrelated process is not mistaken for a running daemon.
type GopsProcessManager struct {
	marker string
}

// NewProcessManager creates a process manager matching the timerd binary.
func NewProcessManager() domain.ProcessManager {
	return &GopsProcessManager{marker: "timerd"}
}

// NewProcessManagerWithMarker creates a process manager with a custom
// name marker (for testing).
func NewProcessManagerWithMarker(marker string) domain.ProcessManager {
	return &GopsProcessManager{marker: marker}
}

// IsRunning reports whether pid exists and its name matches the marker.
func (pm *GopsProcessManager) IsRunning(pid int) bool {
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	name, err := p.Name()
	if err != nil {
		// Process exists but name unreadable; assume it is ours.
		return true
	}
	return strings.Contains(strings.ToLower(name), pm.marker)
}

// GetCurrentPID returns the current process PID.
func (pm *GopsProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure GopsProcessManager implements domain.ProcessManager.
var _ domain.ProcessManager = (*GopsProcessManager)(nil)
