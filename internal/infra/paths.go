package infra

import (
	"os"
	"path/filepath"
)

const dataDirName = ".timerd"

// Paths holds the on-disk layout for one timerd installation.
type Paths struct {
	DataDir    string // config, ledger, key, archive
	ConfigPath string // monitored apps + settings
	LedgerPath string // daily usage records
	RunPath    string // running-daemon state
	LogPath    string // daemon log
}

// DefaultPaths returns the layout under the user's home directory.
func DefaultPaths() Paths {
	home, _ := os.UserHomeDir()
	return PathsIn(filepath.Join(home, dataDirName))
}

// PathsIn returns the layout rooted at a specific directory (for testing).
func PathsIn(dataDir string) Paths {
	return Paths{
		DataDir:    dataDir,
		ConfigPath: filepath.Join(dataDir, "config.json"),
		LedgerPath: filepath.Join(dataDir, "usage.json"),
		RunPath:    filepath.Join(dataDir, "run.json"),
		LogPath:    filepath.Join(dataDir, "timerd.log"),
	}
}

// Ensure creates the data directory with owner-only permissions.
func (p Paths) Ensure() error {
	return os.MkdirAll(p.DataDir, 0700)
}
