package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory.
const HomeEnv = "TRIAGE_HOME"

// Paths are the on-disk locations the triage binary reads and writes.
type Paths struct {
	Base    string
	Config  string
	EnvFile string
	Logs    string
	Data    string
}

// ResolvePaths roots every path at $TRIAGE_HOME, or ~/.triage when unset.
func ResolvePaths() (Paths, error) {
	base := os.Getenv(HomeEnv)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, ".triage")
	}
	return PathsAt(base), nil
}

// PathsAt lays out the standard files under base.
func PathsAt(base string) Paths {
	return Paths{
		Base:    base,
		Config:  filepath.Join(base, "config.yaml"),
		EnvFile: filepath.Join(base, ".env"),
		Logs:    filepath.Join(base, "logs"),
		Data:    filepath.Join(base, "data"),
	}
}

// EnsureDirs creates the base, log and data directories owner-only.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Logs, p.Data} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
