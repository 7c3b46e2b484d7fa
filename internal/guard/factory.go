package guard

import (
	"fmt"
	"time"

	"pdm-go/internal/config"
	"pdm-go/internal/pdm"
)

// NewGuardFromConfig creates a Guard based on the guard config type.
// workDir is the working copy the guard protects; it determines the
// default lock file location.
func NewGuardFromConfig(cfg config.GuardConfig, workDir string) (pdm.Guard, error) {
	wait := time.Duration(cfg.WaitSeconds) * time.Second
	switch cfg.Type {
	case "flock", "":
		path := cfg.LockPath
		if path == "" {
			path = LockPathFor(workDir)
		}
		return NewFlockGuard(path, wait)
	case "memory":
		return NewMemoryGuard(wait), nil
	default:
		return nil, fmt.Errorf("unknown guard type: %q", cfg.Type)
	}
}
