package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/codebox/config"
)

// NewEngine creates the engine selected by sandbox.backend
func NewEngine(logger *zap.Logger, cfg *config.Config) (Engine, error) {
	switch cfg.Sandbox.Backend {
	case config.BackendDocker:
		return NewDockerEngine(logger)
	case config.BackendDockerCLI:
		return NewCLIEngine(logger, "docker"), nil
	case config.BackendPodman:
		return NewCLIEngine(logger, "podman"), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}

// NewRuntimeFromConfig creates a Runtime using the sandbox section of cfg
func NewRuntimeFromConfig(logger *zap.Logger, engine Engine, cfg *config.Config) *Runtime {
	return NewRuntime(logger, engine, NewMaterializer(RealFileSystem{}, cfg.Sandbox.ScratchDir), RuntimeConfig{
		MountMode:      cfg.Sandbox.MountMode,
		PullImages:     cfg.Sandbox.PullImages,
		MaxOutputBytes: cfg.Sandbox.MaxOutputKB * BytesPerKB,
		CleanupTimeout: cfg.GetCleanupTimeout(),
	})
}
