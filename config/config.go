package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server" yaml:"server"`
	API       APIConfig           `mapstructure:"api" yaml:"api"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox" yaml:"sandbox"`
	Logging   LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Languages map[string]Language `mapstructure:"languages" yaml:"languages"`
}

// ServerConfig holds the MCP server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	HTTPPort  int    `mapstructure:"http_port" yaml:"http_port"`
}

// APIConfig holds the JSON HTTP API configuration
type APIConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	Port           int     `mapstructure:"port" yaml:"port"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	MaxBodyKB      int     `mapstructure:"max_body_kb" yaml:"max_body_kb"`
}

// SandboxConfig holds sandbox configuration. Sandboxes never get a network,
// so there is no switch for it.
type SandboxConfig struct {
	Backend           string  `mapstructure:"backend" yaml:"backend"`
	TimeoutSec        int     `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	MaxTimeoutSec     int     `mapstructure:"max_timeout_sec" yaml:"max_timeout_sec"`
	MemoryMB          int     `mapstructure:"memory_mb" yaml:"memory_mb"`
	MaxMemoryMB       int     `mapstructure:"max_memory_mb" yaml:"max_memory_mb"`
	CPUs              float64 `mapstructure:"cpus" yaml:"cpus"`
	MaxCPUs           float64 `mapstructure:"max_cpus" yaml:"max_cpus"`
	PidsLimit         int64   `mapstructure:"pids_limit" yaml:"pids_limit"`
	MaxOutputKB       int     `mapstructure:"max_output_kb" yaml:"max_output_kb"`
	ScratchDir        string  `mapstructure:"scratch_dir" yaml:"scratch_dir"`
	MountMode         string  `mapstructure:"mount_mode" yaml:"mount_mode"`
	PullImages        bool    `mapstructure:"pull_images" yaml:"pull_images"`
	CompileTimeoutSec int     `mapstructure:"compile_timeout_sec" yaml:"compile_timeout_sec"`
	CleanupTimeoutSec int     `mapstructure:"cleanup_timeout_sec" yaml:"cleanup_timeout_sec"`
	PruneOnStart      bool    `mapstructure:"prune_on_start" yaml:"prune_on_start"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// Language overrides the built-in settings of one language
type Language struct {
	Image       string            `mapstructure:"image" yaml:"image,omitempty"`
	Environment map[string]string `mapstructure:"environment" yaml:"environment,omitempty"`
}

// Backend names
const (
	BackendDocker    = "docker"
	BackendDockerCLI = "docker-cli"
	BackendPodman    = "podman"
)

// Mount modes
const (
	MountBind = "bind"
	MountCopy = "copy"
)

// New loads the configuration from the default search paths
func New() (*Config, error) {
	return Load("")
}

// Load loads and validates the application configuration. An empty path
// searches for config.yaml in the working directory and ./config.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CODEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8081)
	v.SetDefault("api.rate_limit_rps", 0)
	v.SetDefault("api.rate_limit_burst", 0)
	v.SetDefault("api.max_body_kb", 1024)

	v.SetDefault("sandbox.backend", BackendDocker)
	v.SetDefault("sandbox.timeout_sec", 10)
	v.SetDefault("sandbox.max_timeout_sec", 60)
	v.SetDefault("sandbox.memory_mb", 128)
	v.SetDefault("sandbox.max_memory_mb", 1024)
	v.SetDefault("sandbox.cpus", 1.0)
	v.SetDefault("sandbox.max_cpus", 4.0)
	v.SetDefault("sandbox.pids_limit", 256)
	v.SetDefault("sandbox.max_output_kb", 1024)
	v.SetDefault("sandbox.scratch_dir", os.TempDir())
	v.SetDefault("sandbox.mount_mode", MountBind)
	v.SetDefault("sandbox.pull_images", true)
	v.SetDefault("sandbox.compile_timeout_sec", 60)
	v.SetDefault("sandbox.cleanup_timeout_sec", 10)
	v.SetDefault("sandbox.prune_on_start", false)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be a valid port, got: %d", c.API.Port)
	}

	if c.API.RateLimitRPS < 0 || c.API.RateLimitBurst < 0 {
		return fmt.Errorf("api rate limit must not be negative")
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MaxTimeoutSec < c.Sandbox.TimeoutSec {
		return fmt.Errorf("sandbox.max_timeout_sec must be at least sandbox.timeout_sec, got: %d", c.Sandbox.MaxTimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.MaxMemoryMB < c.Sandbox.MemoryMB {
		return fmt.Errorf("sandbox.max_memory_mb must be at least sandbox.memory_mb, got: %d", c.Sandbox.MaxMemoryMB)
	}

	if c.Sandbox.CPUs <= 0 {
		return fmt.Errorf("sandbox.cpus must be positive, got: %g", c.Sandbox.CPUs)
	}

	if c.Sandbox.MaxCPUs < c.Sandbox.CPUs {
		return fmt.Errorf("sandbox.max_cpus must be at least sandbox.cpus, got: %g", c.Sandbox.MaxCPUs)
	}

	if c.Sandbox.MaxOutputKB <= 0 {
		return fmt.Errorf("sandbox.max_output_kb must be positive, got: %d", c.Sandbox.MaxOutputKB)
	}

	switch c.Sandbox.Backend {
	case BackendDocker, BackendDockerCLI, BackendPodman:
	default:
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Sandbox.MountMode != MountBind && c.Sandbox.MountMode != MountCopy {
		return fmt.Errorf("invalid sandbox.mount_mode: %s, must be 'bind' or 'copy'", c.Sandbox.MountMode)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the default run step timeout as a duration. The compile
// step has its own budget, see GetCompileTimeout.
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// GetMaxTimeout returns the largest timeout a request may ask for
func (c *Config) GetMaxTimeout() time.Duration {
	return time.Duration(c.Sandbox.MaxTimeoutSec) * time.Second
}

// GetCompileTimeout returns the time budget of the compile step
func (c *Config) GetCompileTimeout() time.Duration {
	if c.Sandbox.CompileTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Sandbox.CompileTimeoutSec) * time.Second
}

// GetCleanupTimeout returns the time budget for tearing a sandbox down
func (c *Config) GetCleanupTimeout() time.Duration {
	if c.Sandbox.CleanupTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Sandbox.CleanupTimeoutSec) * time.Second
}
