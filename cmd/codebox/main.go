// Package main is the entry point for the codebox command.
//
// codebox runs untrusted source code in eleven languages inside network-less,
// resource-limited containers. The serve command exposes execution as an MCP
// tool and a JSON HTTP API; run executes a single file from the terminal.
//
// The server uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/isdmx/codebox/config"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "codebox",
	Short: "codebox - multi-language code execution sandbox",
	Long: `codebox compiles and runs untrusted source code inside isolated,
network-less, resource-limited containers.

Configuration is read from config.yaml in the working directory or ./config,
or from --config. Every key can be overridden with a CODEBOX_ environment
variable, e.g. CODEBOX_SANDBOX_TIMEOUT_SEC=5.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to the configuration file")
}

// exitCodeError makes main exit with code without printing anything
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
