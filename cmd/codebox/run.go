package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/isdmx/codebox/executor"
	"github.com/isdmx/codebox/languages"
	"github.com/isdmx/codebox/logger"
	"github.com/isdmx/codebox/sandbox"
)

var (
	languageFlag  string
	fileFlag      string
	stdinFileFlag string
	timeoutFlag   time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one source file in a sandbox",
	Long: `Run one source file in a fresh sandbox and print the result as JSON.
The command exits with the program's exit code.

Examples:
  codebox run --language python --file hello.py
  echo 'puts gets' | codebox run --language ruby --file prog.rb --stdin-file -
  codebox run --language c --timeout 5s < main.c`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Language id (see 'codebox languages')")
	runCmd.Flags().StringVarP(&fileFlag, "file", "f", "-", "Source file, or - for standard input")
	runCmd.Flags().StringVar(&stdinFileFlag, "stdin-file", "", "File fed to the program's standard input, or - for standard input")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Wall-clock limit (defaults to sandbox.timeout_sec)")
	_ = runCmd.MarkFlagRequired("language")
	rootCmd.AddCommand(runCmd)
}

// runOutput is printed to stdout by the run command
type runOutput struct {
	ErrorType string `json:"errorType,omitempty"`
	Message   string `json:"message,omitempty"`
	*executor.Result
	DurationMs int64 `json:"durationMs,omitempty"`
}

func runRun(cmd *cobra.Command, _ []string) error {
	if fileFlag == "-" && stdinFileFlag == "-" {
		return fmt.Errorf("--file and --stdin-file cannot both read standard input")
	}

	code, err := readInput(fileFlag)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	var stdin string
	if stdinFileFlag != "" {
		stdin, err = readInput(stdinFileFlag)
		if err != nil {
			return fmt.Errorf("reading stdin file: %w", err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	registry, err := languages.NewRegistryFromConfig(cfg)
	if err != nil {
		return err
	}

	engine, err := sandbox.NewEngine(log, cfg)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("failed to close engine", zap.Error(err))
		}
	}()

	exec := executor.NewFromConfig(log, registry, sandbox.NewRuntimeFromConfig(log, engine, cfg), cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := exec.Execute(ctx, executor.Request{
		Language: languageFlag,
		Code:     code,
		Stdin:    stdin,
		Options:  executor.Options{Timeout: timeoutFlag},
	})

	var (
		out      runOutput
		exitCode int
	)
	if err != nil {
		out.ErrorType = string(executor.KindOf(err))
		out.Message = err.Error()
		var execErr *executor.Error
		if errors.As(err, &execErr) {
			out.Message = execErr.Message
		}
		exitCode = 1
	} else {
		out.Result = &result
		out.DurationMs = result.Duration.Milliseconds()
		if kind := result.ErrorKind(); kind != "" {
			out.ErrorType = string(kind)
			out.Message = result.Message()
		}
		exitCode = result.ExitCode
		if exitCode == 0 && out.ErrorType != "" {
			exitCode = 1
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	if exitCode != 0 {
		return exitCodeError{code: exitCode}
	}
	return nil
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
