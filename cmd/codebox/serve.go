package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/codebox/api"
	"github.com/isdmx/codebox/config"
	"github.com/isdmx/codebox/executor"
	"github.com/isdmx/codebox/languages"
	"github.com/isdmx/codebox/logger"
	"github.com/isdmx/codebox/mcpserver"
	"github.com/isdmx/codebox/sandbox"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server and the HTTP API",
	Long: `Start the MCP server on the configured transport (stdio or http) and,
unless api.enabled is false, the JSON HTTP API.

Examples:
  codebox serve
  codebox serve --config /etc/codebox/config.yaml
  CODEBOX_SERVER_TRANSPORT=http codebox serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app := newApp(cfg)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func newApp(cfg *config.Config) *fx.App {
	return fx.New(
		appOptions(cfg),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}

func appOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),

		// Provide dependencies
		fx.Provide(
			// Logger with configuration
			logger.NewFromConfig,

			// Container engine based on sandbox.backend
			sandbox.NewEngine,

			// Language table with configured overrides
			languages.NewRegistryFromConfig,

			sandbox.NewRuntimeFromConfig,
			executor.NewFromConfig,

			func(e *executor.Executor) mcpserver.CodeExecutor { return e },
			func(e *executor.Executor) api.CodeExecutor { return e },

			mcpserver.New,
			api.New,
		),

		fx.Invoke(registerHooks),
	)
}

func registerHooks(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	log *zap.Logger,
	engine sandbox.Engine,
	mcpServer *mcpserver.MCPServer,
	apiServer *api.Server,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.Sandbox.PruneOnStart {
				removed, err := engine.RemoveStale(ctx)
				if err != nil {
					log.Warn("failed to remove stale sandboxes", zap.Error(err))
				} else {
					log.Info("removed stale sandboxes", zap.Int("count", removed))
				}
			}

			if cfg.API.Enabled {
				if err := apiServer.Start(); err != nil {
					return err
				}
			}

			go serveMCP(cfg, log, mcpServer, shutdowner)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var errs []error
			if err := mcpServer.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
			if err := apiServer.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
			if err := engine.Close(); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	})
}

// serveMCP blocks on the MCP transport and stops the app when it ends
func serveMCP(cfg *config.Config, log *zap.Logger, server *mcpserver.MCPServer, shutdowner fx.Shutdowner) {
	var err error
	switch cfg.Server.Transport {
	case "stdio":
		err = server.ServeStdio()
	case "http":
		err = server.ServeHTTP()
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("MCP server stopped", zap.Error(err))
		_ = shutdowner.Shutdown(fx.ExitCode(1))
		return
	}
	if cfg.Server.Transport == "stdio" {
		// stdin closed: the client went away
		_ = shutdowner.Shutdown()
	}
}
