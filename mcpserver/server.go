// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes tools
// for code execution. It uses the mark3labs/mcp-go library to handle the
// protocol details and provides the execute_code tool as the primary
// interface for sandboxed code execution.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/codebox/config"
	"github.com/isdmx/codebox/executor"
)

// ToolName is the name of the code execution tool
const ToolName = "execute_code"

// CodeExecutor runs code on behalf of the server
type CodeExecutor interface {
	Execute(ctx context.Context, req executor.Request) (executor.Result, error)
	Languages() []string
}

// MCPServer represents the MCP server
type MCPServer struct {
	config     *config.Config
	logger     *zap.Logger
	executor   CodeExecutor
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
	serving    atomic.Bool
}

// toolResult is the JSON document returned as the tool's text content
type toolResult struct {
	ErrorType     string `json:"errorType,omitempty"`
	Message       string `json:"message,omitempty"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	ExitCode      int    `json:"exitCode"`
	CompileOutput string `json:"compileOutput,omitempty"`
	RuntimeError  string `json:"runtimeError,omitempty"`
	Truncated     bool   `json:"truncated"`
	DurationMs    int64  `json:"durationMs"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, exec CodeExecutor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		executor: exec,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.String("sandbox.backend", s.config.Sandbox.Backend),
		zap.String("sandbox.mount_mode", s.config.Sandbox.MountMode),
		zap.Int("sandbox.timeout_sec", s.config.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", s.config.Sandbox.MemoryMB),
		zap.Float64("sandbox.cpus", s.config.Sandbox.CPUs),
		zap.Int("sandbox.max_output_kb", s.config.Sandbox.MaxOutputKB),
		zap.Strings("languages", exec.Languages()),
	)

	s.mcpServer = server.NewMCPServer("codebox", "A multi-language code execution sandbox")
	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)

	s.registerExecuteCodeTool()

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        ToolName,
		Description: "Compile (if needed) and run source code in an isolated, network-less, resource-limited container and return its output",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Language of the source code",
					"enum":        s.executor.Languages(),
				},
				"code": map[string]any{
					"type":        "string",
					"description": "User-provided source code",
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Text fed to the program's standard input (optional)",
				},
				"memory_limit_bytes": map[string]any{
					"type":        "integer",
					"description": "Memory cap in bytes (optional, clamped to the server maximum)",
				},
				"cpu_limit": map[string]any{
					"type":        "number",
					"description": "CPU cap in cores (optional, clamped to the server maximum)",
				},
				"timeout_ms": map[string]any{
					"type":        "integer",
					"description": "Wall-clock limit in milliseconds (optional, clamped to the server maximum)",
				},
			},
			Required: []string{"language", "code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	req := executor.Request{
		Language: language,
		Code:     code,
		Stdin:    request.GetString("stdin", ""),
		Options: executor.Options{
			MemoryLimitBytes: int64(request.GetFloat("memory_limit_bytes", 0)),
			CPULimit:         request.GetFloat("cpu_limit", 0),
			Timeout:          time.Duration(request.GetFloat("timeout_ms", 0)) * time.Millisecond,
		},
	}

	s.logger.Info("code execution requested",
		zap.String("language", language),
		zap.Int("code_len", len(code)),
		zap.Bool("has_stdin", req.Stdin != ""))

	result, err := s.executor.Execute(ctx, req)
	if err != nil {
		kind := executor.KindOf(err)
		if kind == executor.ServerError {
			s.logger.Error("sandbox execution failed", zap.Error(err), zap.String("language", language))
		}
		message := err.Error()
		var execErr *executor.Error
		if errors.As(err, &execErr) {
			message = execErr.Message
		}
		return s.textResult(toolResult{ErrorType: string(kind), Message: message}, true)
	}

	out := toolResult{
		Stdout:        result.Stdout,
		Stderr:        result.Stderr,
		ExitCode:      result.ExitCode,
		CompileOutput: result.CompileOutput,
		RuntimeError:  result.RuntimeError,
		Truncated:     result.Truncated,
		DurationMs:    result.Duration.Milliseconds(),
	}
	if kind := result.ErrorKind(); kind != "" {
		out.ErrorType = string(kind)
		out.Message = result.Message()
	}

	return s.textResult(out, out.ErrorType != "")
}

func (*MCPServer) textResult(out toolResult, isError bool) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(body),
			},
		},
		IsError: isError,
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	s.serving.Store(true)
	return s.httpServer.Start(fmt.Sprintf(":%d", port))
}

// Shutdown stops the HTTP transport if it is running
func (s *MCPServer) Shutdown(ctx context.Context) error {
	if !s.serving.Load() {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
