package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/codebox/config"
	"github.com/isdmx/codebox/executor"
)

// MockExecutor implements CodeExecutor for testing
type MockExecutor struct {
	lastRequest executor.Request
	result      executor.Result
	err         error
}

func (m *MockExecutor) Execute(_ context.Context, req executor.Request) (executor.Result, error) {
	m.lastRequest = req
	return m.result, m.err
}

func (*MockExecutor) Languages() []string {
	return []string{"c", "python"}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Transport: "stdio", HTTPPort: 8080},
		Sandbox: config.SandboxConfig{Backend: config.BackendDocker, TimeoutSec: 10, MemoryMB: 128, CPUs: 1, MaxOutputKB: 1024},
		Logging: config.LoggingConfig{Mode: "production", Level: "info"},
	}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = ToolName
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestNewMCPServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	mockExecutor := &MockExecutor{}

	server, err := New(cfg, logger, mockExecutor)
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Equal(t, logger, server.logger)
	assert.Equal(t, mockExecutor, server.executor)
	assert.NotNil(t, server.GetMCPServer())
	assert.NoError(t, server.Shutdown(context.Background()), "shutdown before serving is a no-op")
}

func TestHandleExecuteCode(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockExecutor := &MockExecutor{result: executor.Result{Stdout: "hi", ExitCode: 0, Duration: 1500 * time.Millisecond}}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		res, err := server.handleExecuteCode(context.Background(), callRequest(map[string]any{
			"language":           "python",
			"code":               "print(input())",
			"stdin":              "hi",
			"memory_limit_bytes": float64(64 << 20),
			"cpu_limit":          0.5,
			"timeout_ms":         float64(2500),
		}))
		require.NoError(t, err)
		assert.False(t, res.IsError)

		out := decodeResult(t, res)
		assert.Equal(t, "hi", out["stdout"])
		assert.Equal(t, float64(0), out["exitCode"])
		assert.Equal(t, float64(1500), out["durationMs"])
		assert.NotContains(t, out, "errorType")

		assert.Equal(t, executor.Request{
			Language: "python",
			Code:     "print(input())",
			Stdin:    "hi",
			Options: executor.Options{
				MemoryLimitBytes: 64 << 20,
				CPULimit:         0.5,
				Timeout:          2500 * time.Millisecond,
			},
		}, mockExecutor.lastRequest)
	})

	t.Run("CompilationError", func(t *testing.T) {
		mockExecutor := &MockExecutor{result: executor.Result{
			ExitCode:      1,
			Stderr:        "error: expected ';'",
			CompileOutput: "error: expected ';'",
			CompileFailed: true,
		}}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		res, err := server.handleExecuteCode(context.Background(), callRequest(map[string]any{
			"language": "c",
			"code":     "int main() { return 0 }",
		}))
		require.NoError(t, err)
		assert.True(t, res.IsError)

		out := decodeResult(t, res)
		assert.Equal(t, "CompilationError", out["errorType"])
		assert.Equal(t, "error: expected ';'", out["compileOutput"])
	})

	t.Run("ValidationError", func(t *testing.T) {
		mockExecutor := &MockExecutor{err: &executor.Error{Kind: executor.ValidationError, Message: "unsupported language: cobol"}}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		res, err := server.handleExecuteCode(context.Background(), callRequest(map[string]any{
			"language": "cobol",
			"code":     "DISPLAY 'HI'.",
		}))
		require.NoError(t, err)
		assert.True(t, res.IsError)

		out := decodeResult(t, res)
		assert.Equal(t, "ValidationError", out["errorType"])
		assert.Equal(t, "unsupported language: cobol", out["message"])
	})

	t.Run("ServerError", func(t *testing.T) {
		mockExecutor := &MockExecutor{err: errors.New("daemon down")}
		server, err := New(testConfig(), zaptest.NewLogger(t), mockExecutor)
		require.NoError(t, err)

		res, err := server.handleExecuteCode(context.Background(), callRequest(map[string]any{
			"language": "python",
			"code":     "print(1)",
		}))
		require.NoError(t, err)
		assert.True(t, res.IsError)

		out := decodeResult(t, res)
		assert.Equal(t, "ServerError", out["errorType"])
		assert.Equal(t, "daemon down", out["message"])
	})

	t.Run("MissingCode", func(t *testing.T) {
		server, err := New(testConfig(), zaptest.NewLogger(t), &MockExecutor{})
		require.NoError(t, err)

		_, err = server.handleExecuteCode(context.Background(), callRequest(map[string]any{"language": "python"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "code parameter is required")
	})
}
