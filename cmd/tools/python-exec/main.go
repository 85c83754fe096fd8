package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/pyexec/internal/config"
	"github.com/michaelbrown/pyexec/internal/executor"
	"github.com/michaelbrown/pyexec/internal/logging"
	"github.com/michaelbrown/pyexec/internal/storage/sqlite"
)

// maxText caps the tool result so a chatty script cannot flood the caller.
const maxText = 16000

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "python-exec: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("PYEXEC_CONFIG"))
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol, logs go to stderr
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	opts := []executor.Option{executor.WithLogger(logger)}
	if cfg.Storage.Enabled {
		store, err := sqlite.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()
		opts = append(opts, executor.WithStore(store))
	}

	pipeline, err := executor.New(cfg.Executor(), opts...)
	if err != nil {
		return err
	}

	s := server.NewMCPServer("pyexec-python-exec", "0.1.0")
	s.AddTool(pythonExecuteTool, (&tool{pipeline: pipeline, logger: logger}).handle)
	return server.ServeStdio(s)
}

var pythonExecuteTool = mcp.Tool{
	Name: "python_execute",
	Description: "Run a Python script in an nsjail sandbox. The script must define main() " +
		"returning a JSON-serializable value. Returns {\"result\", \"stdout\"} on success, " +
		"or {\"error\", \"exit_code\", \"stderr\", \"stdout\"} on failure.",
	InputSchema: mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"script": map[string]any{
				"type":        "string",
				"description": "Python source defining main()",
			},
		},
		Required: []string{"script"},
	},
}

type tool struct {
	pipeline *executor.Pipeline
	logger   *slog.Logger
}

func (t *tool) handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult(executor.InputError(executor.MsgInvalidJSON)), nil
	}
	script, err := executor.ValidateScript(args["script"])
	if err != nil {
		return errResult(executor.AsError(err)), nil
	}

	resp, err := t.pipeline.Execute(ctx, script)
	if err != nil {
		return errResult(executor.AsError(err)), nil
	}
	if resp.Degraded {
		t.logger.Warn("tool call ran without isolation")
	}
	return textResult(resp, false), nil
}

func errResult(e *executor.Error) *mcp.CallToolResult {
	return textResult(e, true)
}

func textResult(v any, isError bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error": %q}`, executor.MsgRunFailed))
		isError = true
	}
	text := string(data)
	if len(text) > maxText {
		text = text[:maxText] + "\n... (output truncated)"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: isError,
	}
}
