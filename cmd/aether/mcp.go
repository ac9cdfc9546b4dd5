package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/aether/internal/relay"
	"github.com/michaelbrown/aether/internal/server"
)

const maxToolOutput = 16000

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the execute_code tool over MCP stdio",
	Long: `Run an MCP server on stdin/stdout exposing one tool, execute_code, that
runs Python in a fresh E2B sandbox. Logs go to stderr.

Example MCP client entry:
  {"command": "aether", "args": ["mcp"], "env": {"E2B_API_KEY": "..."}}`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	gw, err := newGateway(cfg, false, false)
	if err != nil {
		return err
	}
	defer gw.Close()

	sessions := server.NewSessionManager()
	r := relay.New(gw.provider, cfg.SandboxPolicy(), sessions, gw.logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sessions.CloseAll(ctx); err != nil {
			gw.logger.Error().Err(err).Msg("Failed to destroy sandboxes")
		}
	}()

	s := mcpserver.NewMCPServer("aether", "1.2.0")
	s.AddTool(executeCodeTool(), codeHandler(r))

	gw.logger.Info().Msg("MCP server ready on stdio")
	if err := mcpserver.ServeStdio(s); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func executeCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "execute_code",
		Description: "Execute Python code in a fresh, isolated cloud sandbox. The sandbox is destroyed afterwards, so no state carries over between calls.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source code to execute",
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": "Sandbox lifetime in seconds (optional)",
				},
			},
			Required: []string{"code"},
		},
	}
}

func codeHandler(r *relay.Relay) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		if args == nil {
			return errResult("error: invalid arguments"), nil
		}

		code, ok := args["code"].(string)
		if !ok {
			return errResult("error: 'code' is required"), nil
		}
		timeout := 0
		if t, ok := args["timeout"].(float64); ok {
			if t < 0 || t != float64(int(t)) {
				return errResult("error: 'timeout' must be a non-negative integer"), nil
			}
			timeout = int(t)
		}

		out, err := r.Execute(ctx, relay.Request{Code: code, Timeout: timeout})
		if err != nil {
			var execErr *relay.ExecutionError
			if errors.As(err, &execErr) && execErr.SandboxID != "" {
				return errResult(fmt.Sprintf("error (sandbox %s): %v", execErr.SandboxID, err)), nil
			}
			return errResult(fmt.Sprintf("error: %v", err)), nil
		}

		text := formatOutput(out)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
			IsError: out.UserError != nil,
		}, nil
	}
}

func formatOutput(out *relay.Output) string {
	var b strings.Builder
	b.WriteString(out.Stdout)
	if out.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("STDERR:\n" + out.Stderr)
	}
	if out.UserError != nil {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", out.UserError.Name, out.UserError.Value)
		if out.UserError.Traceback != "" {
			b.WriteString("\n" + out.UserError.Traceback)
		}
	}
	if b.Len() == 0 {
		return "(no output)"
	}

	text := b.String()
	if len(text) > maxToolOutput {
		cut := maxToolOutput
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "\n... (output truncated)"
	}
	return text
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
