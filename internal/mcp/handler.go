package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tendant/simple-document/pkg/docstore/command"
)

// Handler exposes every command of a registry as an MCP tool
type Handler struct {
	registry *command.Registry
	logger   *slog.Logger
}

// NewHandler creates a new instance of Handler
func NewHandler(registry *command.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, logger: logger}
}

// RegisterTools registers one tool per command with the MCP server
func (h *Handler) RegisterTools(s *server.MCPServer) {
	for _, spec := range h.registry.Specs() {
		s.AddTool(Tool(spec), h.Call)
	}
	h.logger.Info("mcp tools registered", "count", h.registry.Len())
}

// Tool describes spec as an MCP tool with a JSON schema of its params
func Tool(spec command.Spec) mcp.Tool {
	props := make(map[string]any, len(spec.Params))
	var required []string
	for _, p := range spec.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Type == command.TypeObject {
			prop["additionalProperties"] = map[string]any{"type": "string"}
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return mcp.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

// Call dispatches a tool call to the command of the same name. Failures are
// reported as tool errors so the client sees the message.
func (h *Handler) Call(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.Params.Name
	res, err := h.registry.DispatchMap(ctx, name, request.GetArguments())
	switch {
	case errors.Is(err, command.ErrUnknownCommand), errors.Is(err, command.ErrInvalidArguments):
		return mcp.NewToolResultError(err.Error()), nil
	case err != nil:
		return nil, err
	case !res.OK:
		return mcp.NewToolResultError(res.Text()), nil
	}
	return mcp.NewToolResultText(res.Text()), nil
}
