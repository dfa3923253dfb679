// Package mcpserver binds the engine's operations to MCP tools over stdio.
// Every tool takes a flat argument record with an explicit workspace_path and
// returns either the operation's success payload or a structured error
// envelope; nothing is ever written to stdout except the protocol itself.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskmcp/taskmcp/internal/engine"
	"github.com/taskmcp/taskmcp/internal/types"
)

// Server wraps an MCP server bound to one engine.
type Server struct {
	engine *engine.Engine
	mcp    *mcp.Server
}

// New builds the MCP server and registers every tool.
func New(eng *engine.Engine, version string) *Server {
	s := &Server{
		engine: eng,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "task-mcp",
			Version: version,
		}, nil),
	}
	s.registerTaskTools()
	s.registerEntityTools()
	s.registerAuditTools()
	return s
}

// Run serves MCP over stdio until the context is canceled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// errorEnvelope is the wire shape of a failed tool call.
type errorEnvelope struct {
	Error      errorBody `json:"error"`
	Suggestion string    `json:"suggestion,omitempty"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func envelopeFor(err error) errorEnvelope {
	var terr *types.Error
	if errors.As(err, &terr) {
		return errorEnvelope{
			Error: errorBody{
				Code:    string(terr.Kind),
				Message: terr.Message,
				Details: terr.Details,
			},
			Suggestion: terr.Suggestion,
		}
	}
	return errorEnvelope{
		Error: errorBody{Code: string(types.KindInternal), Message: err.Error()},
	}
}

// reply renders a success payload or an error envelope as the tool result.
// Domain errors become IsError results so the caller sees the structured
// envelope rather than a protocol failure.
func reply(payload any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		data, merr := json.Marshal(envelopeFor(err))
		if merr != nil {
			return nil, nil, fmt.Errorf("failed to serialize error envelope: %w", merr)
		}
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil, nil
	}
	data, merr := json.Marshal(payload)
	if merr != nil {
		return nil, nil, fmt.Errorf("failed to serialize response: %w", merr)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
