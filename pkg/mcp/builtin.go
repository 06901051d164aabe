package mcp

import "context"

// BuiltinServer is an in-process pseudo-server usable without spawning any
// external MCP process. It mirrors the surface the Manager needs from a
// real server.
type BuiltinServer interface {
	Name() string
	Tools() []ToolInfo
	Call(ctx context.Context, tool string, args map[string]interface{}) (string, error)
	// AutoApprove lists tools safe to run without confirmation.
	AutoApprove() []string
}
