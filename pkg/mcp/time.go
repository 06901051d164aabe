package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/liliang-cn/gptsh/pkg/domain"
)

// TimeServer exposes the current time as a builtin tool.
type TimeServer struct {
	now func() time.Time
}

// NewTimeServer creates the builtin "time" server.
func NewTimeServer() *TimeServer {
	return &TimeServer{now: time.Now}
}

func (s *TimeServer) Name() string { return "time" }

func (s *TimeServer) AutoApprove() []string { return []string{"now"} }

func (s *TimeServer) Tools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "now",
			Description: "Return the current UTC time in ISO-8601 format.",
			InputSchema: map[string]interface{}{
				"type":                 "object",
				"properties":           map[string]interface{}{},
				"additionalProperties": false,
			},
		},
	}
}

func (s *TimeServer) Call(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	if tool != "now" {
		return "", fmt.Errorf("%w: time:%s", domain.ErrToolNotFound, tool)
	}
	return s.now().UTC().Format("2006-01-02T15:04:05Z"), nil
}
