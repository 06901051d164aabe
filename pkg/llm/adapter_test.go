package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/gptsh/pkg/mcp"
)

func TestToolNameRoundTrip(t *testing.T) {
	name := ToolName("fs", "read_file")
	assert.Equal(t, "fs__read_file", name)

	server, tool, ok := SplitToolName(name)
	require.True(t, ok)
	assert.Equal(t, "fs", server)
	assert.Equal(t, "read_file", tool)
}

func TestSplitToolNameInvalid(t *testing.T) {
	for _, name := range []string{"noseparator", "__tool", "server__", ""} {
		_, _, ok := SplitToolName(name)
		assert.False(t, ok, name)
	}
}

func TestSplitToolNameKeepsExtraSeparators(t *testing.T) {
	// Only the first separator splits; tool names may contain "__".
	server, tool, ok := SplitToolName("fs__read__file")
	require.True(t, ok)
	assert.Equal(t, "fs", server)
	assert.Equal(t, "read__file", tool)
}

func TestBuildToolSpecs(t *testing.T) {
	discovered := map[string][]mcp.ToolInfo{
		"fs": {
			{Name: "write", Description: "write a file"},
			{Name: "read", Description: "read a file", InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{"type": "string"},
				},
			}},
		},
		"time": {
			{Name: "now"},
		},
	}

	specs := BuildToolSpecs(discovered)
	require.Len(t, specs, 3)

	// Stable order: by server, then tool.
	assert.Equal(t, "fs__read", specs[0].Name)
	assert.Equal(t, "fs__write", specs[1].Name)
	assert.Equal(t, "time__now", specs[2].Name)

	// Missing schema gets the permissive default.
	assert.Equal(t, "object", specs[1].InputSchema["type"])
	assert.Equal(t, true, specs[1].InputSchema["additionalProperties"])
	// Present schema is kept.
	assert.Contains(t, specs[0].InputSchema["properties"], "path")
}

func TestCallAccumulatorConcatenatesByIndex(t *testing.T) {
	acc := NewCallAccumulator()
	assert.False(t, acc.SawDelta())

	acc.Add(ToolDelta{Index: 0, ID: "call_1", Name: "fs__read"})
	acc.Add(ToolDelta{Index: 0, Arguments: `{"path":`})
	acc.Add(ToolDelta{Index: 1, ID: "call_2", Name: "time__now", Arguments: "{}"})
	acc.Add(ToolDelta{Index: 0, Arguments: `"/x"}`})

	assert.True(t, acc.SawDelta())
	calls := acc.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "fs__read", calls[0].Function.Name)
	assert.Equal(t, `{"path":"/x"}`, calls[0].Function.Arguments)
	assert.Equal(t, "time__now", calls[1].Function.Name)
	assert.Equal(t, "{}", calls[1].Function.Arguments)
}

func TestCallAccumulatorDropsNameless(t *testing.T) {
	acc := NewCallAccumulator()
	acc.Add(ToolDelta{Index: 0, Arguments: `{"x":1}`})
	assert.True(t, acc.SawDelta())
	assert.Empty(t, acc.Calls())
}

func TestCallAccumulatorEmptyArgsBecomeObject(t *testing.T) {
	acc := NewCallAccumulator()
	acc.Add(ToolDelta{Index: 0, ID: "c1", Name: "time__now"})
	calls := acc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "{}", calls[0].Function.Arguments)
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model  string
		vision bool
		pdf    bool
	}{
		{"gpt-4o", true, false},
		{"gpt-4o-mini", true, false},
		{"openrouter/anthropic/claude-sonnet-4", true, true},
		{"gemini-2.5-pro", true, true},
		{"qwen2.5-vl-7b", true, false},
		{"gpt-3.5-turbo", false, false},
		{"llama3", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := ModelCapabilities(tt.model)
			assert.Equal(t, tt.vision, caps.Vision, "vision")
			assert.Equal(t, tt.pdf, caps.PDF, "pdf")
		})
	}
}
