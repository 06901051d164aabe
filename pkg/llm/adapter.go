package llm

import (
	"sort"
	"strings"

	"github.com/liliang-cn/gptsh/pkg/domain"
	"github.com/liliang-cn/gptsh/pkg/mcp"
)

// toolNameSep joins server and tool into the function name exposed to the
// model, so a call routes back to its server without an extra lookup.
const toolNameSep = "__"

// ToolName builds the qualified "<server>__<tool>" function name.
func ToolName(server, tool string) string {
	return server + toolNameSep + tool
}

// SplitToolName splits a model-emitted function name back into server and
// tool. ok is false when the name carries no separator.
func SplitToolName(name string) (server, tool string, ok bool) {
	server, tool, ok = strings.Cut(name, toolNameSep)
	if !ok || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// defaultInputSchema stands in for tools that advertise no schema.
func defaultInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"properties":           map[string]interface{}{},
		"additionalProperties": true,
	}
}

// BuildToolSpecs converts discovered tools into function specs, sorted by
// server then tool for a stable request payload.
func BuildToolSpecs(discovered map[string][]mcp.ToolInfo) []domain.ToolSpec {
	servers := make([]string, 0, len(discovered))
	for server := range discovered {
		servers = append(servers, server)
	}
	sort.Strings(servers)

	var specs []domain.ToolSpec
	for _, server := range servers {
		tools := append([]mcp.ToolInfo(nil), discovered[server]...)
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
		for _, tool := range tools {
			schema := tool.InputSchema
			if schema == nil {
				schema = defaultInputSchema()
			}
			specs = append(specs, domain.ToolSpec{
				Name:        ToolName(server, tool.Name),
				Description: tool.Description,
				InputSchema: schema,
			})
		}
	}
	return specs
}

// CallAccumulator merges streamed tool-call deltas into complete calls.
// Deltas with the same index belong to one call; id and name arrive once,
// argument fragments are concatenated in arrival order.
type CallAccumulator struct {
	byIndex map[int]*partialCall
	order   []int
	saw     bool
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func NewCallAccumulator() *CallAccumulator {
	return &CallAccumulator{byIndex: make(map[int]*partialCall)}
}

// Add folds one delta into the accumulator.
func (a *CallAccumulator) Add(delta ToolDelta) {
	a.saw = true
	p, ok := a.byIndex[delta.Index]
	if !ok {
		p = &partialCall{}
		a.byIndex[delta.Index] = p
		a.order = append(a.order, delta.Index)
	}
	if delta.ID != "" {
		p.id = delta.ID
	}
	if delta.Name != "" {
		p.name = delta.Name
	}
	p.args.WriteString(delta.Arguments)
}

// SawDelta reports whether any delta arrived.
func (a *CallAccumulator) SawDelta() bool { return a.saw }

// Calls returns the accumulated calls ordered by index. Entries that never
// received a name are incomplete and dropped.
func (a *CallAccumulator) Calls() []domain.ToolCall {
	indexes := append([]int(nil), a.order...)
	sort.Ints(indexes)

	var calls []domain.ToolCall
	for _, idx := range indexes {
		p := a.byIndex[idx]
		if p.name == "" {
			continue
		}
		args := p.args.String()
		if args == "" {
			args = "{}"
		}
		calls = append(calls, domain.ToolCall{
			ID:   p.id,
			Type: "function",
			Function: domain.FunctionCall{
				Name:      p.name,
				Arguments: args,
			},
		})
	}
	return calls
}
