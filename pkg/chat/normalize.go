// Package chat implements the streaming tool-use turn orchestrator and its
// rendering helpers.
package chat

import "github.com/liliang-cn/gptsh/pkg/domain"

// Normalize repairs a message history so the LLM API accepts it: every
// assistant message carrying tool_calls must be followed by one tool
// message per call id before anything else. Assistant messages whose call
// ids are not fully covered are dropped together with their partial
// results, as are orphan tool messages. The function is idempotent and
// never mutates its input.
func Normalize(history []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(history))
	i := 0
	for i < len(history) {
		msg := history[i]

		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			// Gather the contiguous run of tool messages that follows.
			j := i + 1
			for j < len(history) && history[j].Role == "tool" {
				j++
			}
			results := history[i+1 : j]

			byID := make(map[string]*domain.Message, len(results))
			for k := range results {
				r := results[k]
				if _, dup := byID[r.ToolCallID]; !dup {
					byID[r.ToolCallID] = &results[k]
				}
			}

			covered := true
			for _, tc := range msg.ToolCalls {
				if _, ok := byID[tc.ID]; !ok {
					covered = false
					break
				}
			}

			if covered {
				out = append(out, msg)
				// Keep exactly one result per call, in call order; stray
				// results with unknown ids are dropped.
				for _, tc := range msg.ToolCalls {
					out = append(out, *byID[tc.ID])
				}
			}
			i = j
			continue
		}

		if msg.Role == "tool" {
			// Orphan tool message with no preceding assistant stub.
			i++
			continue
		}

		out = append(out, msg)
		i++
	}
	return out
}
