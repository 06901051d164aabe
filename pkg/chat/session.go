package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/gptsh/pkg/approval"
	"github.com/liliang-cn/gptsh/pkg/domain"
	"github.com/liliang-cn/gptsh/pkg/llm"
	"github.com/liliang-cn/gptsh/pkg/log"
	"github.com/liliang-cn/gptsh/pkg/mcp"
	"github.com/liliang-cn/gptsh/pkg/progress"
)

const (
	// progressDebounce delays the per-tool progress line so fast tools
	// never flash a spinner.
	progressDebounce = 500 * time.Millisecond
	// argPreviewChars caps the argument preview shown on progress lines.
	argPreviewChars = 500
)

// ToolCaller is the tool-execution capability the orchestrator consumes;
// *mcp.Manager satisfies it.
type ToolCaller interface {
	ListToolsAll(ctx context.Context) map[string][]mcp.ToolInfo
	CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (string, error)
}

// Options tunes one chat session.
type Options struct {
	Model           string
	SystemPrompt    string
	Temperature     *float64
	MaxTokens       int
	ReasoningEffort string
	// ToolChoice is "", "auto", "required" or "none".
	ToolChoice string
	// NoTools disables tool advertising and execution entirely.
	NoTools bool
}

// Session drives chat turns against one model, executing tool calls
// between completions until the model produces a final answer.
type Session struct {
	client   llm.Client
	tools    ToolCaller
	policy   approval.Policy
	reporter progress.Reporter
	opts     Options

	history []domain.Message
	usage   domain.Usage
}

// NewSession creates a session. A nil reporter disables progress output
// and a nil policy denies every tool that is not auto-allowed.
func NewSession(client llm.Client, tools ToolCaller, policy approval.Policy, reporter progress.Reporter, opts Options) *Session {
	if reporter == nil {
		reporter = progress.NoOp{}
	}
	if policy == nil {
		policy = approval.DenyUnlisted{Rules: approval.NewRules(nil)}
	}
	return &Session{
		client:   client,
		tools:    tools,
		policy:   policy,
		reporter: reporter,
		opts:     opts,
	}
}

// Options returns the current turn options.
func (s *Session) Options() Options { return s.opts }

// SetOptions replaces the turn options; history is retained.
func (s *Session) SetOptions(opts Options) { s.opts = opts }

// SetClient swaps the LLM client, e.g. after a provider change.
func (s *Session) SetClient(client llm.Client) { s.client = client }

// History returns the committed message history.
func (s *Session) History() []domain.Message { return s.history }

// SetHistory replaces the history, e.g. when resuming a saved session.
func (s *Session) SetHistory(msgs []domain.Message) { s.history = msgs }

// Usage returns the tokens and cost accumulated over committed turns.
func (s *Session) Usage() domain.Usage { return s.usage }

// RunTurn sends userMsg and drives the model until it stops calling
// tools. Visible text is delivered to onText as it streams. The turn is
// committed to history only when it completes; an error leaves history
// and usage untouched.
func (s *Session) RunTurn(ctx context.Context, userMsg domain.Message, onText func(string)) error {
	msgs := append(Normalize(s.history), buildRequestMessages(s.opts.SystemPrompt, userMsg)...)
	pending := []domain.Message{ForPersistence(userMsg)}

	var specs []domain.ToolSpec
	if !s.opts.NoTools && s.tools != nil {
		specs = llm.BuildToolSpecs(s.tools.ListToolsAll(ctx))
	}

	var turnUsage domain.Usage

	for {
		req := llm.Request{
			Model:             s.opts.Model,
			Messages:          msgs,
			Tools:             specs,
			ToolChoice:        s.opts.ToolChoice,
			ParallelToolCalls: true,
			Temperature:       s.opts.Temperature,
			MaxTokens:         s.opts.MaxTokens,
			ReasoningEffort:   s.opts.ReasoningEffort,
		}

		waiting := s.reporter.StartDebounced("Waiting for "+s.opts.Model, progressDebounce)
		stream, err := s.client.Stream(ctx, req)
		if err != nil {
			s.reporter.Complete(waiting, "")
			return s.turnError(ctx, err)
		}

		var text strings.Builder
		for stream.Next() {
			if waiting != nil {
				s.reporter.Complete(waiting, "")
				waiting = nil
			}
			chunk := stream.Current()
			switch chunk.Kind {
			case llm.ChunkText:
				text.WriteString(chunk.Text)
				if onText != nil {
					onText(chunk.Text)
				}
			case llm.ChunkUsage:
				turnUsage.Add(chunk.Usage)
			}
		}
		s.reporter.Complete(waiting, "")
		if err := stream.Err(); err != nil {
			_ = stream.Close()
			return s.turnError(ctx, err)
		}
		_ = stream.Close()

		info := stream.Info()
		calls := stream.Calls()
		content := text.String()

		// A tool round only makes sense when tools were advertised on the
		// request; without them a blank reply is simply the final answer.
		needRound := len(specs) > 0 &&
			(info.FinishReason == "tool_calls" || info.SawToolDelta || strings.TrimSpace(content) == "")

		if !needRound {
			if strings.TrimSpace(content) != "" {
				pending = append(pending, domain.Message{Role: "assistant", Content: content})
			}
			break
		}

		if len(calls) == 0 {
			// The stream signalled tool intent without usable deltas; a
			// non-streaming completion recovers the calls.
			resp, err := s.client.Complete(ctx, req)
			if err != nil {
				return s.turnError(ctx, err)
			}
			if resp.Usage != nil {
				turnUsage.Add(*resp.Usage)
			}
			if len(resp.ToolCalls) == 0 {
				if content == "" {
					content = resp.Content
					if onText != nil && content != "" {
						onText(content)
					}
				}
				if strings.TrimSpace(content) != "" {
					pending = append(pending, domain.Message{Role: "assistant", Content: content})
				}
				break
			}
			calls = resp.ToolCalls
			if content == "" {
				content = resp.Content
			}
		}

		stub := domain.Message{Role: "assistant", Content: content, ToolCalls: calls}
		results, err := s.runToolCalls(ctx, calls)
		if err != nil {
			return err
		}

		round := append([]domain.Message{stub}, results...)
		msgs = append(msgs, round...)
		pending = append(pending, round...)
	}

	s.history = append(s.history, pending...)
	s.usage.Add(turnUsage)
	return nil
}

// buildRequestMessages prepends the system prompt for the wire; the
// system message is not part of the persisted history.
func buildRequestMessages(system string, userMsg domain.Message) []domain.Message {
	var msgs []domain.Message
	if system != "" {
		msgs = append(msgs, domain.Message{Role: "system", Content: system})
	}
	return append(msgs, userMsg)
}

// runToolCalls resolves approval for each call in declaration order, then
// executes the approved ones concurrently. Results come back as tool
// messages in the same order as the calls.
func (s *Session) runToolCalls(ctx context.Context, calls []domain.ToolCall) ([]domain.Message, error) {
	type job struct {
		index  int
		server string
		tool   string
		args   map[string]interface{}
	}

	results := make([]domain.Message, len(calls))
	var jobs []job

	for i, call := range calls {
		name := call.Function.Name
		server, tool, ok := llm.SplitToolName(name)
		if !ok {
			results[i] = toolResult(call, "Invalid tool name: "+name)
			continue
		}

		approved := s.policy.IsAutoAllowed(server, tool)
		if !approved {
			preview := progress.TruncateArgs(call.Function.Arguments, argPreviewChars)
			var err error
			approved, err = s.policy.Confirm(ctx, server, tool, preview)
			if err != nil {
				return nil, s.turnError(ctx, err)
			}
		}
		if !approved {
			if s.opts.ToolChoice == "required" {
				return nil, fmt.Errorf("%w: %s", domain.ErrApprovalDenied, name)
			}
			results[i] = toolResult(call, "Denied by user: "+name)
			continue
		}

		jobs = append(jobs, job{index: i, server: server, tool: tool, args: parseToolArgs(call.Function.Arguments)})
	}

	g := new(errgroup.Group)
	for _, j := range jobs {
		j := j
		call := calls[j.index]
		g.Go(func() error {
			label := fmt.Sprintf("%s %s", call.Function.Name,
				progress.TruncateArgs(call.Function.Arguments, argPreviewChars))
			task := s.reporter.StartDebounced(label, progressDebounce)

			out, err := s.tools.CallTool(ctx, j.server, j.tool, j.args)
			if err != nil {
				log.Debugf("tool %s failed: %v", call.Function.Name, err)
				out = "Error: " + err.Error()
			}
			s.reporter.Complete(task, call.Function.Name)
			results[j.index] = toolResult(call, out)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, s.turnError(ctx, err)
	}
	return results, nil
}

func toolResult(call domain.ToolCall, content string) domain.Message {
	return domain.Message{
		Role:       "tool",
		ToolCallID: call.ID,
		Name:       call.Function.Name,
		Content:    content,
	}
}

// parseToolArgs decodes the model's argument JSON; malformed or empty
// arguments degrade to an empty object rather than failing the call.
func parseToolArgs(raw string) map[string]interface{} {
	args := map[string]interface{}{}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return args
	}
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		log.Debugf("unparseable tool arguments %q: %v", progress.TruncateArgs(raw, 120), err)
		return map[string]interface{}{}
	}
	return args
}

// turnError maps a cancelled context onto the interrupt sentinel so the
// caller can distinguish Ctrl-C from provider failures.
func (s *Session) turnError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrInterrupted, err)
	}
	return err
}
