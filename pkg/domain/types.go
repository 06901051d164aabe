package domain

import "time"

// Message is one entry of a conversation history in the OpenAI chat shape.
// Assistant messages that request tool calls carry ToolCalls; the matching
// results follow as role "tool" messages referencing ToolCallID.
type Message struct {
	Role       string     `json:"role"` // user, assistant, tool, system
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`

	// Parts carries multimodal content for the current request only.
	// It is never persisted; see chat.ForPersistence.
	Parts []ContentPart `json:"-"`
}

// ContentPart is one element of a multimodal user message.
type ContentPart struct {
	Type string `json:"type"` // "text" or "image_url"
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"` // data URL for image parts
}

// ToolCall is an LLM-emitted request to invoke a tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and its raw JSON arguments.
// Arguments stays a JSON string for round-trip stability with the API.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes a callable tool in the shape the LLM API expects.
// Names follow the "<server>__<tool>" convention so a call routes back to
// its server without an extra lookup.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

// TokenUsage counts tokens for one or more LLM rounds.
type TokenUsage struct {
	Prompt          int64 `json:"prompt"`
	Completion      int64 `json:"completion"`
	Total           int64 `json:"total"`
	ReasoningTokens int64 `json:"reasoning_tokens,omitempty"`
	CachedTokens    int64 `json:"cached_tokens,omitempty"`
}

// Usage accumulates token counts and estimated cost across turns.
type Usage struct {
	Tokens TokenUsage `json:"tokens"`
	Cost   float64    `json:"cost,omitempty"`
}

// Add folds another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.Tokens.Prompt += other.Tokens.Prompt
	u.Tokens.Completion += other.Tokens.Completion
	u.Tokens.Total += other.Tokens.Total
	u.Tokens.ReasoningTokens += other.Tokens.ReasoningTokens
	u.Tokens.CachedTokens += other.Tokens.CachedTokens
	u.Cost += other.Cost
}

// SessionAgent records the agent identity a session was created with.
type SessionAgent struct {
	Name         string                 `json:"name"`
	Model        string                 `json:"model"`
	ModelSmall   string                 `json:"model_small,omitempty"`
	PromptSystem string                 `json:"prompt_system,omitempty"`
	Params       map[string]interface{} `json:"params,omitempty"`
}

// SessionProvider records the provider identity a session was created with.
type SessionProvider struct {
	Name string `json:"name"`
}

// Session is the persisted record of a conversation.
type Session struct {
	ID                string          `json:"id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Title             string          `json:"title,omitempty"`
	Agent             SessionAgent    `json:"agent"`
	Provider          SessionProvider `json:"provider"`
	Output            string          `json:"output,omitempty"`
	MCPAllowedServers []string        `json:"mcp_allowed_servers,omitempty"`
	Messages          []Message       `json:"messages"`
	Usage             Usage           `json:"usage"`
}
