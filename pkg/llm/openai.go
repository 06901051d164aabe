package llm

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/openai/openai-go/v3/shared"

	"github.com/liliang-cn/gptsh/pkg/domain"
)

// Options configures the OpenAI-compatible client.
type Options struct {
	APIKey  string
	BaseURL string
	// PriceInPerM and PriceOutPerM are USD per one million prompt and
	// completion tokens; zero disables cost estimation.
	PriceInPerM  float64
	PriceOutPerM float64
}

// OpenAIClient implements Client against any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client openai.Client
	opts   Options
}

// NewOpenAI creates the client.
func NewOpenAI(opts Options) *OpenAIClient {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
	}
}

// toOpenAIMessages converts history messages to the API format.
func toOpenAIMessages(messages []domain.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	openAIMessages := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case "user":
			if len(msg.Parts) > 0 {
				openAIMessages[i] = userMessageWithParts(msg)
			} else {
				openAIMessages[i] = openai.UserMessage(msg.Content)
			}
		case "system":
			openAIMessages[i] = openai.SystemMessage(msg.Content)
		case "tool":
			openAIMessages[i] = openai.ToolMessage(msg.Content, msg.ToolCallID)
		case "assistant":
			assistantMsg := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				assistantMsg.ToolCalls = make([]openai.ChatCompletionMessageToolCallUnion, len(msg.ToolCalls))
				for j, tc := range msg.ToolCalls {
					assistantMsg.ToolCalls[j] = openai.ChatCompletionMessageToolCallUnion{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageFunctionToolCallFunction{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					}
				}
			}
			openAIMessages[i] = assistantMsg.ToParam()
		default:
			return nil, fmt.Errorf("%w: unknown message role: %s", domain.ErrInvalidInput, msg.Role)
		}
	}
	return openAIMessages, nil
}

func userMessageWithParts(msg domain.Message) openai.ChatCompletionMessageParamUnion {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Type {
		case "image_url":
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: p.URL,
			}))
		default:
			parts = append(parts, openai.TextContentPart(p.Text))
		}
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: parts,
			},
		},
	}
}

func (c *OpenAIClient) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	messages, err := toOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.ReasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(req.ReasoningEffort)
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolUnionParam, len(req.Tools))
		for i, tool := range req.Tools {
			tools[i] = openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  tool.InputSchema,
			})
		}
		params.Tools = tools
		if req.ParallelToolCalls {
			params.ParallelToolCalls = openai.Bool(true)
		}
		switch req.ToolChoice {
		case "", "auto":
			// default when tools are present
		case "none", "required":
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: param.NewOpt(req.ToolChoice),
			}
		default:
			// a specific function name
			params.ToolChoice = openai.ToolChoiceOptionFunctionToolChoice(openai.ChatCompletionNamedToolChoiceFunctionParam{
				Name: req.ToolChoice,
			})
		}
	}
	return params, nil
}

func (c *OpenAIClient) usageFrom(u openai.CompletionUsage) (domain.Usage, bool) {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 {
		return domain.Usage{}, false
	}
	usage := domain.Usage{
		Tokens: domain.TokenUsage{
			Prompt:          u.PromptTokens,
			Completion:      u.CompletionTokens,
			Total:           u.TotalTokens,
			ReasoningTokens: u.CompletionTokensDetails.ReasoningTokens,
			CachedTokens:    u.PromptTokensDetails.CachedTokens,
		},
	}
	if c.opts.PriceInPerM > 0 || c.opts.PriceOutPerM > 0 {
		usage.Cost = float64(u.PromptTokens)*c.opts.PriceInPerM/1e6 +
			float64(u.CompletionTokens)*c.opts.PriceOutPerM/1e6
	}
	return usage, true
}

// Complete performs one non-streaming round.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", domain.ErrGenerationFailed)
	}

	choice := completion.Choices[0]
	resp := &Response{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		resp.ToolCalls = append(resp.ToolCalls, domain.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: domain.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: args,
			},
		})
	}
	if usage, ok := c.usageFrom(completion.Usage); ok {
		resp.Usage = &usage
	}
	return resp, nil
}

// Stream opens one streaming round. Usage is requested on the final chunk.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (Stream, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	raw := c.client.Chat.Completions.NewStreaming(ctx, params)
	return &openaiStream{
		client: c,
		raw:    raw,
		acc:    NewCallAccumulator(),
	}, nil
}

type openaiStream struct {
	client *OpenAIClient
	raw    *ssestream.Stream[openai.ChatCompletionChunk]
	acc    *CallAccumulator
	info   StreamInfo
	queue  []Chunk
	cur    Chunk
}

func (s *openaiStream) Next() bool {
	if s.pop() {
		return true
	}
	for s.raw.Next() {
		s.ingest(s.raw.Current())
		if s.pop() {
			return true
		}
	}
	return false
}

func (s *openaiStream) pop() bool {
	if len(s.queue) == 0 {
		return false
	}
	s.cur = s.queue[0]
	s.queue = s.queue[1:]
	return true
}

func (s *openaiStream) ingest(chunk openai.ChatCompletionChunk) {
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			s.queue = append(s.queue, Chunk{Kind: ChunkText, Text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			delta := ToolDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
			s.acc.Add(delta)
			s.info.SawToolDelta = true
			s.queue = append(s.queue, Chunk{Kind: ChunkToolDelta, Delta: delta})
		}
		if choice.FinishReason != "" {
			s.info.FinishReason = choice.FinishReason
		}
	}
	if usage, ok := s.client.usageFrom(chunk.Usage); ok {
		s.queue = append(s.queue, Chunk{Kind: ChunkUsage, Usage: usage})
	}
}

func (s *openaiStream) Current() Chunk { return s.cur }

func (s *openaiStream) Err() error {
	if err := s.raw.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	return nil
}

func (s *openaiStream) Close() error { return s.raw.Close() }

func (s *openaiStream) Calls() []domain.ToolCall { return s.acc.Calls() }

func (s *openaiStream) Info() StreamInfo { return s.info }
