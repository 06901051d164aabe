package sessions

import (
	"context"
	"strings"

	"github.com/liliang-cn/gptsh/pkg/domain"
	"github.com/liliang-cn/gptsh/pkg/llm"
	"github.com/liliang-cn/gptsh/pkg/log"
)

const titleSystemPrompt = "You generate a short, human-friendly title for a conversation " +
	"based solely on the first user message. Return 3 to 7 plain words. " +
	"No punctuation, no quotes, no extra text."

// EnsureTitle generates a session title from the first user message using
// the small model. It runs at most once per session: a session that
// already has a title, or no completed exchange yet, is left alone. Title
// generation is best effort and never fails the turn.
func EnsureTitle(ctx context.Context, client llm.Client, smallModel string, sess *domain.Session) {
	if sess.Title != "" || smallModel == "" || client == nil {
		return
	}

	var firstUser string
	sawAssistant := false
	for _, msg := range sess.Messages {
		if firstUser == "" && msg.Role == "user" {
			firstUser = msg.Content
		}
		if msg.Role == "assistant" && strings.TrimSpace(msg.Content) != "" {
			sawAssistant = true
		}
	}
	if firstUser == "" || !sawAssistant {
		return
	}

	temp := 0.2
	resp, err := client.Complete(ctx, llm.Request{
		Model: smallModel,
		Messages: []domain.Message{
			{Role: "system", Content: titleSystemPrompt},
			{Role: "user", Content: firstUser},
		},
		Temperature: &temp,
		MaxTokens:   24,
	})
	if err != nil {
		log.Debugf("title generation failed: %v", err)
		return
	}

	title := strings.TrimSpace(resp.Content)
	if title != "" {
		sess.Title = title
	}
}
