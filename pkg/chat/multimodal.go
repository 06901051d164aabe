package chat

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/liliang-cn/gptsh/pkg/domain"
	"github.com/liliang-cn/gptsh/pkg/llm"
)

// Attachment is a binary input supplied alongside the prompt text.
type Attachment struct {
	Type      string // "image" or "pdf"
	MIME      string
	Data      []byte
	Truncated bool
}

// AttachmentMarker is the textual stand-in for an attachment the model
// cannot consume inline.
func AttachmentMarker(mime string, size int, truncated bool) string {
	note := ""
	if truncated {
		note = " (truncated)"
	}
	return fmt.Sprintf("[Attached: %s, %d bytes%s]", mime, size, note)
}

func imagePart(data []byte, mime string) domain.ContentPart {
	b64 := base64.StdEncoding.EncodeToString(data)
	return domain.ContentPart{
		Type: "image_url",
		URL:  fmt.Sprintf("data:%s;base64,%s", mime, b64),
	}
}

// BuildUserMessage assembles the user message for a turn. Attachments the
// model supports become content parts; anything else degrades to a text
// marker so the turn still proceeds.
func BuildUserMessage(text string, attachments []Attachment, caps llm.Capabilities) domain.Message {
	if len(attachments) == 0 {
		return domain.Message{Role: "user", Content: text}
	}

	var parts []domain.ContentPart
	var markers []string

	if text != "" {
		parts = append(parts, domain.ContentPart{Type: "text", Text: text})
	}

	for _, att := range attachments {
		switch {
		case att.Type == "image" && strings.HasPrefix(att.MIME, "image/") && caps.Vision:
			parts = append(parts, imagePart(att.Data, att.MIME))
		default:
			// PDF inlining is not wired yet; pdf-capable models still get
			// a marker for now.
			markers = append(markers, AttachmentMarker(att.MIME, len(att.Data), att.Truncated))
		}
	}

	multimodal := len(parts) > 1 || (len(parts) == 1 && parts[0].Type == "image_url")
	if multimodal {
		if len(markers) > 0 {
			markerText := strings.Join(markers, "\n")
			if text != "" {
				parts[0].Text += "\n\n" + markerText
			} else {
				parts = append([]domain.ContentPart{{Type: "text", Text: markerText}}, parts...)
			}
		}
		return domain.Message{Role: "user", Parts: parts}
	}

	// Text-only fallback: prompt plus markers.
	all := markers
	if text != "" {
		all = append([]string{text}, markers...)
	}
	return domain.Message{Role: "user", Content: strings.Join(all, "\n\n")}
}

// MessageText flattens a message to plain text for persistence, replacing
// binary content parts with short markers.
func MessageText(msg domain.Message) string {
	if len(msg.Parts) == 0 {
		return msg.Content
	}
	var texts []string
	for _, part := range msg.Parts {
		switch part.Type {
		case "text":
			texts = append(texts, part.Text)
		case "image_url":
			texts = append(texts, "[Attached: image (base64 data)]")
		case "file":
			texts = append(texts, "[Attached: file]")
		}
	}
	return strings.Join(texts, "\n\n")
}

// ForPersistence returns a copy of msg safe to write to disk: content
// parts are flattened to text so session files never embed base64 blobs.
func ForPersistence(msg domain.Message) domain.Message {
	if len(msg.Parts) == 0 {
		return msg
	}
	out := msg
	out.Content = MessageText(msg)
	out.Parts = nil
	return out
}
