package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/gptsh/pkg/domain"
	"github.com/liliang-cn/gptsh/pkg/llm"
)

func TestBuildUserMessagePlainText(t *testing.T) {
	msg := BuildUserMessage("hello", nil, llm.Capabilities{Vision: true})
	assert.Equal(t, "user", msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.Empty(t, msg.Parts)
}

func TestBuildUserMessageVisionImage(t *testing.T) {
	att := Attachment{Type: "image", MIME: "image/png", Data: []byte{1, 2, 3}}
	msg := BuildUserMessage("what is this", []Attachment{att}, llm.Capabilities{Vision: true})

	require.Len(t, msg.Parts, 2)
	assert.Equal(t, "text", msg.Parts[0].Type)
	assert.Equal(t, "what is this", msg.Parts[0].Text)
	assert.Equal(t, "image_url", msg.Parts[1].Type)
	assert.True(t, strings.HasPrefix(msg.Parts[1].URL, "data:image/png;base64,"))
	assert.Empty(t, msg.Content)
}

func TestBuildUserMessageImageWithoutVision(t *testing.T) {
	att := Attachment{Type: "image", MIME: "image/jpeg", Data: make([]byte, 42)}
	msg := BuildUserMessage("look", []Attachment{att}, llm.Capabilities{})

	assert.Empty(t, msg.Parts)
	assert.Equal(t, "look\n\n[Attached: image/jpeg, 42 bytes]", msg.Content)
}

func TestBuildUserMessageTruncatedMarker(t *testing.T) {
	att := Attachment{Type: "pdf", MIME: "application/pdf", Data: make([]byte, 7), Truncated: true}
	msg := BuildUserMessage("", []Attachment{att}, llm.Capabilities{PDF: true})

	assert.Equal(t, "[Attached: application/pdf, 7 bytes (truncated)]", msg.Content)
}

func TestBuildUserMessageMixedAttachments(t *testing.T) {
	atts := []Attachment{
		{Type: "image", MIME: "image/png", Data: []byte{1}},
		{Type: "pdf", MIME: "application/pdf", Data: make([]byte, 9)},
	}
	msg := BuildUserMessage("see both", atts, llm.Capabilities{Vision: true})

	require.Len(t, msg.Parts, 2)
	// The unsupported attachment's marker rides along in the text part.
	assert.Contains(t, msg.Parts[0].Text, "see both")
	assert.Contains(t, msg.Parts[0].Text, "[Attached: application/pdf, 9 bytes]")
	assert.Equal(t, "image_url", msg.Parts[1].Type)
}

func TestBuildUserMessageImageOnlyNoText(t *testing.T) {
	att := Attachment{Type: "image", MIME: "image/png", Data: []byte{1}}
	msg := BuildUserMessage("", []Attachment{att}, llm.Capabilities{Vision: true})

	require.Len(t, msg.Parts, 1)
	assert.Equal(t, "image_url", msg.Parts[0].Type)
}

func TestForPersistenceFlattensParts(t *testing.T) {
	msg := domain.Message{
		Role: "user",
		Parts: []domain.ContentPart{
			{Type: "text", Text: "caption"},
			{Type: "image_url", URL: "data:image/png;base64,AQ=="},
		},
	}

	flat := ForPersistence(msg)
	assert.Equal(t, "caption\n\n[Attached: image (base64 data)]", flat.Content)
	assert.Empty(t, flat.Parts)

	// Messages without parts pass through unchanged.
	plain := domain.Message{Role: "assistant", Content: "hi"}
	assert.Equal(t, plain, ForPersistence(plain))
}
