package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/liliang-cn/gptsh/pkg/chat"
	"github.com/liliang-cn/gptsh/pkg/domain"
)

func testApp() *app {
	return &app{
		flags:        &rootFlags{},
		agentName:    "default",
		providerName: "openai",
		model:        "gpt-4o",
		sess:         chat.NewSession(nil, nil, nil, nil, chat.Options{Model: "gpt-4o"}),
		doc:          &domain.Session{ID: "20260825-101530-ab3f", Title: "disk space"},
	}
}

func TestHandleCommandInfo(t *testing.T) {
	a := testApp()
	a.sess.SetHistory([]domain.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})

	var out strings.Builder
	quit := a.handleCommand("/info", &out)
	assert.False(t, quit)

	s := out.String()
	assert.Contains(t, s, "agent:    default")
	assert.Contains(t, s, "model:    gpt-4o")
	assert.Contains(t, s, "session:  20260825-101530-ab3f")
	assert.Contains(t, s, "title:    disk space")
	assert.Contains(t, s, "messages: 2")
	assert.Contains(t, s, "tokens:")
}

func TestHandleCommandNoToolsToggle(t *testing.T) {
	a := testApp()

	var out strings.Builder
	a.handleCommand("/no-tools", &out)
	assert.True(t, a.sess.Options().NoTools)
	assert.Contains(t, out.String(), "tools disabled")

	out.Reset()
	a.handleCommand("/no-tools", &out)
	assert.False(t, a.sess.Options().NoTools)
	assert.Contains(t, out.String(), "tools enabled")
}

func TestHandleCommandModelSwitch(t *testing.T) {
	a := testApp()

	var out strings.Builder
	a.handleCommand("/model o3-mini", &out)
	assert.Equal(t, "o3-mini", a.model)
	assert.Equal(t, "o3-mini", a.sess.Options().Model)
}

func TestHandleCommandQuit(t *testing.T) {
	a := testApp()

	var out strings.Builder
	assert.True(t, a.handleCommand("/exit", &out))
	assert.True(t, a.handleCommand("/quit", &out))
	assert.False(t, a.handleCommand("/unknown", &out))
	assert.Contains(t, out.String(), "unknown command")
}

func TestHandleCommandHelpListsCommands(t *testing.T) {
	a := testApp()

	var out strings.Builder
	a.handleCommand("/help", &out)
	for _, cmd := range []string{"/model", "/agent", "/no-tools", "/info", "/exit"} {
		assert.Contains(t, out.String(), cmd)
	}
}
