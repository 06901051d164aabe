package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeServerNow(t *testing.T) {
	s := NewTimeServer()
	s.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.FixedZone("CET", 3600))
	}

	got, err := s.Call(context.Background(), "now", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14T08:26:53Z", got)

	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`), got)

	_, err = s.Call(context.Background(), "tomorrow", nil)
	assert.Error(t, err)
}

func TestShellExecute(t *testing.T) {
	s := NewShellServer()

	out, err := s.Call(context.Background(), "execute", map[string]interface{}{
		"command": "printf hello; printf oops >&2; exit 3",
	})
	require.NoError(t, err)

	var result execResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "hello", result.Stdout)
	assert.Equal(t, "oops", result.Stderr)
}

func TestShellExecuteTimeout(t *testing.T) {
	s := NewShellServer()

	out, err := s.Call(context.Background(), "execute", map[string]interface{}{
		"command": "sleep 5",
		"timeout": 0.05,
	})
	require.NoError(t, err)

	var result execResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Stderr, "[Timed out]")
}

func TestShellExecuteEnvAndCwd(t *testing.T) {
	s := NewShellServer()
	dir := t.TempDir()

	out, err := s.Call(context.Background(), "execute", map[string]interface{}{
		"command": "printf '%s' \"$GREETING:$(pwd)\"",
		"cwd":     dir,
		"env":     map[string]interface{}{"GREETING": "hi"},
	})
	require.NoError(t, err)

	var result execResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hi:")
}

func TestShellExecuteMissingCommand(t *testing.T) {
	s := NewShellServer()
	_, err := s.Call(context.Background(), "execute", map[string]interface{}{})
	assert.Error(t, err)
}

func writeHistory(t *testing.T, lines string) *ShellServer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zsh_history")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return &ShellServer{histfile: path}
}

func TestShellGetHistory(t *testing.T) {
	s := writeHistory(t, ": 1678997800:0;git status\n: 1678997900:0;ls -la\nplain command\n")

	out, err := s.Call(context.Background(), "get_history", map[string]interface{}{"n": float64(2)})
	require.NoError(t, err)

	var result struct {
		OK      bool           `json:"ok"`
		History []historyEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.OK)
	require.Len(t, result.History, 2)
	// Newest first.
	assert.Equal(t, "plain command", result.History[0].Command)
	assert.Equal(t, "ls -la", result.History[1].Command)
	assert.NotEmpty(t, result.History[1].Timestamp)
}

func TestShellGetHistoryBadN(t *testing.T) {
	s := writeHistory(t, "ls\n")
	out, err := s.Call(context.Background(), "get_history", map[string]interface{}{"n": float64(1000)})
	require.NoError(t, err)
	assert.Contains(t, out, `"ok":false`)
}

func TestShellSearchHistory(t *testing.T) {
	s := writeHistory(t, "git status\ngit push\nls -la\n")

	out, err := s.Call(context.Background(), "search_history", map[string]interface{}{"pattern": "^git"})
	require.NoError(t, err)

	var result struct {
		OK      bool           `json:"ok"`
		Results []historyEntry `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.OK)
	assert.Len(t, result.Results, 2)
}

func TestShellSearchHistoryInvalidRegexFallsBack(t *testing.T) {
	s := writeHistory(t, "echo a(b\nls\n")

	out, err := s.Call(context.Background(), "search_history", map[string]interface{}{"pattern": "a(b"})
	require.NoError(t, err)

	var result struct {
		OK      bool           `json:"ok"`
		Results []historyEntry `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.OK)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "echo a(b", result.Results[0].Command)
}

func TestShellAutoApproveDefaults(t *testing.T) {
	s := NewShellServer()
	assert.ElementsMatch(t, []string{"get_history", "search_history"}, s.AutoApprove())
}
