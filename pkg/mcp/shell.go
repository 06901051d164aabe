package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/liliang-cn/gptsh/pkg/domain"
)

// ShellServer runs commands through a POSIX shell and reads the user's
// shell history. History lookups are harmless and auto-approved; execute
// is not.
type ShellServer struct {
	histfile string // override for tests; empty means auto-detect
}

// NewShellServer creates the builtin "shell" server.
func NewShellServer() *ShellServer {
	return &ShellServer{}
}

func (s *ShellServer) Name() string { return "shell" }

func (s *ShellServer) AutoApprove() []string { return []string{"get_history", "search_history"} }

func (s *ShellServer) Tools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "execute",
			Description: "Execute a shell command and return JSON with exit code, stdout, and stderr.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "Command string to execute using /bin/sh -c",
					},
					"cwd": map[string]interface{}{
						"type":        "string",
						"description": "Working directory for the command (optional)",
					},
					"timeout": map[string]interface{}{
						"type":        "number",
						"description": "Timeout in seconds (optional). If exceeded, the process is killed and exit_code is -1.",
					},
					"env": map[string]interface{}{
						"type":                 "object",
						"description":          "Environment variable overrides (string-to-string map).",
						"additionalProperties": true,
					},
				},
				"required":             []interface{}{"command"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "get_history",
			Description: "Return the last n shell commands from the history file specified by $HISTFILE.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"n": map[string]interface{}{
						"type":        "integer",
						"description": "Number of last history entries.",
						"default":     20,
						"minimum":     1,
						"maximum":     100,
					},
				},
				"additionalProperties": false,
			},
		},
		{
			Name:        "search_history",
			Description: "Search shell history for commands matching a regex or substring. Reads $HISTFILE.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Regex or substring to match against history.",
					},
					"max_results": map[string]interface{}{
						"type":        "integer",
						"description": "Return this many last matches.",
						"default":     20,
						"minimum":     1,
						"maximum":     100,
					},
				},
				"required":             []interface{}{"pattern"},
				"additionalProperties": false,
			},
		},
	}
}

func (s *ShellServer) Call(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	switch tool {
	case "execute":
		return s.execute(ctx, args)
	case "get_history":
		return s.getHistory(args)
	case "search_history":
		return s.searchHistory(args)
	default:
		return "", fmt.Errorf("%w: shell:%s", domain.ErrToolNotFound, tool)
	}
}

type execResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

func (s *ShellServer) execute(ctx context.Context, args map[string]interface{}) (string, error) {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("%w: field 'command' (string) is required", domain.ErrInvalidInput)
	}
	cwd, _ := args["cwd"].(string)

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout := asSeconds(args["timeout"]); timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = os.Environ()
	if overrides, ok := args["env"].(map[string]interface{}); ok {
		for k, v := range overrides {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%v", k, v))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := execResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case runCtx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled):
		result.ExitCode = -1
		if result.Stderr != "" {
			result.Stderr += "\n[Timed out]"
		} else {
			result.Stderr = "[Timed out]"
		}
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.Stderr = fmt.Sprintf("[Execution error] %v", err)
		}
	default:
		result.ExitCode = 0
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func asSeconds(v interface{}) time.Duration {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return time.Duration(n * float64(time.Second))
		}
	case int:
		if n > 0 {
			return time.Duration(n) * time.Second
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return 0
}

type historyEntry struct {
	Command   string `json:"command"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (s *ShellServer) histfilePath() (string, error) {
	if s.histfile != "" {
		return s.histfile, nil
	}
	var candidates []string
	if path := os.Getenv("HISTFILE"); path != "" {
		candidates = append(candidates, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".zhistory"),
			filepath.Join(home, ".zsh_history"),
			filepath.Join(home, ".bash_history"),
		)
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", errors.New("no shell history file found; checked $HISTFILE and common paths")
}

// readHistory parses the history file newest-first, handling the zsh
// extended format ": <epoch>:<elapsed>;<command>".
func (s *ShellServer) readHistory() ([]historyEntry, error) {
	path, err := s.histfilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	entries := make([]historyEntry, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\n")
		if strings.HasPrefix(line, ": ") && strings.Contains(line, ";") {
			meta, command, _ := strings.Cut(line, ";")
			entry := historyEntry{Command: strings.TrimSpace(command)}
			fields := strings.Split(meta, ":")
			if len(fields) > 1 {
				if epoch, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64); err == nil {
					entry.Timestamp = time.Unix(epoch, 0).Format(time.RFC3339)
				}
			}
			entries = append(entries, entry)
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			entries = append(entries, historyEntry{Command: trimmed})
		}
	}
	return entries, nil
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

func (s *ShellServer) getHistory(args map[string]interface{}) (string, error) {
	n := intArg(args, "n", 20)
	if n < 1 || n > 100 {
		return jsonError("argument 'n' must be an integer 1..100"), nil
	}
	history, err := s.readHistory()
	if err != nil {
		return jsonError(err.Error()), nil
	}
	if len(history) > n {
		history = history[:n]
	}
	return jsonOK(map[string]interface{}{"history": history}), nil
}

func (s *ShellServer) searchHistory(args map[string]interface{}) (string, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return jsonError("argument 'pattern' must be a non-empty string"), nil
	}
	maxResults := intArg(args, "max_results", 20)
	if maxResults < 1 || maxResults > 100 {
		return jsonError("argument 'max_results' must be an integer 1..100"), nil
	}
	history, err := s.readHistory()
	if err != nil {
		return jsonError(err.Error()), nil
	}

	var matches []historyEntry
	if re, err := regexp.Compile(pattern); err == nil {
		for _, entry := range history {
			if re.MatchString(entry.Command) {
				matches = append(matches, entry)
			}
		}
	} else {
		// invalid regex: fall back to substring search
		for _, entry := range history {
			if strings.Contains(entry.Command, pattern) {
				matches = append(matches, entry)
			}
		}
	}
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return jsonOK(map[string]interface{}{"results": matches}), nil
}

func jsonOK(fields map[string]interface{}) string {
	fields["ok"] = true
	data, _ := json.Marshal(fields)
	return string(data)
}

func jsonError(msg string) string {
	data, _ := json.Marshal(map[string]interface{}{"ok": false, "error": msg})
	return string(data)
}
