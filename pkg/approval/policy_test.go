package approval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/gptsh/pkg/progress"
)

func TestRulesAutoAllow(t *testing.T) {
	rules := NewRules(map[string][]string{
		"fs":    {"read_file", "list-dir"},
		"shell": {"*"},
		"*":     {"time__now", "echo"},
	})

	tests := []struct {
		name   string
		server string
		tool   string
		want   bool
	}{
		{"listed tool", "fs", "read_file", true},
		{"dash underscore equivalence", "fs", "read-file", true},
		{"case insensitive", "FS", "Read_File", true},
		{"listed with dash in config", "fs", "list_dir", true},
		{"server wildcard", "shell", "anything", true},
		{"global qualified", "time", "now", true},
		{"global bare", "web", "echo", true},
		{"not listed", "fs", "delete_file", false},
		{"unknown server", "db", "query", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.IsAutoAllowed(tt.server, tt.tool))
		})
	}
}

func TestRulesGlobalWildcard(t *testing.T) {
	rules := NewRules(map[string][]string{"*": {"*"}})
	assert.True(t, rules.IsAutoAllowed("any", "thing"))
}

func TestRulesNormalizationSymmetry(t *testing.T) {
	rules := NewRules(map[string][]string{"fs": {"read-file"}})
	for _, tool := range []string{"read-file", "read_file", "READ_FILE", " Read-File "} {
		assert.True(t, rules.IsAutoAllowed("fs", tool), tool)
	}
}

func TestInteractiveConfirm(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		approved bool
	}{
		{"yes", "y\n", true},
		{"yes word", "yes\n", true},
		{"no", "n\n", false},
		{"empty", "\n", false},
		{"eof is deny", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			p := NewInteractive(NewRules(nil), NewLineReader(strings.NewReader(tt.input)), &out, progress.NoOp{})
			ok, err := p.Confirm(context.Background(), "fs", "read_file", `{"path":"/x"}`)
			require.NoError(t, err)
			assert.Equal(t, tt.approved, ok)
			assert.Contains(t, out.String(), "read_file")
			assert.Contains(t, out.String(), "fs")
		})
	}
}

func TestInteractiveConfirmCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out strings.Builder
	p := NewInteractive(NewRules(nil), NewLineReader(strings.NewReader("y\n")), &out, progress.NoOp{})
	_, err := p.Confirm(ctx, "fs", "read_file", "{}")
	assert.Error(t, err)
	assert.Empty(t, out.String())
}

type failingLineReader struct {
	err error
}

func (f failingLineReader) ReadLine() (string, error) { return "", f.err }

func TestInteractiveConfirmReadError(t *testing.T) {
	// A broken terminal is an error, not a silent deny.
	var out strings.Builder
	p := NewInteractive(NewRules(nil), failingLineReader{err: errors.New("tty gone")}, &out, progress.NoOp{})

	ok, err := p.Confirm(context.Background(), "fs", "read_file", "{}")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestInteractiveConfirmPartialLineCounts(t *testing.T) {
	// A final line without a trailing newline still carries the answer.
	var out strings.Builder
	p := NewInteractive(NewRules(nil), NewLineReader(strings.NewReader("y")), &out, progress.NoOp{})

	ok, err := p.Confirm(context.Background(), "fs", "read_file", "{}")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDenyUnlisted(t *testing.T) {
	d := DenyUnlisted{Rules: NewRules(map[string][]string{"fs": {"read_file"}})}
	assert.True(t, d.IsAutoAllowed("fs", "read_file"))

	ok, err := d.Confirm(context.Background(), "fs", "write_file", "{}")
	require.NoError(t, err)
	assert.False(t, ok)
}
