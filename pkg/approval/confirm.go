package approval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/liliang-cn/gptsh/pkg/progress"
)

var (
	toolStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	argsStyle = lipgloss.NewStyle().Faint(true)
)

// LineReader supplies one line of user input, up to and including the
// newline. The caller that owns the input stream hands the same reader
// to every consumer so a prompt never races another reader for a line.
type LineReader interface {
	ReadLine() (string, error)
}

type bufioLineReader struct {
	r *bufio.Reader
}

func (b *bufioLineReader) ReadLine() (string, error) {
	return b.r.ReadString('\n')
}

// NewLineReader wraps an io.Reader in a buffered LineReader.
func NewLineReader(r io.Reader) LineReader {
	return &bufioLineReader{r: bufio.NewReader(r)}
}

// Interactive prompts the user on the terminal for calls the rules do not
// cover. Prompts are serialized by a lock so concurrent tool executions
// never compete for the user's attention, and run inside the reporter's
// IO region so they never interleave with spinner redraws.
type Interactive struct {
	rules    *Rules
	reporter progress.Reporter

	mu  sync.Mutex
	in  LineReader
	out io.Writer
}

// NewInteractive builds a prompting policy reading answers from in and
// writing prompts to out.
func NewInteractive(rules *Rules, in LineReader, out io.Writer, reporter progress.Reporter) *Interactive {
	if reporter == nil {
		reporter = progress.NoOp{}
	}
	return &Interactive{
		rules:    rules,
		reporter: reporter,
		in:       in,
		out:      out,
	}
}

func (p *Interactive) IsAutoAllowed(server, tool string) bool {
	return p.rules.IsAutoAllowed(server, tool)
}

// Confirm shows the call and reads a yes/no answer. EOF counts as deny.
// Once the prompt is displayed the read is not interrupted; callers see
// the context error only before the prompt.
func (p *Interactive) Confirm(ctx context.Context, server, tool, args string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	approved := false
	var readErr error
	p.reporter.IO(func() {
		fmt.Fprintf(p.out, "Allow tool %s on server %s?\n", toolStyle.Render(tool), toolStyle.Render(server))
		if args != "" && args != "{}" {
			fmt.Fprintf(p.out, "  args: %s\n", argsStyle.Render(progress.TruncateArgs(args, 500)))
		}
		fmt.Fprint(p.out, "  [y/N] ")
		line, err := p.in.ReadLine()
		if err != nil && !errors.Is(err, io.EOF) {
			readErr = err
			return
		}
		if err != nil && line == "" {
			// EOF is a deny, not an error
			fmt.Fprintln(p.out)
			return
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		approved = answer == "y" || answer == "yes"
	})
	return approved, readErr
}

// OpenTTY re-opens the controlling terminal for prompts when stdin is a
// pipe carrying the initial prompt. Returns nil if no terminal exists.
func OpenTTY() *os.File {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	tty, err := os.Open("/dev/tty")
	if err != nil {
		return nil
	}
	return tty
}

// AllowAll approves everything, for a --yes flag.
type AllowAll struct{}

func (AllowAll) IsAutoAllowed(string, string) bool { return true }
func (AllowAll) Confirm(context.Context, string, string, string) (bool, error) {
	return true, nil
}

// DenyUnlisted approves only what the rules allow, denying the rest
// without prompting. Used when no terminal is available.
type DenyUnlisted struct {
	Rules *Rules
}

func (d DenyUnlisted) IsAutoAllowed(server, tool string) bool {
	return d.Rules.IsAutoAllowed(server, tool)
}

func (DenyUnlisted) Confirm(context.Context, string, string, string) (bool, error) {
	return false, nil
}
