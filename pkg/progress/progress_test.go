package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer guards a bytes.Buffer against the render goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDebouncedTaskStaysHiddenWhenFast(t *testing.T) {
	out := &syncBuffer{}
	r := NewSpinner(out)
	defer r.Stop()

	task := r.StartDebounced("calling fs read", 200*time.Millisecond)
	r.Complete(task, "done fs read")

	assert.NotContains(t, out.String(), "done fs read")
}

func TestDebouncedTaskAppearsWhenSlow(t *testing.T) {
	out := &syncBuffer{}
	r := NewSpinner(out)
	defer r.Stop()

	task := r.StartDebounced("calling fs read", 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	r.Complete(task, "done fs read")

	assert.Contains(t, out.String(), "fs read")
}

func TestIORegionSuppressesSpinner(t *testing.T) {
	out := &syncBuffer{}
	r := NewSpinner(out)
	defer r.Stop()

	r.AddTask("waiting")
	var during string
	r.IO(func() {
		during = out.String()
	})
	// The last write before fn ran must be a clear sequence, not a frame.
	assert.True(t, strings.HasSuffix(during, "\r\x1b[2K"))
}

func TestNoOpRunsIO(t *testing.T) {
	ran := false
	NoOp{}.IO(func() { ran = true })
	assert.True(t, ran)
}

func TestTruncateArgs(t *testing.T) {
	assert.Equal(t, "short", TruncateArgs("short", 500))
	long := strings.Repeat("x", 600)
	got := TruncateArgs(long, 500)
	assert.Equal(t, 500+len("…"), len(got))
	assert.Equal(t, "a b", TruncateArgs("a\nb", 500))
}
