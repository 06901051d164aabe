package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Task is an opaque handle for one progress line.
type Task struct {
	id int
}

// Reporter shows transient progress lines on a terminal. Implementations
// must tolerate calls after Stop.
type Reporter interface {
	// AddTask registers a progress line that is shown immediately.
	AddTask(label string) *Task
	// StartDebounced registers a progress line that only becomes visible
	// if the task is still running after delay.
	StartDebounced(label string, delay time.Duration) *Task
	// Complete removes a task; a non-empty label is printed as the final
	// line if the task ever became visible.
	Complete(task *Task, label string)
	// IO runs fn while the spinner is suppressed, so prompts and other
	// direct terminal writes never interleave with redraws.
	IO(fn func())
	// Stop clears the display and stops the render loop.
	Stop()
}

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	labelStyle   = lipgloss.NewStyle().Faint(true)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type taskState struct {
	label   string
	visible bool
	timer   *time.Timer
}

// SpinnerReporter renders a single spinner line on a terminal writer,
// cycling through the active task labels.
type SpinnerReporter struct {
	mu      sync.Mutex
	out     io.Writer
	tasks   map[int]*taskState
	order   []int
	nextID  int
	frame   int
	drawn   bool
	stopped bool
	done    chan struct{}
}

// NewSpinner creates a reporter drawing to out, usually stderr.
func NewSpinner(out io.Writer) *SpinnerReporter {
	r := &SpinnerReporter{
		out:   out,
		tasks: make(map[int]*taskState),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *SpinnerReporter) loop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			r.frame++
			r.redrawLocked()
			r.mu.Unlock()
		}
	}
}

func (r *SpinnerReporter) AddTask(label string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(label, true)
}

func (r *SpinnerReporter) StartDebounced(label string, delay time.Duration) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	task := r.addLocked(label, false)
	id := task.id
	state := r.tasks[id]
	state.timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if st, ok := r.tasks[id]; ok {
			st.visible = true
			r.redrawLocked()
		}
	})
	return task
}

func (r *SpinnerReporter) addLocked(label string, visible bool) *Task {
	r.nextID++
	id := r.nextID
	r.tasks[id] = &taskState{label: label, visible: visible}
	r.order = append(r.order, id)
	if visible {
		r.redrawLocked()
	}
	return &Task{id: id}
}

func (r *SpinnerReporter) Complete(task *Task, label string) {
	if task == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.tasks[task.id]
	if !ok {
		return
	}
	if state.timer != nil {
		state.timer.Stop()
	}
	delete(r.tasks, task.id)
	for i, id := range r.order {
		if id == task.id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.clearLocked()
	if label != "" && state.visible {
		fmt.Fprintf(r.out, "%s %s\n", doneStyle.Render("✓"), labelStyle.Render(label))
	}
	r.redrawLocked()
}

func (r *SpinnerReporter) IO(fn func()) {
	r.mu.Lock()
	r.clearLocked()
	r.mu.Unlock()
	fn()
	r.mu.Lock()
	r.redrawLocked()
	r.mu.Unlock()
}

func (r *SpinnerReporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.done)
	for _, state := range r.tasks {
		if state.timer != nil {
			state.timer.Stop()
		}
	}
	r.tasks = make(map[int]*taskState)
	r.order = nil
	r.clearLocked()
}

// redrawLocked repaints the spinner line for the first visible task.
func (r *SpinnerReporter) redrawLocked() {
	if r.stopped {
		return
	}
	var labels []string
	for _, id := range r.order {
		if state := r.tasks[id]; state != nil && state.visible {
			labels = append(labels, state.label)
		}
	}
	if len(labels) == 0 {
		r.clearLocked()
		return
	}
	line := labels[0]
	if len(labels) > 1 {
		line = fmt.Sprintf("%s (+%d)", labels[0], len(labels)-1)
	}
	frame := spinnerFrames[r.frame%len(spinnerFrames)]
	fmt.Fprintf(r.out, "\r\x1b[2K%s %s", spinnerStyle.Render(frame), labelStyle.Render(line))
	r.drawn = true
}

func (r *SpinnerReporter) clearLocked() {
	if r.drawn {
		fmt.Fprint(r.out, "\r\x1b[2K")
		r.drawn = false
	}
}

// NoOp is a Reporter that renders nothing, for piped output and tests.
type NoOp struct{}

func (NoOp) AddTask(string) *Task                        { return &Task{} }
func (NoOp) StartDebounced(string, time.Duration) *Task  { return &Task{} }
func (NoOp) Complete(*Task, string)                      {}
func (NoOp) IO(fn func())                                { fn() }
func (NoOp) Stop()                                       {}

// TruncateArgs shortens an argument preview for progress labels.
func TruncateArgs(args string, max int) string {
	args = strings.ReplaceAll(args, "\n", " ")
	if max > 0 && len(args) > max {
		return args[:max] + "…"
	}
	return args
}
