package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/gptsh/pkg/domain"
	"github.com/liliang-cn/gptsh/pkg/log"
)

// DefaultCallTimeout bounds each discovery or tool call unless configured
// otherwise.
const DefaultCallTimeout = 30 * time.Second

// Manager maintains one live session per configured server plus the
// in-process builtin servers, and routes discovery and tool calls.
type Manager struct {
	mu       sync.RWMutex
	configs  []*ServerConfig
	clients  map[string]*Client
	order    []string // connect order, for LIFO shutdown
	builtins map[string]BuiltinServer
	timeout  time.Duration
	started  bool
}

// ManagerOptions tunes a Manager.
type ManagerOptions struct {
	// Timeout bounds each per-server operation; zero means the default.
	Timeout time.Duration
	// DisableBuiltins drops the in-process shell and time servers.
	DisableBuiltins bool
}

// NewManager creates a manager over a closed set of server definitions.
func NewManager(configs []*ServerConfig, opts ManagerOptions) *Manager {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	m := &Manager{
		configs:  configs,
		clients:  make(map[string]*Client),
		builtins: make(map[string]BuiltinServer),
		timeout:  timeout,
	}
	if !opts.DisableBuiltins {
		declared := make(map[string]bool, len(configs))
		for _, sc := range configs {
			declared[sc.Name] = true
		}
		for _, b := range []BuiltinServer{NewShellServer(), NewTimeServer()} {
			// A configured server of the same name shadows the builtin.
			if !declared[b.Name()] {
				m.builtins[b.Name()] = b
			}
		}
	}
	return m
}

// Start opens a session for every non-disabled server. It is idempotent.
// A server that fails to connect is logged and skipped; it contributes an
// empty tool list rather than aborting the whole start.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	for _, sc := range m.configs {
		if sc.Disabled {
			continue
		}
		client, err := NewClient(sc)
		if err != nil {
			log.Warn("skipping MCP server", "server", sc.Name, "error", err)
			continue
		}
		connectCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err = client.Connect(connectCtx)
		cancel()
		if err != nil {
			log.Warn("MCP server unavailable", "server", sc.Name, "error", err)
			continue
		}
		m.clients[sc.Name] = client
		m.order = append(m.order, sc.Name)
	}
	m.started = true
	return nil
}

// ServerNames returns all servers that can serve tools, builtins included.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.order)+len(m.builtins))
	names = append(names, m.order...)
	for name := range m.builtins {
		names = append(names, name)
	}
	return names
}

// ListTools returns the current tool set of one server.
func (m *Manager) ListTools(ctx context.Context, server string) ([]ToolInfo, error) {
	m.mu.RLock()
	builtin := m.builtins[server]
	client := m.clients[server]
	m.mu.RUnlock()

	if builtin != nil {
		return builtin.Tools(), nil
	}
	if client == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrServerNotFound, server)
	}
	return client.Tools(), nil
}

// ListToolsAll fans out discovery across every server concurrently. A
// failing or slow server isolates to an empty list; discovery never aborts
// as a whole.
func (m *Manager) ListToolsAll(ctx context.Context) map[string][]ToolInfo {
	names := m.ServerNames()

	var mu sync.Mutex
	result := make(map[string][]ToolInfo, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			listCtx, cancel := context.WithTimeout(gctx, m.timeout)
			defer cancel()
			tools, err := m.ListTools(listCtx, name)
			if err != nil {
				log.Debug("tool discovery failed", "server", name, "error", err)
				tools = nil
			}
			mu.Lock()
			result[name] = tools
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return result
}

// CallTool invokes one tool and returns the textual result. Execution
// errors and timeouts come back as errors; the orchestrator folds them
// into the tool-result content so the model can react. Calls are never
// retried here.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (string, error) {
	m.mu.RLock()
	builtin := m.builtins[server]
	client := m.clients[server]
	m.mu.RUnlock()

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if builtin != nil {
		return builtin.Call(callCtx, tool, args)
	}
	if client == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrServerNotFound, server)
	}
	return client.CallTool(callCtx, tool, args)
}

// AutoApprove returns the per-server auto-approval lists from config and
// the builtin defaults, keyed by server name.
func (m *Manager) AutoApprove() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]string)
	for _, sc := range m.configs {
		if len(sc.AutoApprove) > 0 {
			out[sc.Name] = append([]string(nil), sc.AutoApprove...)
		}
	}
	for name, b := range m.builtins {
		if auto := b.AutoApprove(); len(auto) > 0 {
			out[name] = append(out[name], auto...)
		}
	}
	return out
}

// Stop closes all sessions in reverse order of opening. Each close is
// wrapped so one failure cannot mask another; the last error wins.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastError error
	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		client := m.clients[name]
		if client == nil {
			continue
		}
		if err := client.Close(); err != nil {
			lastError = fmt.Errorf("failed to close client %s: %w", name, err)
		}
		delete(m.clients, name)
	}
	m.order = nil
	m.started = false
	return lastError
}
