package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/liliang-cn/gptsh/pkg/domain"
	"github.com/liliang-cn/gptsh/pkg/log"
)

// ToolInfo describes one tool as discovered from a server, with its bare
// (unprefixed) name.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// rpcSession is the slice of the SDK session the client uses;
// *mcp.ClientSession satisfies it.
type rpcSession interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Client holds one live session to an MCP server.
type Client struct {
	config    *ServerConfig
	session   rpcSession
	tools     []ToolInfo
	connected bool
}

// NewClient creates a client for the given server configuration.
func NewClient(config *ServerConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: server config cannot be nil", domain.ErrInvalidInput)
	}
	if _, err := config.TransportKind(); err != nil {
		return nil, err
	}
	return &Client{config: config}, nil
}

// Connect opens the transport and initializes the session. An HTTP attempt
// rejected with 400/404/405 falls back to SSE once, tolerating the two
// common MCP HTTP variants.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected {
		return nil
	}

	kind, err := c.config.TransportKind()
	if err != nil {
		return err
	}

	session, err := c.connectVia(ctx, kind)
	if err != nil && kind == TransportHTTP && shouldFallBackToSSE(err) {
		log.Debug("http transport rejected, retrying with sse", "server", c.config.Name, "error", err)
		session, err = c.connectVia(ctx, TransportSSE)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server %s: %w", c.config.Name, err)
	}

	return c.attachSession(ctx, session)
}

// attachSession adopts a live session and loads its tool list. A failed
// listing closes the session again, so a stdio subprocess cannot outlive
// a half-finished connect.
func (c *Client) attachSession(ctx context.Context, session rpcSession) error {
	c.session = session
	c.connected = true

	if err := c.loadTools(ctx); err != nil {
		if closeErr := c.Close(); closeErr != nil {
			log.Debug("closing session after failed discovery", "server", c.config.Name, "error", closeErr)
		}
		return fmt.Errorf("failed to list tools from %s: %w", c.config.Name, err)
	}
	return nil
}

func (c *Client) connectVia(ctx context.Context, kind string) (*mcp.ClientSession, error) {
	transport, err := c.createTransport(ctx, kind)
	if err != nil {
		return nil, err
	}

	clientImpl := &mcp.Implementation{
		Name:    "gptsh",
		Version: "1.0.0",
	}
	client := mcp.NewClient(clientImpl, &mcp.ClientOptions{})
	return client.Connect(ctx, transport, nil)
}

func (c *Client) createTransport(ctx context.Context, kind string) (mcp.Transport, error) {
	switch kind {
	case TransportStdio:
		if c.config.Command == "" {
			return nil, fmt.Errorf("%w: command is required for stdio server %s", domain.ErrConfigInvalid, c.config.Name)
		}
		cmd := exec.CommandContext(ctx, c.config.Command, c.config.Args...)
		cmd.Env = os.Environ()
		for key, value := range c.config.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
		}
		return &mcp.CommandTransport{Command: cmd}, nil

	case TransportHTTP:
		endpoint := c.config.EffectiveURL()
		if endpoint == "" {
			return nil, fmt.Errorf("%w: url is required for http server %s", domain.ErrConfigInvalid, c.config.Name)
		}
		return &mcp.StreamableClientTransport{
			Endpoint:   endpoint,
			HTTPClient: c.httpClient(),
			MaxRetries: 5,
		}, nil

	case TransportSSE:
		endpoint := c.config.EffectiveURL()
		if endpoint == "" {
			return nil, fmt.Errorf("%w: url is required for sse server %s", domain.ErrConfigInvalid, c.config.Name)
		}
		return &mcp.SSEClientTransport{
			Endpoint:   endpoint,
			HTTPClient: c.httpClient(),
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported transport %q", domain.ErrConfigInvalid, kind)
	}
}

func (c *Client) httpClient() *http.Client {
	client := &http.Client{}
	if headers := c.config.EffectiveHeaders(); len(headers) > 0 {
		client.Transport = &headerTransport{
			headers: headers,
			base:    http.DefaultTransport,
		}
	}
	return client
}

// shouldFallBackToSSE reports whether an HTTP connect error looks like the
// endpoint speaks the plain-SSE MCP variant.
func shouldFallBackToSSE(err error) bool {
	msg := err.Error()
	for _, code := range []string{"400", "404", "405"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

// headerTransport adds custom headers to all HTTP requests
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// loadTools fetches and caches the server's tool list.
func (c *Client) loadTools(ctx context.Context) error {
	if !c.connected || c.session == nil {
		return domain.ErrNotConnected
	}

	toolsResponse, err := c.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return err
	}

	c.tools = c.tools[:0]
	for _, tool := range toolsResponse.Tools {
		info := ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if tool.InputSchema != nil {
			info.InputSchema = schemaToMap(tool.InputSchema)
		}
		c.tools = append(c.tools, info)
	}
	return nil
}

// schemaToMap converts the SDK's schema type to a plain map for the LLM
// function-spec payload.
func schemaToMap(schema interface{}) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// Tools returns the cached tool list for this server.
func (c *Client) Tools() []ToolInfo {
	return c.tools
}

// CallTool invokes one tool and returns the concatenated textual content
// of the response. A tool-side error is returned as an error, which the
// caller converts into an error-string result for the model.
func (c *Client) CallTool(ctx context.Context, toolName string, arguments map[string]interface{}) (string, error) {
	if !c.connected || c.session == nil {
		return "", domain.ErrNotConnected
	}

	response, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		return "", err
	}

	var parts []string
	for _, content := range response.Content {
		if textContent, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, textContent.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if response.IsError {
		if text == "" {
			text = "tool execution failed"
		}
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

// Close shuts down the session.
func (c *Client) Close() error {
	if !c.connected {
		return nil
	}
	var err error
	if c.session != nil {
		err = c.session.Close()
	}
	c.connected = false
	c.session = nil
	return err
}

// IsConnected reports whether the session is live.
func (c *Client) IsConnected() bool {
	return c.connected
}
