package mcp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/liliang-cn/gptsh/pkg/config"
	"github.com/liliang-cn/gptsh/pkg/domain"
)

// Transport type names accepted in server configuration.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

// TransportConfig is the explicit transport block of a server definition.
type TransportConfig struct {
	Type    string            `json:"type,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Credentials carries header values kept out of the transport block.
type Credentials struct {
	Headers map[string]string `json:"headers,omitempty"`
}

// ServerConfig defines one MCP server. The set of servers is closed for
// the lifetime of a session.
type ServerConfig struct {
	Name        string            `json:"-"`
	Transport   TransportConfig   `json:"transport,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Credentials *Credentials      `json:"credentials,omitempty"`
	AutoApprove []string          `json:"autoApprove,omitempty"`
	Disabled    bool              `json:"disabled,omitempty"`
}

// serversFile is the on-disk shape of an mcpServers.json document.
type serversFile struct {
	MCPServers map[string]*ServerConfig `json:"mcpServers"`
}

// EffectiveURL returns the endpoint from either the transport block or the
// legacy top-level field.
func (sc *ServerConfig) EffectiveURL() string {
	if sc.Transport.URL != "" {
		return sc.Transport.URL
	}
	return sc.URL
}

// EffectiveHeaders merges transport headers, legacy headers, and
// credential headers; later sources win.
func (sc *ServerConfig) EffectiveHeaders() map[string]string {
	merged := make(map[string]string)
	for k, v := range sc.Transport.Headers {
		merged[k] = v
	}
	for k, v := range sc.Headers {
		merged[k] = v
	}
	if sc.Credentials != nil {
		for k, v := range sc.Credentials.Headers {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// TransportKind resolves the transport for a server. An explicit type
// wins; otherwise a URL whose path contains an "/sse" segment selects SSE,
// any other URL selects streamable HTTP, and a command selects stdio.
func (sc *ServerConfig) TransportKind() (string, error) {
	if t := strings.ToLower(strings.TrimSpace(sc.Transport.Type)); t != "" {
		switch t {
		case TransportStdio, TransportHTTP, TransportSSE:
			return t, nil
		case "streamable_http", "streamable-http":
			return TransportHTTP, nil
		default:
			return "", fmt.Errorf("%w: server %s: unsupported transport type %q", domain.ErrConfigInvalid, sc.Name, t)
		}
	}
	if endpoint := sc.EffectiveURL(); endpoint != "" {
		if hasSSEPath(endpoint) {
			return TransportSSE, nil
		}
		return TransportHTTP, nil
	}
	if sc.Command != "" {
		return TransportStdio, nil
	}
	return "", fmt.Errorf("%w: server %s: neither url nor command given", domain.ErrConfigInvalid, sc.Name)
}

func hasSSEPath(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if strings.EqualFold(seg, "sse") {
			return true
		}
	}
	return false
}

// DefaultServersPaths returns the mcpServers.json locations considered in
// load order; later files override earlier ones per server name.
func DefaultServersPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home+"/.config/gptsh/mcp_servers.json")
	}
	paths = append(paths, ".gptsh/mcp_servers.json")
	return paths
}

// LoadServers reads and merges server definition files. Missing files are
// skipped. String values in the files support ${VAR} and ${env:VAR}
// substitution before decoding.
func LoadServers(paths ...string) ([]*ServerConfig, error) {
	if len(paths) == 0 {
		paths = DefaultServersPaths()
	}

	merged := make(map[string]*ServerConfig)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrConfigInvalid, path, err)
		}
		var file serversFile
		expanded := config.ExpandEnv(string(data))
		if err := json.Unmarshal([]byte(expanded), &file); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrConfigInvalid, path, err)
		}
		for name, sc := range file.MCPServers {
			if sc == nil {
				continue
			}
			sc.Name = name
			merged[name] = sc
		}
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	servers := make([]*ServerConfig, 0, len(names))
	for _, name := range names {
		servers = append(servers, merged[name])
	}
	return servers, nil
}

// FilterServers keeps only the named servers; a nil filter keeps all.
func FilterServers(servers []*ServerConfig, allowed []string) []*ServerConfig {
	if allowed == nil {
		return servers
	}
	keep := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		keep[name] = true
	}
	var out []*ServerConfig
	for _, sc := range servers {
		if keep[sc.Name] {
			out = append(out, sc)
		}
	}
	return out
}
