package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportKind(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		want    string
		wantErr bool
	}{
		{"explicit stdio", ServerConfig{Transport: TransportConfig{Type: "stdio"}, Command: "srv"}, TransportStdio, false},
		{"explicit http", ServerConfig{Transport: TransportConfig{Type: "http", URL: "https://x/mcp"}}, TransportHTTP, false},
		{"explicit sse", ServerConfig{Transport: TransportConfig{Type: "sse", URL: "https://x/mcp"}}, TransportSSE, false},
		{"streamable alias", ServerConfig{Transport: TransportConfig{Type: "streamable_http", URL: "https://x"}}, TransportHTTP, false},
		{"url implies http", ServerConfig{URL: "https://example.com/mcp"}, TransportHTTP, false},
		{"sse path segment", ServerConfig{URL: "https://example.com/sse"}, TransportSSE, false},
		{"sse path mid segment", ServerConfig{URL: "https://example.com/api/sse/stream"}, TransportSSE, false},
		{"sse substring is not a segment", ServerConfig{URL: "https://example.com/assess"}, TransportHTTP, false},
		{"command implies stdio", ServerConfig{Command: "uvx", Args: []string{"server"}}, TransportStdio, false},
		{"explicit type wins over url", ServerConfig{Transport: TransportConfig{Type: "http"}, URL: "https://example.com/sse"}, TransportHTTP, false},
		{"unknown type", ServerConfig{Transport: TransportConfig{Type: "carrier-pigeon"}}, "", true},
		{"nothing given", ServerConfig{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.config.TransportKind()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveHeaders(t *testing.T) {
	sc := ServerConfig{
		Transport: TransportConfig{Headers: map[string]string{"A": "1", "B": "1"}},
		Headers:   map[string]string{"B": "2"},
		Credentials: &Credentials{
			Headers: map[string]string{"Authorization": "Bearer tok"},
		},
	}
	headers := sc.EffectiveHeaders()
	assert.Equal(t, "1", headers["A"])
	assert.Equal(t, "2", headers["B"])
	assert.Equal(t, "Bearer tok", headers["Authorization"])

	assert.Nil(t, (&ServerConfig{}).EffectiveHeaders())
}

func TestLoadServers(t *testing.T) {
	t.Setenv("GPTSH_TEST_TOKEN", "tok-123")
	dir := t.TempDir()
	base := filepath.Join(dir, "servers.json")
	require.NoError(t, os.WriteFile(base, []byte(`{
		"mcpServers": {
			"fs": {"command": "mcp-fs", "args": ["--root", "/"], "autoApprove": ["read_file"]},
			"web": {
				"transport": {"type": "http", "url": "https://example.com/mcp"},
				"credentials": {"headers": {"Authorization": "Bearer ${GPTSH_TEST_TOKEN}"}}
			},
			"old": {"command": "old-server", "disabled": true}
		}
	}`), 0o644))
	override := filepath.Join(dir, "override.json")
	require.NoError(t, os.WriteFile(override, []byte(`{
		"mcpServers": {
			"fs": {"command": "mcp-fs-v2"}
		}
	}`), 0o644))

	servers, err := LoadServers(base, override, filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	require.Len(t, servers, 3)

	byName := make(map[string]*ServerConfig)
	for _, sc := range servers {
		byName[sc.Name] = sc
	}
	assert.Equal(t, "mcp-fs-v2", byName["fs"].Command)
	assert.Empty(t, byName["fs"].AutoApprove) // override replaces whole entry
	assert.Equal(t, "Bearer tok-123", byName["web"].Credentials.Headers["Authorization"])
	assert.True(t, byName["old"].Disabled)
}

func TestLoadServersMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := LoadServers(path)
	assert.Error(t, err)
}

func TestFilterServers(t *testing.T) {
	servers := []*ServerConfig{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	assert.Len(t, FilterServers(servers, nil), 3)
	filtered := FilterServers(servers, []string{"c", "a"})
	require.Len(t, filtered, 2)
	assert.Equal(t, "a", filtered[0].Name)
	assert.Equal(t, "c", filtered[1].Name)
	assert.Empty(t, FilterServers(servers, []string{}))
}
