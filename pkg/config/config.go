package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/liliang-cn/gptsh/pkg/domain"
)

// Config is the merged application configuration.
type Config struct {
	DefaultProvider string                    `mapstructure:"default_provider"`
	DefaultAgent    string                    `mapstructure:"default_agent"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
	Agents          map[string]AgentConfig    `mapstructure:"agents"`
	MCP             MCPConfig                 `mapstructure:"mcp"`
	Sessions        SessionsConfig            `mapstructure:"sessions"`
	Output          string                    `mapstructure:"output"` // text|markdown
	Stream          *bool                     `mapstructure:"stream"`
	Progress        *bool                     `mapstructure:"progress"`
	Debug           bool                      `mapstructure:"debug"`
}

// ProviderConfig describes one OpenAI-compatible endpoint.
type ProviderConfig struct {
	BaseURL     string   `mapstructure:"base_url"`
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	ModelSmall  string   `mapstructure:"model_small"`
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
	Pricing     *Pricing `mapstructure:"pricing"`
}

// Pricing is USD per one million tokens, used for cost estimates.
type Pricing struct {
	Input  float64 `mapstructure:"input"`
	Output float64 `mapstructure:"output"`
}

// AgentConfig describes a named preset: model, system prompt, tool policy.
type AgentConfig struct {
	Provider        string              `mapstructure:"provider"`
	Model           string              `mapstructure:"model"`
	ModelSmall      string              `mapstructure:"model_small"`
	Prompt          PromptConfig        `mapstructure:"prompt"`
	Instructions    []string            `mapstructure:"instructions"`
	Temperature     *float64            `mapstructure:"temperature"`
	MaxTokens       int                 `mapstructure:"max_tokens"`
	ReasoningEffort string              `mapstructure:"reasoning_effort"`
	ToolChoice      string              `mapstructure:"tool_choice"` // auto|required|none
	NoTools         bool                `mapstructure:"no_tools"`
	AllowedServers  []string            `mapstructure:"allowed_servers"`
	AutoApprove     map[string][]string `mapstructure:"auto_approve"`
	Vision          *bool               `mapstructure:"vision"`
}

type PromptConfig struct {
	System string `mapstructure:"system"`
}

// MCPConfig points at the MCP server definition files.
type MCPConfig struct {
	ServersFiles   []string `mapstructure:"servers_files"`
	AllowedServers []string `mapstructure:"allowed_servers"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

type SessionsConfig struct {
	Dir string `mapstructure:"dir"`
}

// DefaultPaths returns the config files considered in load order; later
// files override earlier ones.
func DefaultPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "gptsh", "config.yaml"))
	}
	paths = append(paths, filepath.Join(".gptsh", "config.yaml"))
	return paths
}

// Load reads and merges the given config files. Missing files are skipped;
// an unreadable or malformed file is a configuration error. String values
// support ${VAR} and ${env:VAR} substitution.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = DefaultPaths()
	}

	v := viper.New()
	v.SetConfigType("yaml")

	loaded := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrConfigInvalid, path, err)
		}
		expanded := ExpandEnv(string(data))
		if loaded == 0 {
			err = v.ReadConfig(bytes.NewBufferString(expanded))
		} else {
			err = v.MergeConfig(bytes.NewBufferString(expanded))
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrConfigInvalid, path, err)
		}
		loaded++
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Output == "" {
		c.Output = "markdown"
	}
	if c.MCP.TimeoutSeconds <= 0 {
		c.MCP.TimeoutSeconds = 30
	}
	if c.Sessions.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Sessions.Dir = filepath.Join(home, ".local", "share", "gptsh", "sessions")
		} else {
			c.Sessions.Dir = "sessions"
		}
	}
	if c.DefaultAgent == "" {
		c.DefaultAgent = "default"
	}
}

// StreamEnabled reports whether streaming is on (default true).
func (c *Config) StreamEnabled() bool {
	return c.Stream == nil || *c.Stream
}

// ProgressEnabled reports whether the progress spinner is on (default true).
func (c *Config) ProgressEnabled() bool {
	return c.Progress == nil || *c.Progress
}

// ResolveProvider picks the provider for an agent, falling back to the
// configured default.
func (c *Config) ResolveProvider(agent *AgentConfig) (string, *ProviderConfig, error) {
	name := c.DefaultProvider
	if agent != nil && agent.Provider != "" {
		name = agent.Provider
	}
	if name == "" && len(c.Providers) == 1 {
		for n := range c.Providers {
			name = n
		}
	}
	p, ok := c.Providers[name]
	if !ok {
		return "", nil, fmt.Errorf("%w: provider %q not configured", domain.ErrConfigInvalid, name)
	}
	return name, &p, nil
}

// ResolveAgent looks up a named agent. An empty name selects the default
// agent; a missing default agent resolves to the zero config.
func (c *Config) ResolveAgent(name string) (string, *AgentConfig, error) {
	if name == "" {
		name = c.DefaultAgent
	}
	a, ok := c.Agents[name]
	if !ok {
		if name == c.DefaultAgent {
			return name, &AgentConfig{}, nil
		}
		return "", nil, fmt.Errorf("%w: agent %q not configured", domain.ErrConfigInvalid, name)
	}
	return name, &a, nil
}

// Model returns the effective model for an agent under a provider.
func (c *Config) Model(agent *AgentConfig, provider *ProviderConfig) string {
	if agent != nil && agent.Model != "" {
		return agent.Model
	}
	return provider.Model
}

// ModelSmall returns the small model used for auxiliary calls such as
// session title generation, falling back to the main model.
func (c *Config) ModelSmall(agent *AgentConfig, provider *ProviderConfig) string {
	if agent != nil && agent.ModelSmall != "" {
		return agent.ModelSmall
	}
	if provider.ModelSmall != "" {
		return provider.ModelSmall
	}
	return c.Model(agent, provider)
}
