package config

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/charmbracelet/catwalk/pkg/catwalk"
)

const (
	appName = "devpilot"

	DefaultHistoryLimit            = 50
	DefaultMaxSessionLogs          = 2000
	DefaultConversationMaxMessages = 50

	DefaultMaxOutputBytes = 4096
	DefaultHeadLines      = 20
	DefaultTailLines      = 10
	DefaultMaxListItems   = 20
)

var defaultConfigPaths = []string{
	".devpilot.json",
	"devpilot.json",
}

type EngineType string

const (
	EngineTypeClaudeCLI EngineType = "claude-cli"
	EngineTypeCodexCLI  EngineType = "codex-cli"
	EngineTypeOpenAI    EngineType = "openai"
	EngineTypeGemini    EngineType = "gemini"
)

func (t EngineType) Valid() bool {
	switch t {
	case EngineTypeClaudeCLI, EngineTypeCodexCLI, EngineTypeOpenAI, EngineTypeGemini:
		return true
	}
	return false
}

type RenderOptions struct {
	// MaxOutputBytes caps a single rendered tool output.
	MaxOutputBytes int `json:"max_output_bytes,omitempty"`
	// HeadLines and TailLines are kept when an output is truncated.
	HeadLines int `json:"head_lines,omitempty"`
	TailLines int `json:"tail_lines,omitempty"`
	// MaxListItems caps rendered file and todo lists.
	MaxListItems int `json:"max_list_items,omitempty"`
}

type Options struct {
	DataDirectory           string        `json:"data_directory,omitempty"`
	Debug                   bool          `json:"debug,omitempty"`
	HistoryLimit            int           `json:"history_limit,omitempty"`
	MaxSessionLogs          int           `json:"max_session_logs,omitempty"`
	ConversationMaxMessages int           `json:"conversation_max_messages,omitempty"`
	Render                  RenderOptions `json:"render,omitzero"`
}

type EngineConfig struct {
	// The engine name, filled from the map key.
	Name        string     `json:"-"`
	Type        EngineType `json:"type"`
	DisplayName string     `json:"display_name,omitempty"`
	Disabled    bool       `json:"disabled,omitempty"`

	// CLI engines.
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	PermissionMode string            `json:"permission_mode,omitempty"`

	// API engines.
	BaseURL      string            `json:"base_url,omitempty"`
	APIKey       string            `json:"api_key,omitempty"`
	ExtraHeaders map[string]string `json:"extra_headers,omitempty"`
	MaxTokens    int64             `json:"max_tokens,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`

	Model string `json:"model,omitempty"`
	// Provider is the pricing provider id used for cost lookup.
	Provider string `json:"provider,omitempty"`
}

// Label is the human readable engine name.
func (e EngineConfig) Label() string {
	return cmp.Or(e.DisplayName, e.Name)
}

type Config struct {
	Options       *Options                `json:"options,omitempty"`
	DefaultEngine string                  `json:"default_engine,omitempty"`
	Engines       map[string]EngineConfig `json:"engines,omitempty"`
	// Pricing rows merged over the built-in price table.
	Pricing []catwalk.Provider `json:"pricing,omitempty"`

	workingDir string
	resolver   VariableResolver
}

func (c *Config) WorkingDir() string {
	return c.workingDir
}

func (c *Config) Resolver() VariableResolver {
	return c.resolver
}

// EnabledEngines returns the enabled engines sorted by name.
func (c *Config) EnabledEngines() []EngineConfig {
	var engines []EngineConfig
	for _, name := range slices.Sorted(maps.Keys(c.Engines)) {
		e := c.Engines[name]
		if e.Disabled {
			continue
		}
		engines = append(engines, e)
	}
	return engines
}

func (c *Config) Engine(name string) (EngineConfig, bool) {
	e, ok := c.Engines[name]
	return e, ok
}

func (c *Config) Validate() error {
	for name, e := range c.Engines {
		if !e.Type.Valid() {
			return fmt.Errorf("engine %s: unknown type %q", name, e.Type)
		}
	}
	def, ok := c.Engines[c.DefaultEngine]
	if !ok {
		return fmt.Errorf("default engine %q is not configured", c.DefaultEngine)
	}
	if def.Disabled {
		return fmt.Errorf("default engine %q is disabled", c.DefaultEngine)
	}
	return nil
}

func defaultEngines() map[string]EngineConfig {
	return map[string]EngineConfig{
		"claude": {
			Type:        EngineTypeClaudeCLI,
			DisplayName: "Claude Code",
			Command:     "claude",
			Provider:    string(catwalk.InferenceProviderAnthropic),
		},
		"codex": {
			Type:        EngineTypeCodexCLI,
			DisplayName: "Codex",
			Command:     "codex",
			Provider:    string(catwalk.InferenceProviderOpenAI),
		},
		"openai": {
			Type:        EngineTypeOpenAI,
			DisplayName: "OpenAI",
			APIKey:      "$OPENAI_API_KEY",
			Model:       "gpt-4.1",
			Provider:    string(catwalk.InferenceProviderOpenAI),
		},
		"gemini": {
			Type:        EngineTypeGemini,
			DisplayName: "Gemini",
			APIKey:      "$GEMINI_API_KEY",
			Model:       "gemini-2.5-flash",
			Provider:    string(catwalk.InferenceProviderGemini),
		},
		"glm": {
			Type:        EngineTypeClaudeCLI,
			DisplayName: "GLM",
			Command:     "claude",
			Model:       "glm-4.6",
			Provider:    "zai",
			Env: map[string]string{
				"ANTHROPIC_BASE_URL":   "https://api.z.ai/api/anthropic",
				"ANTHROPIC_AUTH_TOKEN": "$ZAI_API_KEY",
			},
		},
	}
}
