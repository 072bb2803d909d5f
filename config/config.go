package config

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/superagent/errors"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user and per-project configuration directory.
const DirName = ".superagent"

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type AgentConfig struct {
	MaxIterations     int  `yaml:"max_iterations"`
	MaxParseRetries   int  `yaml:"max_parse_retries"`
	ConfirmCompletion bool `yaml:"confirm_completion"`
}

type ContextConfig struct {
	TokenBudget int    `yaml:"token_budget"`
	Tokenizer   string `yaml:"tokenizer"` // "chars" or "tiktoken"
}

type ShellConfig struct {
	Path           string            `yaml:"path"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	MaxOutputBytes int               `yaml:"max_output_bytes"`
	Env            map[string]string `yaml:"env"`
}

type MCPBrowser struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Tool is the MCP tool that navigates to a URL and returns page text.
	Tool string `yaml:"tool"`
}

type BrowserConfig struct {
	Backend   string     `yaml:"backend"` // "rod" or "mcp"
	Headless  bool       `yaml:"headless"`
	MaxChars  int        `yaml:"max_chars"`
	SearchURL string     `yaml:"search_url"`
	MCP       MCPBrowser `yaml:"mcp"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type TelemetryConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	Protocol    string            `yaml:"protocol"`
	Insecure    bool              `yaml:"insecure"`
	ServiceName string            `yaml:"service_name"`
	Headers     map[string]string `yaml:"headers"`
}

type Config struct {
	LLMClient         string           `yaml:"llm"`
	Model             string           `yaml:"model"`
	MaxTokens         int              `yaml:"max_tokens"`
	RequestsPerMinute int              `yaml:"requests_per_minute"`
	LLMRetries        int              `yaml:"llm_retries"`
	Mode              string           `yaml:"mode"`
	Toolsets          []Toolset        `yaml:"toolsets"`
	AllowedCommands   []string         `yaml:"allowed_commands"`
	FilesystemAccess  FilesystemAccess `yaml:"filesystem_access"`
	Agent             AgentConfig      `yaml:"agent"`
	Context           ContextConfig    `yaml:"context"`
	Shell             ShellConfig      `yaml:"shell"`
	Browser           BrowserConfig    `yaml:"browser"`
	Logging           LoggingConfig    `yaml:"logging"`
	Telemetry         TelemetryConfig  `yaml:"telemetry"`
}

// Default returns a configuration with every limit populated.
func Default() *Config {
	cfg := &Config{
		LLMClient:  "anthropic",
		Model:      "claude-sonnet-4-5",
		MaxTokens:  4096,
		LLMRetries: 2,
		Mode:       "auto",
		Toolsets:   []Toolset{{Name: "default", Tools: []string{"*"}}},
		Agent: AgentConfig{
			MaxIterations:   50,
			MaxParseRetries: 3,
		},
		Context: ContextConfig{
			TokenBudget: 24000,
			Tokenizer:   "chars",
		},
		Shell: ShellConfig{
			Path:           "/bin/bash",
			TimeoutSeconds: 60,
			MaxOutputBytes: 30000,
		},
		Browser: BrowserConfig{
			Backend:   "rod",
			Headless:  true,
			MaxChars:  20000,
			SearchURL: "https://duckduckgo.com/html/?q=",
		},
		Logging: LoggingConfig{Level: "info"},
	}
	// Default .superagent directory to be hidden
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, DirName, DirName+"/**")
	return cfg
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence. Both layer on top of
// Default.
func LoadConfig() (*Config, error) {
	cfg := Default()

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, DirName, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, DirName, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, nil
}

// LoadFile layers a single YAML file on top of Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading config %s", path)
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Note: Unmarshal will overwrite fields present in the YAML. This provides
	// a simple merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

// Validate checks enumerations and limits after all layers are applied.
func (c *Config) Validate() error {
	switch c.LLMClient {
	case "anthropic", "openai", "gemini", "bedrock", "scripted":
	default:
		return errors.New("unknown llm client %q", c.LLMClient)
	}
	switch c.Mode {
	case "auto", "prompt":
	default:
		return errors.New("invalid mode %q: must be 'auto' or 'prompt'", c.Mode)
	}
	switch c.Context.Tokenizer {
	case "chars", "tiktoken":
	default:
		return errors.New("invalid context.tokenizer %q", c.Context.Tokenizer)
	}
	switch c.Browser.Backend {
	case "rod":
	case "mcp":
		if c.Browser.MCP.Command == "" || c.Browser.MCP.Tool == "" {
			return errors.New("browser.mcp.command and browser.mcp.tool are required for the mcp backend")
		}
	default:
		return errors.New("invalid browser.backend %q", c.Browser.Backend)
	}
	if c.Agent.MaxIterations <= 0 {
		return errors.New("agent.max_iterations must be positive")
	}
	if c.Agent.MaxParseRetries <= 0 {
		return errors.New("agent.max_parse_retries must be positive")
	}
	if c.Context.TokenBudget <= 0 {
		return errors.New("context.token_budget must be positive")
	}
	if c.Shell.TimeoutSeconds <= 0 {
		return errors.New("shell.timeout_seconds must be positive")
	}
	if c.LLMRetries < 0 || c.RequestsPerMinute < 0 {
		return errors.New("llm_retries and requests_per_minute must not be negative")
	}
	if _, err := c.GetToolset("default"); err != nil {
		return err
	}
	return nil
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	// Fallback to default if a specific toolset was requested but not found
	return c.GetToolset("default")
}
