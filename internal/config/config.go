// Package config provides layered configuration loading for mcprompt.
//
// Sources are applied in order, later ones winning:
// built-in defaults, config file (JSON, YAML or TOML), .env file,
// environment variables, and finally command-line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/roelfdiedericks/mcprompt/internal/llm"
	"github.com/roelfdiedericks/mcprompt/internal/logging"
	"github.com/roelfdiedericks/mcprompt/internal/orchestrator"
	"github.com/roelfdiedericks/mcprompt/internal/paths"
)

// Environment variables consulted by Load.
const (
	EnvAPIKey    = "ANTHROPIC_API_KEY"
	EnvBaseURL   = "ANTHROPIC_BASE_URL"
	EnvModel     = "MCPROMPT_MODEL"
	EnvMaxTokens = "MCPROMPT_MAX_TOKENS"
	EnvLogLevel  = "MCPROMPT_LOG_LEVEL"
)

// Config represents the merged mcprompt configuration
type Config struct {
	LLM          LLMConfig          `json:"llm" yaml:"llm" toml:"llm"`
	Server       ServerConfig       `json:"server" yaml:"server" toml:"server"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator" toml:"orchestrator"`
	Logging      LoggingConfig      `json:"logging" yaml:"logging" toml:"logging"`
}

// LLMConfig configures the Anthropic Messages API client.
type LLMConfig struct {
	APIKey         string `json:"apiKey,omitempty" yaml:"apiKey,omitempty" toml:"apiKey,omitempty"`
	BaseURL        string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" toml:"baseURL,omitempty"`
	Model          string `json:"model" yaml:"model" toml:"model"`
	MaxTokens      int    `json:"maxTokens" yaml:"maxTokens" toml:"maxTokens"`
	ContextTokens  int    `json:"contextTokens,omitempty" yaml:"contextTokens,omitempty" toml:"contextTokens,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty" toml:"timeoutSeconds,omitempty"`
}

// ServerConfig describes how to launch the MCP tool server.
type ServerConfig struct {
	Command string            `json:"command" yaml:"command" toml:"command"`
	Args    []string          `json:"args" yaml:"args" toml:"args"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	Dir     string            `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir,omitempty"`
}

// OrchestratorConfig tunes the tool-use loop.
type OrchestratorConfig struct {
	ToolUsePolicy string `json:"toolUsePolicy" yaml:"toolUsePolicy" toml:"toolUsePolicy"` // "first" or "sequential"
	MaxToolCalls  int    `json:"maxToolCalls" yaml:"maxToolCalls" toml:"maxToolCalls"`    // 0 = policy default
	// RunTimeoutSeconds bounds a whole run; 0 = no deadline
	RunTimeoutSeconds int `json:"runTimeoutSeconds,omitempty" yaml:"runTimeoutSeconds,omitempty" toml:"runTimeoutSeconds,omitempty"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" toml:"level"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:     llm.DefaultModel,
			MaxTokens: llm.DefaultMaxTokens,
		},
		Server: ServerConfig{
			Command: "npx",
			Args:    []string{"-y", "@anaisbetts/mcp-youtube"},
		},
		Orchestrator: OrchestratorConfig{
			ToolUsePolicy: string(orchestrator.PolicyFirst),
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// LoadOptions controls where Load looks for its sources.
type LoadOptions struct {
	Path    string // explicit config file; empty = search via paths.ConfigPath
	EnvFile string // .env file; empty = ".env" in the working directory
}

// Load builds the effective configuration from defaults, config file, .env and environment.
// Returns the config and the path of the file that was read ("" if none).
func Load(opts LoadOptions) (*Config, string, error) {
	path := opts.Path
	if path == "" {
		found, err := paths.ConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = found
	} else {
		expanded, err := paths.ExpandTilde(path)
		if err != nil {
			return nil, "", err
		}
		path = expanded
	}

	cfg := Defaults()
	if path != "" {
		fileCfg, err := ReadFile(path)
		if err != nil {
			return nil, "", err
		}
		defaults := Defaults()
		// A configured server brings its own arguments
		if fileCfg.Server.Command != "" {
			defaults.Server.Args = nil
		}
		if err := mergo.Merge(fileCfg, defaults); err != nil {
			return nil, "", fmt.Errorf("failed to merge config defaults: %w", err)
		}
		cfg = fileCfg
		logging.L_debug("config: loaded file", "path", path)
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	} else {
		logging.L_debug("config: loaded env file", "path", envFile)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// applyEnv overlays environment variables onto the config.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(EnvMaxTokens); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxTokens, v, err)
		}
		c.LLM.MaxTokens = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration is usable for a run.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return llm.ErrMissingAPIKey
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.maxTokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.Server.Command == "" {
		return errors.New("server.command is required")
	}
	if _, err := orchestrator.ParsePolicy(c.Orchestrator.ToolUsePolicy); err != nil {
		return fmt.Errorf("orchestrator.toolUsePolicy: %w", err)
	}
	if c.Orchestrator.MaxToolCalls < 0 {
		return fmt.Errorf("orchestrator.maxToolCalls must not be negative, got %d", c.Orchestrator.MaxToolCalls)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// Redacted returns a copy safe to print or save (credential removed).
func (c *Config) Redacted() *Config {
	clone := *c
	clone.LLM.APIKey = ""
	return &clone
}
