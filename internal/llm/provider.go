// Package llm talks to the language model service.
package llm

import (
	"context"
	"errors"

	"github.com/roelfdiedericks/mcprompt/internal/types"
)

// ErrMissingAPIKey is returned when no credential is configured.
var ErrMissingAPIKey = errors.New("ANTHROPIC_API_KEY environment variable is not set")

// Default request settings.
const (
	DefaultModel     = "claude-3-7-sonnet-20250219"
	DefaultMaxTokens = 4000
)

// ProviderConfig configures one LLM provider instance.
type ProviderConfig struct {
	APIKey         string
	BaseURL        string // custom API base URL for Anthropic-compatible endpoints
	Model          string
	MaxTokens      int // output limit per request
	ContextTokens  int // context window; 0 disables max_tokens capping
	TimeoutSeconds int // per-request timeout; 0 means none

	Trace *bool // per-provider trace logging (nil = enabled)
}

// Model is a stateless conversation completer: every call carries the whole
// conversation and the tool declarations the model may use.
type Model interface {
	Complete(ctx context.Context, turns []types.Turn, tools []types.ToolDeclaration) ([]types.ContentBlock, error)
}
