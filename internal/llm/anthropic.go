package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	. "github.com/roelfdiedericks/mcprompt/internal/logging"
	"github.com/roelfdiedericks/mcprompt/internal/tokens"
	"github.com/roelfdiedericks/mcprompt/internal/types"
)

// AnthropicProvider completes conversations with Anthropic's Messages API.
// Also works with Anthropic-compatible APIs via BaseURL.
type AnthropicProvider struct {
	name          string // provider instance name, used in logs
	client        *anthropic.Client
	model         string
	maxTokens     int
	contextTokens int
	timeout       time.Duration
	traceEnabled  bool
	estimator     *tokens.Estimator // nil uses tokens.Get()

	// captures the raw response body for error classification
	transport *CapturingTransport
}

// NewAnthropicProvider creates a provider from cfg. Retries are disabled:
// every upstream failure surfaces to the caller.
func NewAnthropicProvider(name string, cfg ProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	transport := &CapturingTransport{Base: http.DefaultTransport}
	httpClient := &http.Client{Transport: transport}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "(default)"
	}

	traceEnabled := true
	if cfg.Trace != nil && !*cfg.Trace {
		traceEnabled = false
	}

	L_debug("anthropic provider created", "name", name, "model", model, "baseURL", baseURL, "maxTokens", maxTokens, "trace", traceEnabled)

	return &AnthropicProvider{
		name:          name,
		client:        &client,
		model:         model,
		maxTokens:     maxTokens,
		contextTokens: cfg.ContextTokens,
		timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
		traceEnabled:  traceEnabled,
		transport:     transport,
	}, nil
}

// trace logs a trace message if tracing is enabled for this provider.
func (p *AnthropicProvider) trace(msg string, args ...any) {
	if p.traceEnabled {
		L_trace(msg, args...)
	}
}

// Name returns the provider instance name
func (p *AnthropicProvider) Name() string {
	return p.name
}

// Model returns the model requests are sent to
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Complete sends one create-message request carrying the whole conversation
// and returns the response content blocks in model order.
func (p *AnthropicProvider) Complete(ctx context.Context, turns []types.Turn, tools []types.ToolDeclaration) ([]types.ContentBlock, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	messages, err := convertTurns(turns)
	if err != nil {
		return nil, &UpstreamError{Type: ErrorTypeFormat, Err: err}
	}

	maxTokens := p.maxTokens
	if p.contextTokens > 0 {
		est := p.estimator
		if est == nil {
			est = tokens.Get()
		}
		estimated := est.CountTurns(turns) + est.CountTools(tools)
		maxTokens = tokens.CapMaxTokens(p.maxTokens, p.contextTokens, estimated, 100)
		if maxTokens != p.maxTokens {
			L_debug("anthropic: capped max_tokens to fit context",
				"provider", p.name,
				"original", p.maxTokens,
				"capped", maxTokens,
				"contextWindow", p.contextTokens,
				"estimatedInput", estimated)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	// the API rejects tool_choice when no tools are declared
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}

	p.trace("anthropic: request", "provider", p.name, "model", p.model, "messages", len(messages), "tools", len(tools), "maxTokens", maxTokens)
	start := time.Now()

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		_, body, status := p.transport.LastCapture()
		ue := newUpstreamError(err, body)
		L_debug("anthropic: request failed", "provider", p.name, "type", ue.Type, "status", status, "error", err)
		return nil, ue
	}

	blocks, err := convertResponse(msg)
	if err != nil {
		return nil, &UpstreamError{Type: ErrorTypeFormat, Err: err}
	}

	L_debug("anthropic: response",
		"provider", p.name,
		"stopReason", msg.StopReason,
		"blocks", len(blocks),
		"inputTokens", msg.Usage.InputTokens,
		"outputTokens", msg.Usage.OutputTokens,
		"elapsed", time.Since(start).Round(time.Millisecond))
	if p.traceEnabled {
		req, _, _ := p.transport.LastCapture()
		L_trace("anthropic: request body", "body", string(req))
	}
	return blocks, nil
}
