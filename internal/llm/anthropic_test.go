package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/roelfdiedericks/mcprompt/internal/tokens"
	"github.com/roelfdiedericks/mcprompt/internal/types"
)

// fakeAPI is a minimal Messages API that replies with canned responses and
// records the decoded request bodies.
type fakeAPI struct {
	mu       sync.Mutex
	requests []map[string]any
	status   int
	body     string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/messages" {
		http.NotFound(w, r)
		return
	}
	data, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(data, &req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, body := f.status, f.body
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func (f *fakeAPI) last(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no request received")
	}
	return f.requests[len(f.requests)-1]
}

func newTestProvider(t *testing.T, api *fakeAPI) *AnthropicProvider {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	p, err := NewAnthropicProvider("test", ProviderConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/",
		Model:   "test-model",
	})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	return p
}

const toolUseResponse = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "test-model",
	"content": [
		{"type": "text", "text": "Let me check."},
		{"type": "tool_use", "id": "tu_1", "name": "search", "input": {"q": "cats"}},
		{"type": "thinking", "thinking": "hmm", "signature": "sig"}
	],
	"stop_reason": "tool_use",
	"stop_sequence": null,
	"usage": {"input_tokens": 10, "output_tokens": 5}
}`

const textResponse = `{
	"id": "msg_2",
	"type": "message",
	"role": "assistant",
	"model": "test-model",
	"content": [{"type": "text", "text": "Found 3 results."}],
	"stop_reason": "end_turn",
	"stop_sequence": null,
	"usage": {"input_tokens": 20, "output_tokens": 4}
}`

func TestNewAnthropicProviderMissingKey(t *testing.T) {
	_, err := NewAnthropicProvider("test", ProviderConfig{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestNewAnthropicProviderDefaults(t *testing.T) {
	p, err := NewAnthropicProvider("anthropic", ProviderConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if p.Model() != DefaultModel || p.maxTokens != DefaultMaxTokens {
		t.Errorf("model=%q maxTokens=%d", p.Model(), p.maxTokens)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name = %q", p.Name())
	}
}

func TestCompleteParsesBlocks(t *testing.T) {
	api := &fakeAPI{body: toolUseResponse}
	p := newTestProvider(t, api)

	blocks, err := p.Complete(context.Background(), []types.Turn{types.UserText("find cats")}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks: %+v", len(blocks), blocks)
	}
	if tb, ok := blocks[0].(types.TextBlock); !ok || tb.Text != "Let me check." {
		t.Errorf("block 0 = %+v", blocks[0])
	}
	tu, ok := blocks[1].(types.ToolUseBlock)
	if !ok || tu.ID != "tu_1" || tu.Name != "search" {
		t.Fatalf("block 1 = %+v", blocks[1])
	}
	args, err := tu.Arguments()
	if err != nil || args["q"] != "cats" {
		t.Errorf("arguments = %v, %v", args, err)
	}
	if other, ok := blocks[2].(types.OtherBlock); !ok || other.Type != "thinking" || len(other.Raw) == 0 {
		t.Errorf("block 2 = %+v", blocks[2])
	}

	req := api.last(t)
	if req["model"] != "test-model" {
		t.Errorf("model = %v", req["model"])
	}
	if req["max_tokens"] != float64(DefaultMaxTokens) {
		t.Errorf("max_tokens = %v", req["max_tokens"])
	}
	if _, ok := req["tool_choice"]; ok {
		t.Error("tool_choice sent without tools")
	}
	if _, ok := req["tools"]; ok {
		t.Error("tools sent when none declared")
	}
}

func TestCompleteRequestEncoding(t *testing.T) {
	api := &fakeAPI{body: textResponse}
	p := newTestProvider(t, api)

	tools := []types.ToolDeclaration{{
		Name:        "search",
		Description: "Search videos",
		InputSchema: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"q": map[string]any{"type": "string"}},
			"required":             []any{"q"},
			"additionalProperties": false,
		},
	}}
	other := json.RawMessage(`{"type":"resource","resource":{"uri":"file:///x"}}`)
	turns := []types.Turn{
		types.UserText("find cats"),
		types.AssistantBlocks(
			types.TextBlock{Text: ""},
			types.ToolUseBlock{ID: "tu_1", Name: "search", Input: json.RawMessage(`{"q":"cats"}`)},
		),
		types.UserBlocks(types.ToolResultBlock{
			ToolUseID: "tu_1",
			Content: []types.ResultItem{
				types.TextItem("Found 3 results."),
				{Type: "image", Data: "cG5n", MimeType: "image/png"},
				{Type: "resource", Raw: other},
			},
		}),
	}

	blocks, err := p.Complete(context.Background(), turns, tools)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := types.Texts(blocks); got != "Found 3 results." {
		t.Errorf("text = %q", got)
	}

	req := api.last(t)
	if diff := cmp.Diff(map[string]any{"type": "auto"}, req["tool_choice"]); diff != "" {
		t.Errorf("tool_choice mismatch (-want +got):\n%s", diff)
	}

	tool := req["tools"].([]any)[0].(map[string]any)
	if tool["name"] != "search" || tool["description"] != "Search videos" {
		t.Errorf("tool = %v", tool)
	}
	wantSchema := map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"q": map[string]any{"type": "string"}},
		"required":             []any{"q"},
		"additionalProperties": false,
	}
	if diff := cmp.Diff(wantSchema, tool["input_schema"]); diff != "" {
		t.Errorf("input_schema mismatch (-want +got):\n%s", diff)
	}

	msgs := req["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}

	assistant := msgs[1].(map[string]any)
	content := assistant["content"].([]any)
	if assistant["role"] != "assistant" || len(content) != 1 {
		t.Fatalf("assistant message = %v", assistant)
	}
	wantUse := map[string]any{
		"type":  "tool_use",
		"id":    "tu_1",
		"name":  "search",
		"input": map[string]any{"q": "cats"},
	}
	if diff := cmp.Diff(wantUse, content[0]); diff != "" {
		t.Errorf("tool_use mismatch (-want +got):\n%s", diff)
	}

	user := msgs[2].(map[string]any)
	result := user["content"].([]any)[0].(map[string]any)
	if result["type"] != "tool_result" || result["tool_use_id"] != "tu_1" {
		t.Fatalf("tool_result = %v", result)
	}
	items := result["content"].([]any)
	if len(items) != 3 {
		t.Fatalf("got %d tool_result items: %v", len(items), items)
	}
	if diff := cmp.Diff(map[string]any{"type": "text", "text": "Found 3 results."}, items[0]); diff != "" {
		t.Errorf("text item mismatch (-want +got):\n%s", diff)
	}
	wantImage := map[string]any{
		"type": "image",
		"source": map[string]any{
			"type":       "base64",
			"media_type": "image/png",
			"data":       "cG5n",
		},
	}
	if diff := cmp.Diff(wantImage, items[1]); diff != "" {
		t.Errorf("image item mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"type": "text", "text": string(other)}, items[2]); diff != "" {
		t.Errorf("other item mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteSendsSchemaUnchanged(t *testing.T) {
	api := &fakeAPI{body: textResponse}
	p := newTestProvider(t, api)

	schema := map[string]any{
		"type":       "string",
		"properties": map[string]any{"q": map[string]any{"type": "string"}},
		"required":   []any{"q", float64(7)},
		"$defs":      map[string]any{"id": map[string]any{"type": "integer"}},
	}
	tools := []types.ToolDeclaration{{Name: "odd", InputSchema: schema}}
	if _, err := p.Complete(context.Background(), []types.Turn{types.UserText("hi")}, tools); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	tool := api.last(t)["tools"].([]any)[0].(map[string]any)
	if diff := cmp.Diff(schema, tool["input_schema"]); diff != "" {
		t.Errorf("input_schema mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteCapsMaxTokens(t *testing.T) {
	api := &fakeAPI{body: textResponse}
	srv := httptest.NewServer(api)
	defer srv.Close()

	p, err := NewAnthropicProvider("test", ProviderConfig{
		APIKey:        "k",
		BaseURL:       srv.URL + "/",
		MaxTokens:     4000,
		ContextTokens: 1000,
	})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	p.estimator = tokens.Fallback()
	if _, err := p.Complete(context.Background(), []types.Turn{types.UserText(strings.Repeat("word ", 1000))}, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got := api.last(t)["max_tokens"].(float64)
	if got >= 4000 || got < 100 {
		t.Errorf("max_tokens = %v, want capped below context window", got)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorType
	}{
		{"auth", 401, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, ErrorTypeAuth},
		{"rate limit", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, ErrorTypeRateLimit},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, ErrorTypeOverloaded},
		{"max tokens", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: 8192 > 4096, which is the maximum allowed number of output tokens"}}`, ErrorTypeMaxTokens},
		{"too long", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"prompt is too long: 250000 tokens"}}`, ErrorTypeContextOverflow},
		{"credit balance", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"Your credit balance is too low to access the Anthropic API."}}`, ErrorTypeBilling},
		{"permission", 403, `{"type":"error","error":{"type":"permission_error","message":"not allowed"}}`, ErrorTypeAuth},
		{"bad request", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"messages.0: bad"}}`, ErrorTypeFormat},
		{"server", 500, `{"type":"error","error":{"type":"api_error","message":"Internal"}}`, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{status: tt.status, body: tt.body}
			p := newTestProvider(t, api)

			_, err := p.Complete(context.Background(), []types.Turn{types.UserText("hi")}, nil)
			var ue *UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("err = %v, want UpstreamError", err)
			}
			if ue.Type != tt.want {
				t.Errorf("Type = %s, want %s", ue.Type, tt.want)
			}
			if ue.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", ue.StatusCode, tt.status)
			}
			if len(api.requests) != 1 {
				t.Errorf("got %d requests, want 1 (no retries)", len(api.requests))
			}
		})
	}
}

func TestCompleteCanceled(t *testing.T) {
	api := &fakeAPI{body: textResponse}
	p := newTestProvider(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Complete(ctx, []types.Turn{types.UserText("hi")}, nil)
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Type != ErrorTypeCanceled {
		t.Fatalf("err = %v, want canceled UpstreamError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err does not wrap context.Canceled: %v", err)
	}
}

func TestConvertTurnsRejectsOtherBlocks(t *testing.T) {
	_, err := convertTurns([]types.Turn{
		types.AssistantBlocks(types.OtherBlock{Type: "thinking"}),
	})
	if err == nil {
		t.Fatal("expected error for unencodable block")
	}
}

func TestConvertTurnsSkipsEmpty(t *testing.T) {
	msgs, err := convertTurns([]types.Turn{
		types.UserText("hi"),
		types.AssistantBlocks(types.TextBlock{}),
	})
	if err != nil {
		t.Fatalf("convertTurns: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("got %d messages, want 1", len(msgs))
	}
}

func TestCompleteEmptyTextToolResult(t *testing.T) {
	api := &fakeAPI{body: textResponse}
	p := newTestProvider(t, api)

	turns := []types.Turn{
		types.UserText("find cats"),
		types.AssistantBlocks(types.ToolUseBlock{ID: "t1", Name: "search", Input: json.RawMessage(`{}`)}),
		types.UserBlocks(types.ToolResultBlock{ToolUseID: "t1", Content: []types.ResultItem{types.TextItem("")}}),
	}
	if _, err := p.Complete(context.Background(), turns, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	msgs := api.last(t)["messages"].([]any)
	result := msgs[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	if result["type"] != "tool_result" || result["tool_use_id"] != "t1" {
		t.Fatalf("tool_result = %v", result)
	}
	if content, ok := result["content"].([]any); ok && len(content) != 0 {
		t.Errorf("empty text item forwarded: %v", content)
	}
}
