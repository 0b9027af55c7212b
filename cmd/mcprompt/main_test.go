package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roelfdiedericks/mcprompt/internal/config"
	. "github.com/roelfdiedericks/mcprompt/internal/logging"
)

// serverEnv makes the test binary act as an MCP server on stdio.
const serverEnv = "MCPROMPT_TEST_MCP_SERVER"

func TestMain(m *testing.M) {
	if os.Getenv(serverEnv) == "1" {
		if err := serveTools(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type searchInput struct {
	Q string `json:"q"`
}

func serveTools() error {
	server := mcp.NewServer(&mcp.Implementation{Name: "test-tools", Version: "v0.0.1"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "search", Description: "Search videos"},
		func(ctx context.Context, req *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "3 results for " + in.Q}},
			}, nil, nil
		})
	mcp.AddTool(server, &mcp.Tool{Name: "fails"},
		func(ctx context.Context, req *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
			return nil, nil, errors.New("quota exhausted")
		})
	return server.Run(context.Background(), &mcp.StdioTransport{})
}

// isolate runs the test in an empty directory and home with no mcprompt environment.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	for _, k := range []string{config.EnvAPIKey, config.EnvBaseURL, config.EnvModel, config.EnvMaxTokens, config.EnvLogLevel} {
		t.Setenv(k, "")
	}
	return dir
}

func runCLI(args ...string) (code int, stdout, stderr string) {
	var out, errb bytes.Buffer
	code = run(args, &out, &errb)
	return code, out.String(), errb.String()
}

func TestEmptyPrompt(t *testing.T) {
	isolate(t)
	for _, args := range [][]string{nil, {"   "}, {"", ""}} {
		code, stdout, stderr := runCLI(args...)
		if code != 1 {
			t.Errorf("args %q: exit code = %d, want 1", args, code)
		}
		if !strings.Contains(stderr, "Usage") {
			t.Errorf("args %q: stderr = %q, want usage", args, stderr)
		}
		if stdout != "" {
			t.Errorf("args %q: stdout = %q", args, stdout)
		}
	}
}

func TestMissingAPIKey(t *testing.T) {
	isolate(t)
	code, stdout, stderr := runCLI("What", "is", "new?")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, config.EnvAPIKey) {
		t.Errorf("stderr = %q", stderr)
	}
	if stdout != "" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI("--version")
	if code != 0 || !strings.Contains(stdout, "mcprompt "+version) {
		t.Errorf("code = %d, stdout = %q", code, stdout)
	}
}

func TestUnknownFlag(t *testing.T) {
	isolate(t)
	code, _, stderr := runCLI("--no-such-flag", "hi")
	if code != 1 || !strings.Contains(stderr, "error") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestSaveConfig(t *testing.T) {
	dir := isolate(t)
	t.Setenv(config.EnvAPIKey, "sk-secret")
	path := filepath.Join(dir, "saved.yaml")

	code, _, stderr := runCLI("--save-config", path, "--model", "claude-test", "--server", "uvx", "--server-arg", "mcp-server-time")
	if code != 0 {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Error("API key written to saved config")
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		t.Fatalf("config.ReadFile: %v", err)
	}
	if cfg.LLM.Model != "claude-test" || cfg.Server.Command != "uvx" || len(cfg.Server.Args) != 1 {
		t.Errorf("saved config = %+v", cfg)
	}
}

func TestConfigLoadLogsAtDebug(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "mcprompt.yaml"), []byte("llm:\n  model: claude-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.json")

	code, _, stderr := runCLI("--log-level", "debug", "--save-config", out)
	if code != 0 {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stderr, "config: loaded file") {
		t.Errorf("config load not logged at debug:\n%s", stderr)
	}

	code, _, stderr = runCLI("--save-config", out)
	if code != 0 || strings.Contains(stderr, "config: loaded file") {
		t.Errorf("code = %d, debug line logged at default level:\n%s", code, stderr)
	}
}

func TestStartupLevel(t *testing.T) {
	t.Setenv(config.EnvLogLevel, "")
	if got := startupLevel(""); got != LevelWarn {
		t.Errorf("default = %d, want warn", got)
	}
	if got := startupLevel("trace"); got != LevelTrace {
		t.Errorf("flag trace = %d", got)
	}
	if got := startupLevel("loud"); got != LevelWarn {
		t.Errorf("bad flag = %d, want warn", got)
	}
	t.Setenv(config.EnvLogLevel, "debug")
	if got := startupLevel(""); got != LevelDebug {
		t.Errorf("env debug = %d", got)
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Defaults()
	cli := &CLI{ServerArg: []string{"--port", "0"}, Policy: "sequential", MaxTokens: 100, LogLevel: "debug"}
	cli.apply(cfg)
	if cfg.Server.Command != "npx" || strings.Join(cfg.Server.Args, " ") != "--port 0" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Orchestrator.ToolUsePolicy != "sequential" || cfg.LLM.MaxTokens != 100 || cfg.Logging.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

// messagesAPI is a fake Anthropic Messages API: the first request gets a
// tool use, later requests a plain answer.
type messagesAPI struct {
	tool string

	mu       sync.Mutex
	requests []map[string]any
}

func (a *messagesAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(data, &req)

	a.mu.Lock()
	a.requests = append(a.requests, req)
	n := len(a.requests)
	a.mu.Unlock()

	content := `[{"type":"text","text":"Found 3 results."}]`
	if n == 1 {
		content = fmt.Sprintf(`[{"type":"text","text":"Let me check. "},{"type":"tool_use","id":"tu_1","name":%q,"input":{"q":"cats"}}]`, a.tool)
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"id":"msg_%d","type":"message","role":"assistant","model":"test","content":%s,"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`, n, content)
}

func startRun(t *testing.T, tool string, extra ...string) (*messagesAPI, int, string, string) {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("Executable: %v", err)
	}
	isolate(t)

	api := &messagesAPI{tool: tool}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	t.Setenv(config.EnvAPIKey, "sk-test")
	t.Setenv(config.EnvBaseURL, srv.URL+"/")
	t.Setenv(serverEnv, "1")

	args := append([]string{"--server", exe, "--timeout", "30s"}, extra...)
	args = append(args, "find", "cats")
	code, stdout, stderr := runCLI(args...)
	return api, code, stdout, stderr
}

func TestEndToEnd(t *testing.T) {
	api, code, stdout, stderr := startRun(t, "search", "--plain")
	if code != 0 {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
	if stdout != "Let me check. Found 3 results.\n" {
		t.Errorf("stdout = %q", stdout)
	}
	if len(api.requests) != 2 {
		t.Fatalf("got %d model requests, want 2", len(api.requests))
	}

	first := api.requests[0]
	tools := first["tools"].([]any)
	if len(tools) != 2 {
		t.Errorf("declared %d tools, want 2", len(tools))
	}
	msgs := first["messages"].([]any)
	prompt := msgs[0].(map[string]any)["content"].([]any)[0].(map[string]any)["text"]
	if prompt != "find cats" {
		t.Errorf("prompt = %v", prompt)
	}

	follow := api.requests[1]["messages"].([]any)
	result := follow[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	if result["tool_use_id"] != "tu_1" {
		t.Errorf("tool_result = %v", result)
	}
	text := result["content"].([]any)[0].(map[string]any)["text"]
	if text != "3 results for cats" {
		t.Errorf("tool result text = %v", text)
	}
}

func TestEndToEndProgress(t *testing.T) {
	_, code, stdout, stderr := startRun(t, "search", "--stats")
	if code != 0 {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
	if stdout != "Response:\nLet me check. Found 3 results.\n" {
		t.Errorf("stdout = %q", stdout)
	}
	for _, want := range []string{"Available tools:", "Using tool: search", "Tool response received: text", "Stats:", "run/tool_calls"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
}

func TestEndToEndToolFailure(t *testing.T) {
	api, code, stdout, stderr := startRun(t, "fails", "--plain")
	if code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	if stdout != "" {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "Error:") || !strings.Contains(stderr, "quota exhausted") {
		t.Errorf("stderr = %q", stderr)
	}
	if len(api.requests) != 1 {
		t.Errorf("got %d model requests, want 1", len(api.requests))
	}
}
