// Package provider owns the connection to an MCP tool server for one run:
// starting it, listing its tools and calling them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/roelfdiedericks/mcprompt/internal/logging"
	"github.com/roelfdiedericks/mcprompt/internal/types"
)

// maxListPages bounds tools/list pagination against a server that never stops paging.
const maxListPages = 100

// ServerConfig describes how to launch the MCP server process.
type ServerConfig struct {
	Command string
	Args    []string
	Env     map[string]string // added to the inherited environment
	Dir     string
	Stderr  io.Writer // server stderr; nil discards it
}

// NewCommandTransport resolves the server executable and returns a stdio
// transport that will launch it on connect.
func NewCommandTransport(cfg ServerConfig) (mcp.Transport, error) {
	if cfg.Command == "" {
		return nil, &ConnectionError{Err: errors.New("no server command configured")}
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, &ConnectionError{Command: cfg.Command, Err: err}
	}

	cmd := exec.Command(path, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Stderr = cfg.Stderr
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(cfg.Env)...)
	}
	L_debug("provider: resolved server", "command", cfg.Command, "path", path, "args", cfg.Args)
	return &mcp.CommandTransport{Command: cmd}, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}

// Client creates provider sessions.
type Client struct {
	Name    string // client name sent in the MCP handshake
	Version string
	Label   string // used in error messages, usually the server command

	// Transport returns a fresh transport for each connection.
	Transport func() (mcp.Transport, error)
}

// Connect establishes the link to the provider and performs the MCP handshake.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	if c.Transport == nil {
		return nil, &ConnectionError{Command: c.Label, Err: errors.New("no transport configured")}
	}
	t, err := c.Transport()
	if err != nil {
		var ce *ConnectionError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &ConnectionError{Command: c.Label, Err: err}
	}

	client := mcp.NewClient(&mcp.Implementation{Name: c.Name, Version: c.Version}, nil)
	cs, err := client.Connect(ctx, t, nil)
	if err != nil {
		return nil, &ConnectionError{Command: c.Label, Err: err}
	}
	L_debug("provider: connected", "server", c.Label)
	return &Session{cs: cs}, nil
}

// Session is a live connection to the provider.
// Calls are serialized; a Session is not meant to be shared across runs.
type Session struct {
	mu     sync.Mutex
	cs     *mcp.ClientSession
	listed map[string]bool
	closed bool
}

// ListTools queries the provider for its tools, following pagination.
// The returned names become the catalog CallTool checks against.
func (s *Session) ListTools(ctx context.Context) ([]types.ToolDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	var descs []types.ToolDescriptor
	seen := make(map[string]bool)
	params := &mcp.ListToolsParams{}
	for page := 0; ; page++ {
		if page >= maxListPages {
			return nil, &ProtocolError{Op: "tools/list", Err: fmt.Errorf("more than %d pages", maxListPages)}
		}
		res, err := s.cs.ListTools(ctx, params)
		if err != nil {
			return nil, &ProtocolError{Op: "tools/list", Err: err}
		}
		for _, tool := range res.Tools {
			d, err := toDescriptor(tool)
			if err != nil {
				return nil, &ProtocolError{Op: "tools/list", Err: err}
			}
			if seen[d.Name] {
				return nil, &ProtocolError{Op: "tools/list", Err: fmt.Errorf("duplicate tool name %q", d.Name)}
			}
			seen[d.Name] = true
			descs = append(descs, d)
		}
		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}

	s.listed = seen
	L_debug("provider: listed tools", "count", len(descs))
	return descs, nil
}

// CallTool invokes a named tool. An empty result is valid; provider-side
// failures come back as *ToolExecutionError.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*types.ToolOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if !s.listed[name] {
		return nil, &ToolNotFoundError{Name: name}
	}
	if args == nil {
		args = map[string]any{}
	}

	L_debug("provider: calling tool", "tool", name)
	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, &ToolExecutionError{Name: name, Err: err}
	}
	outcome, err := toOutcome(res)
	if err != nil {
		return nil, &ProtocolError{Op: "tools/call", Err: err}
	}
	if res.IsError {
		return nil, &ToolExecutionError{Name: name, Message: outcome.GetText()}
	}
	L_trace("provider: tool result", "tool", name, "items", len(outcome.Content))
	return outcome, nil
}

// Close shuts the connection down. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cs.Close()
}
