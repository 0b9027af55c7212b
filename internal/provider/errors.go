package provider

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned for calls made after Close.
var ErrSessionClosed = errors.New("tool provider session is closed")

// ConnectionError means the provider process could not be started or the
// MCP handshake failed. It is fatal to the run.
type ConnectionError struct {
	Command string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("cannot connect to tool provider %q: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("cannot connect to tool provider: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError means the provider sent a malformed or unusable response.
type ProtocolError struct {
	Op  string // MCP method, e.g. "tools/list"
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("tool provider protocol error in %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ToolNotFoundError is returned when a tool name is not in the last-listed catalog.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ToolExecutionError is returned when the provider reports that a tool failed,
// either as an RPC error (Err) or as an error result (Message).
type ToolExecutionError struct {
	Name    string
	Message string
	Err     error
}

func (e *ToolExecutionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("tool %s failed: %v", e.Name, e.Err)
	case e.Message != "":
		return fmt.Sprintf("tool %s failed: %s", e.Name, e.Message)
	default:
		return fmt.Sprintf("tool %s failed", e.Name)
	}
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
