package orchestrator

import (
	"errors"
	"fmt"

	"github.com/roelfdiedericks/mcprompt/internal/llm"
	"github.com/roelfdiedericks/mcprompt/internal/provider"
)

// ErrEmptyPrompt is returned when a run is started without a prompt.
var ErrEmptyPrompt = errors.New("prompt is empty")

// RunError reports a failed run. Err is the collaborator's error, unchanged,
// so errors.As still finds the typed provider and LLM errors.
type RunError struct {
	RunID string
	State State // last state reached before the failure
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed after %s: %v", e.RunID, e.State, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// ErrorKind names the category of a run failure, for metrics and logs.
func ErrorKind(err error) string {
	var (
		connErr  *provider.ConnectionError
		protoErr *provider.ProtocolError
		nfErr    *provider.ToolNotFoundError
		execErr  *provider.ToolExecutionError
		upErr    *llm.UpstreamError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &protoErr):
		return "protocol"
	case errors.As(err, &nfErr):
		return "tool_not_found"
	case errors.As(err, &execErr):
		return "tool_execution"
	case errors.As(err, &upErr):
		return "upstream_" + string(upErr.Type)
	case errors.Is(err, ErrEmptyPrompt):
		return "empty_prompt"
	default:
		return "other"
	}
}
