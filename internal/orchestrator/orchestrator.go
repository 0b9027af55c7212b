// Package orchestrator runs the prompt → tool → answer cycle: it asks the
// model for a first pass with the provider's tools declared, executes the
// tool the model requests, sends the result back and collects the answer.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/roelfdiedericks/mcprompt/internal/llm"
	. "github.com/roelfdiedericks/mcprompt/internal/logging"
	"github.com/roelfdiedericks/mcprompt/internal/metrics"
	"github.com/roelfdiedericks/mcprompt/internal/provider"
	"github.com/roelfdiedericks/mcprompt/internal/tools"
	"github.com/roelfdiedericks/mcprompt/internal/types"
)

// ToolSession is a live connection to a tool provider.
type ToolSession interface {
	ListTools(ctx context.Context) ([]types.ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*types.ToolOutcome, error)
	Close() error
}

// Connector opens one ToolSession per run.
type Connector interface {
	Connect(ctx context.Context) (ToolSession, error)
}

// ConnectFunc adapts a function to Connector.
type ConnectFunc func(ctx context.Context) (ToolSession, error)

// Connect calls f(ctx)
func (f ConnectFunc) Connect(ctx context.Context) (ToolSession, error) {
	return f(ctx)
}

// Model completes a conversation; see llm.Model.
type Model interface {
	Complete(ctx context.Context, turns []types.Turn, tools []types.ToolDeclaration) ([]types.ContentBlock, error)
}

// Observer receives progress callbacks during a run. All methods are
// called from the run's goroutine.
type Observer interface {
	OnTools(names []string)
	OnToolUse(use types.ToolUseBlock)
	OnToolResult(use types.ToolUseBlock, outcome *types.ToolOutcome)
}

type nopObserver struct{}

func (nopObserver) OnTools([]string)                                    {}
func (nopObserver) OnToolUse(types.ToolUseBlock)                        {}
func (nopObserver) OnToolResult(types.ToolUseBlock, *types.ToolOutcome) {}

// Options tune an Orchestrator.
type Options struct {
	ToolUsePolicy Policy // default PolicyFirst
	MaxToolCalls  int    // bound for PolicySequential; 0 = no bound
	Observer      Observer
	Metrics       *metrics.Recorder // nil disables metrics
}

// ToolCall records one executed tool use.
type ToolCall struct {
	ID       string
	Name     string
	Input    json.RawMessage
	Outcome  *types.ToolOutcome
	Duration time.Duration
}

// Result is the outcome of a successful run.
type Result struct {
	RunID     string
	Answer    string
	ToolCalls []ToolCall
	Passes    int // model requests made
}

// Orchestrator wires a tool provider to a model. It holds no per-run state
// and may start any number of runs.
type Orchestrator struct {
	connector Connector
	model     Model
	opts      Options
}

// New creates an Orchestrator.
func New(connector Connector, model Model, opts Options) *Orchestrator {
	if opts.ToolUsePolicy == "" {
		opts.ToolUsePolicy = PolicyFirst
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Orchestrator{connector: connector, model: model, opts: opts}
}

// Run answers prompt in a fresh run.
func (o *Orchestrator) Run(ctx context.Context, prompt string) (*Result, error) {
	return o.NewRun(prompt).Execute(ctx)
}

// NewRun prepares a run without starting it.
func (o *Orchestrator) NewRun(prompt string) *Run {
	return &Run{
		o:           o,
		id:          uuid.NewString(),
		prompt:      prompt,
		state:       StateInit,
		transitions: []State{StateInit},
	}
}

// Run is a single orchestration. Execute may be called once.
type Run struct {
	o      *Orchestrator
	id     string
	prompt string

	state       State
	transitions []State
	started     bool
}

// ID returns the run's unique id
func (r *Run) ID() string { return r.id }

// State returns the current state
func (r *Run) State() State { return r.state }

// Transitions returns every state entered, in order, starting with StateInit.
func (r *Run) Transitions() []State {
	return append([]State(nil), r.transitions...)
}

func (r *Run) enter(s State) {
	L_trace("orchestrator: state", "run", r.id, "from", r.state, "to", s)
	r.state = s
	r.transitions = append(r.transitions, s)
}

// fail moves the run to StateFailed and wraps err.
func (r *Run) fail(err error) error {
	last := r.state
	r.enter(StateFailed)
	kind := ErrorKind(err)
	r.o.opts.Metrics.RecordFailure("run", "", kind)
	L_debug("orchestrator: run failed", "run", r.id, "state", last, "kind", kind, "error", err)
	return &RunError{RunID: r.id, State: last, Err: err}
}

// Execute performs the run. Every collaborator error is fatal and comes back
// as *RunError; the provider session is closed on every path.
func (r *Run) Execute(ctx context.Context) (*Result, error) {
	if r.started {
		return nil, fmt.Errorf("run %s already executed", r.id)
	}
	r.started = true

	o := r.o
	start := time.Now()
	defer o.opts.Metrics.StartTiming("run", "total")()

	if r.prompt == "" {
		return nil, r.fail(ErrEmptyPrompt)
	}
	L_debug("orchestrator: run started", "run", r.id, "policy", o.opts.ToolUsePolicy)

	session, err := o.connector.Connect(ctx)
	if err != nil {
		return nil, r.fail(err)
	}
	if session == nil {
		return nil, r.fail(&provider.ConnectionError{Err: errors.New("connector returned no session")})
	}
	defer func() {
		if err := session.Close(); err != nil {
			L_warn("orchestrator: closing tool provider", "run", r.id, "error", err)
		}
	}()

	stop := o.opts.Metrics.StartTiming("provider", "list_tools")
	descs, err := session.ListTools(ctx)
	stop()
	if err != nil {
		return nil, r.fail(err)
	}
	catalog := tools.NewCatalog(descs)
	decls := catalog.Declarations()
	L_debug("orchestrator: tools listed", "run", r.id, "count", catalog.Count())
	if catalog.Count() > 0 {
		L_trace("orchestrator: catalog\n" + catalog.Summary())
	}
	o.opts.Observer.OnTools(catalog.Names())
	r.enter(StateCatalogBuilt)

	result := &Result{RunID: r.id}
	userTurn := types.UserText(r.prompt)

	blocks, err := r.complete(ctx, []types.Turn{userTurn}, decls)
	if err != nil {
		return nil, r.fail(err)
	}
	result.Passes++
	r.enter(StateFirstPassDone)

	answer := types.Texts(blocks)
	uses := types.ToolUses(blocks)
	if len(uses) == 0 {
		result.Answer = answer
		return r.finish(result, start), nil
	}

	n := o.opts.ToolUsePolicy.limit(len(uses), o.opts.MaxToolCalls)
	for _, skipped := range uses[n:] {
		L_info("orchestrator: skipping tool use", "run", r.id, "tool", skipped.Name, "id", skipped.ID)
		o.opts.Metrics.IncrementCounter("run", "skipped_tool_uses")
	}

	for _, use := range uses[:n] {
		call, err := r.callTool(ctx, session, catalog, use)
		if err != nil {
			return nil, r.fail(err)
		}
		result.ToolCalls = append(result.ToolCalls, *call)
		r.enter(StateToolsExecuted)

		// The assistant turn replays the text produced so far followed by the tool use.
		turns := []types.Turn{
			userTurn,
			types.AssistantBlocks(types.TextBlock{Text: answer}, use),
			types.UserBlocks(types.ToolResultBlock{ToolUseID: use.ID, Content: call.Outcome.Content}),
		}
		if err := types.ValidateConversation(turns); err != nil {
			return nil, r.fail(fmt.Errorf("follow-up conversation: %w", err))
		}

		followUp, err := r.complete(ctx, turns, decls)
		if err != nil {
			return nil, r.fail(err)
		}
		result.Passes++
		if extra := types.ToolUses(followUp); len(extra) > 0 {
			L_debug("orchestrator: ignoring tool uses in follow-up", "run", r.id, "count", len(extra))
			o.opts.Metrics.AddCounter("run", "skipped_tool_uses", int64(len(extra)))
		}
		answer += types.Texts(followUp)
		r.enter(StateSecondPassDone)
	}

	result.Answer = answer
	return r.finish(result, start), nil
}

func (r *Run) finish(result *Result, start time.Time) *Result {
	r.enter(StateComplete)
	m := r.o.opts.Metrics
	m.RecordSuccess("run", "")
	m.AddCounter("run", "passes", int64(result.Passes))
	m.AddCounter("run", "tool_calls", int64(len(result.ToolCalls)))
	L_elapsed(start, "orchestrator: run complete", "run", r.id, "passes", result.Passes, "toolCalls", len(result.ToolCalls))
	return result
}

func (r *Run) complete(ctx context.Context, turns []types.Turn, decls []types.ToolDeclaration) ([]types.ContentBlock, error) {
	defer r.o.opts.Metrics.StartTiming("llm", "complete")()
	return r.o.model.Complete(ctx, turns, decls)
}

func (r *Run) callTool(ctx context.Context, session ToolSession, catalog *tools.Catalog, use types.ToolUseBlock) (*ToolCall, error) {
	o := r.o
	o.opts.Observer.OnToolUse(use)

	if !catalog.Has(use.Name) {
		return nil, &provider.ToolNotFoundError{Name: use.Name}
	}
	args, err := use.Arguments()
	if err != nil {
		return nil, &llm.UpstreamError{
			Type: llm.ErrorTypeFormat,
			Err:  fmt.Errorf("tool_use %s (%s): input is not a JSON object: %w", use.ID, use.Name, err),
		}
	}

	L_debug("orchestrator: calling tool", "run", r.id, "tool", use.Name, "id", use.ID)
	start := time.Now()
	outcome, err := session.CallTool(ctx, use.Name, args)
	elapsed := time.Since(start)
	o.opts.Metrics.RecordDuration("provider", "call_tool", elapsed)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		outcome = &types.ToolOutcome{Content: []types.ResultItem{}}
	}
	o.opts.Observer.OnToolResult(use, outcome)

	return &ToolCall{
		ID:       use.ID,
		Name:     use.Name,
		Input:    use.Input,
		Outcome:  outcome,
		Duration: elapsed,
	}, nil
}
