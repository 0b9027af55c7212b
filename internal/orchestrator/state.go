package orchestrator

import (
	"fmt"
)

// State is a step in the orchestration lifecycle.
type State int

const (
	StateInit State = iota
	StateCatalogBuilt
	StateFirstPassDone
	StateToolsExecuted
	StateSecondPassDone
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	StateInit:           "init",
	StateCatalogBuilt:   "catalog_built",
	StateFirstPassDone:  "first_pass_done",
	StateToolsExecuted:  "tools_executed",
	StateSecondPassDone: "second_pass_done",
	StateComplete:       "complete",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Policy decides which tool uses from the first pass are executed.
type Policy string

const (
	// PolicyFirst executes only the first tool use; the rest are skipped.
	PolicyFirst Policy = "first"
	// PolicySequential executes every tool use in order, each with its own follow-up pass.
	PolicySequential Policy = "sequential"
)

// ParsePolicy validates a policy name. Empty means PolicyFirst.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case "", PolicyFirst:
		return PolicyFirst, nil
	case PolicySequential:
		return PolicySequential, nil
	default:
		return "", fmt.Errorf("unknown tool use policy %q", name)
	}
}

// limit returns how many tool uses to execute out of n.
func (p Policy) limit(n, maxToolCalls int) int {
	switch {
	case p == PolicySequential && maxToolCalls > 0:
		return min(n, maxToolCalls)
	case p == PolicySequential:
		return n
	default:
		return min(n, 1)
	}
}
