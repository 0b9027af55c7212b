// Package tokens estimates prompt sizes so max_tokens can be kept inside the
// model's context window.
package tokens

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	. "github.com/roelfdiedericks/mcprompt/internal/logging"
	"github.com/roelfdiedericks/mcprompt/internal/types"
)

// DefaultEncoding is cl100k_base; close enough for Claude models with SafetyMargin applied
const DefaultEncoding = "cl100k_base"

// messageOverhead is the per-turn cost of role and structure.
const messageOverhead = 4

// Estimator counts tokens with tiktoken, or chars/4 when no encoding is loaded.
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	globalEstimator     *Estimator
	globalEstimatorOnce sync.Once
)

// Get returns the shared estimator, loading the encoding on first use.
func Get() *Estimator {
	globalEstimatorOnce.Do(func() {
		var err error
		globalEstimator, err = New()
		if err != nil {
			L_warn("tokens: encoding unavailable, estimating from length", "error", err)
			globalEstimator = Fallback()
		}
	})
	return globalEstimator
}

// New creates an estimator backed by DefaultEncoding.
func New() (*Estimator, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, err
	}
	return &Estimator{encoding: enc}, nil
}

// Fallback returns an estimator that never touches tiktoken.
func Fallback() *Estimator {
	return &Estimator{}
}

// Count returns the token count for a string.
func (e *Estimator) Count(text string) int {
	if e == nil || e.encoding == nil {
		return len(text) / 4
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// CountTurns estimates a conversation: text, tool inputs and tool results.
func (e *Estimator) CountTurns(turns []types.Turn) int {
	total := 0
	for _, turn := range turns {
		total += messageOverhead
		if turn.IsPlain() {
			total += e.Count(turn.Text)
			continue
		}
		for _, block := range turn.Blocks {
			switch b := block.(type) {
			case types.TextBlock:
				total += e.Count(b.Text)
			case types.ToolUseBlock:
				total += e.Count(b.Name) + e.Count(string(b.Input))
			case types.ToolResultBlock:
				for _, item := range b.Content {
					if item.IsText() {
						total += e.Count(item.Text)
					} else {
						total += e.Count(string(item.Raw))
					}
				}
			}
		}
	}
	return total
}

// CountTools estimates the size of the tool declarations.
func (e *Estimator) CountTools(decls []types.ToolDeclaration) int {
	total := 0
	for _, d := range decls {
		schema, _ := json.Marshal(d.InputSchema)
		total += e.Count(d.Name) + e.Count(d.Description) + e.Count(string(schema))
	}
	return total
}

// SafetyMargin accounts for tokenizer variance; cl100k_base undercounts for Claude.
// 1.2 = 20% buffer.
const SafetyMargin = 1.2

// CapMaxTokens returns min(requestedMax, contextWindow - safeInput - buffer),
// never less than 100. A non-positive contextWindow leaves requestedMax alone.
func CapMaxTokens(requestedMax, contextWindow, estimatedInput, buffer int) int {
	if contextWindow <= 0 {
		return requestedMax
	}

	safeInput := int(float64(estimatedInput) * SafetyMargin)
	available := contextWindow - safeInput - buffer
	if available < 100 {
		available = 100
	}

	if requestedMax > 0 && requestedMax < available {
		return requestedMax
	}
	return available
}
