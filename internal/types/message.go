// Package types contains shared types used across multiple packages.
// This helps avoid import cycles between packages like llm and orchestrator.
package types

import "fmt"

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation.
// A turn carries either plain Text or a sequence of Blocks, never both.
type Turn struct {
	Role   Role
	Text   string
	Blocks []ContentBlock
}

// UserText creates a user turn with plain text content.
func UserText(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// UserBlocks creates a user turn made of content blocks.
func UserBlocks(blocks ...ContentBlock) Turn {
	return Turn{Role: RoleUser, Blocks: blocks}
}

// AssistantBlocks creates an assistant turn made of content blocks.
func AssistantBlocks(blocks ...ContentBlock) Turn {
	return Turn{Role: RoleAssistant, Blocks: blocks}
}

// IsPlain reports whether the turn carries plain text rather than blocks.
func (t Turn) IsPlain() bool {
	return t.Blocks == nil
}

// ValidateConversation checks that every tool_result references a tool_use
// emitted earlier in the same conversation.
func ValidateConversation(turns []Turn) error {
	seen := make(map[string]bool)
	for i, turn := range turns {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
		for _, block := range turn.Blocks {
			switch b := block.(type) {
			case ToolUseBlock:
				seen[b.ID] = true
			case ToolResultBlock:
				if !seen[b.ToolUseID] {
					return fmt.Errorf("turn %d: tool_result references unknown tool_use %q", i, b.ToolUseID)
				}
			}
		}
	}
	return nil
}
