package types

import (
	"encoding/json"
	"strings"
)

// Block kinds as they appear on the wire.
const (
	KindText       = "text"
	KindToolUse    = "tool_use"
	KindToolResult = "tool_result"
)

// ContentBlock is one segment of a conversation turn or model response.
// The set of variants is closed: TextBlock, ToolUseBlock, ToolResultBlock and
// OtherBlock. OtherBlock carries anything this package does not model.
type ContentBlock interface {
	Kind() string
	contentBlock()
}

// TextBlock is plain text emitted by the model or the user.
type TextBlock struct {
	Text string `json:"text"`
}

// ToolUseBlock is a request from the model to invoke a named tool.
// Input is kept as raw JSON so it can be replayed byte-for-byte.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock carries a tool's output back to the model.
type ToolResultBlock struct {
	ToolUseID string       `json:"tool_use_id"`
	Content   []ResultItem `json:"content"`
}

// OtherBlock is a block of a type we don't interpret (thinking, server tools, ...).
type OtherBlock struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (TextBlock) Kind() string       { return KindText }
func (ToolUseBlock) Kind() string    { return KindToolUse }
func (ToolResultBlock) Kind() string { return KindToolResult }
func (b OtherBlock) Kind() string    { return b.Type }

func (TextBlock) contentBlock()       {}
func (ToolUseBlock) contentBlock()    {}
func (ToolResultBlock) contentBlock() {}
func (OtherBlock) contentBlock()      {}

// Arguments decodes the tool input into a map. Empty input yields an empty map.
func (b ToolUseBlock) Arguments() (map[string]any, error) {
	args := map[string]any{}
	if len(b.Input) == 0 || string(b.Input) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(b.Input, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// ResultItem is one content item returned by a tool provider.
// Raw holds the item's verbatim wire JSON so unknown types can be forwarded unchanged.
type ResultItem struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Data     string          `json:"data,omitempty"`     // base64 payload for image items
	MimeType string          `json:"mimeType,omitempty"` // e.g. "image/png"
	Raw      json.RawMessage `json:"-"`
}

// IsText reports whether the item is a text item.
func (r ResultItem) IsText() bool {
	return r.Type == KindText
}

// ToolOutcome is the result of a single tool call. An empty Content is valid.
type ToolOutcome struct {
	Content []ResultItem `json:"content"`
}

// TextItem creates a text ResultItem.
func TextItem(text string) ResultItem {
	raw, _ := json.Marshal(map[string]string{"type": KindText, "text": text})
	return ResultItem{Type: KindText, Text: text, Raw: raw}
}

// FirstKind returns "text" if the first item is text, "other" otherwise,
// and "" for an empty outcome.
func (o *ToolOutcome) FirstKind() string {
	if o == nil || len(o.Content) == 0 {
		return ""
	}
	if o.Content[0].IsText() {
		return KindText
	}
	return "other"
}

// GetText returns the concatenated text from all text items.
func (o *ToolOutcome) GetText() string {
	if o == nil {
		return ""
	}
	var parts []string
	for _, item := range o.Content {
		if item.IsText() && item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Texts concatenates the text of every TextBlock, in order, with no separator.
func Texts(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if t, ok := b.(TextBlock); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the ToolUseBlocks in the order they appear.
func ToolUses(blocks []ContentBlock) []ToolUseBlock {
	var uses []ToolUseBlock
	for _, b := range blocks {
		if u, ok := b.(ToolUseBlock); ok {
			uses = append(uses, u)
		}
	}
	return uses
}
