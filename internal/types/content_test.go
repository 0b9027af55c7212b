package types

import (
	"encoding/json"
	"testing"
)

func TestTextsPreservesOrder(t *testing.T) {
	blocks := []ContentBlock{
		TextBlock{Text: "a"},
		ToolUseBlock{ID: "t1", Name: "search"},
		TextBlock{Text: "b"},
		OtherBlock{Type: "thinking"},
		TextBlock{Text: "c"},
	}
	if got := Texts(blocks); got != "abc" {
		t.Errorf("Texts = %q, want %q", got, "abc")
	}

	uses := ToolUses(blocks)
	if len(uses) != 1 || uses[0].ID != "t1" {
		t.Errorf("ToolUses = %+v, want single t1", uses)
	}
}

func TestBlockKinds(t *testing.T) {
	tests := []struct {
		block ContentBlock
		want  string
	}{
		{TextBlock{}, KindText},
		{ToolUseBlock{}, KindToolUse},
		{ToolResultBlock{}, KindToolResult},
		{OtherBlock{Type: "server_tool_use"}, "server_tool_use"},
	}
	for _, tt := range tests {
		if got := tt.block.Kind(); got != tt.want {
			t.Errorf("%T.Kind() = %q, want %q", tt.block, got, tt.want)
		}
	}
}

func TestToolUseArguments(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"null", "null", 0, false},
		{"object", `{"q":"x","n":2}`, 2, false},
		{"array", `[1,2]`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := ToolUseBlock{Input: json.RawMessage(tt.input)}.Arguments()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(args) != tt.wantLen {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantLen)
			}
		})
	}
}

func TestToolOutcomeFirstKind(t *testing.T) {
	var nilOutcome *ToolOutcome
	if got := nilOutcome.FirstKind(); got != "" {
		t.Errorf("nil outcome FirstKind = %q", got)
	}

	text := &ToolOutcome{Content: []ResultItem{TextItem("3 results")}}
	if got := text.FirstKind(); got != "text" {
		t.Errorf("FirstKind = %q, want text", got)
	}
	if got := text.GetText(); got != "3 results" {
		t.Errorf("GetText = %q", got)
	}

	other := &ToolOutcome{Content: []ResultItem{{Type: "resource_link"}, TextItem("x")}}
	if got := other.FirstKind(); got != "other" {
		t.Errorf("FirstKind = %q, want other", got)
	}
}

func TestTextItemRaw(t *testing.T) {
	item := TextItem("hello")
	var wire map[string]string
	if err := json.Unmarshal(item.Raw, &wire); err != nil {
		t.Fatalf("raw is not JSON: %v", err)
	}
	if wire["type"] != "text" || wire["text"] != "hello" {
		t.Errorf("raw = %s", item.Raw)
	}
}

func TestValidateConversation(t *testing.T) {
	use := ToolUseBlock{ID: "t1", Name: "search", Input: json.RawMessage(`{}`)}

	ok := []Turn{
		UserText("hi"),
		AssistantBlocks(TextBlock{Text: "x"}, use),
		UserBlocks(ToolResultBlock{ToolUseID: "t1"}),
	}
	if err := ValidateConversation(ok); err != nil {
		t.Errorf("valid conversation rejected: %v", err)
	}

	orphan := []Turn{
		UserText("hi"),
		UserBlocks(ToolResultBlock{ToolUseID: "t1"}),
		AssistantBlocks(use),
	}
	if err := ValidateConversation(orphan); err == nil {
		t.Error("expected error for tool_result before its tool_use")
	}

	badRole := []Turn{{Role: "system", Text: "x"}}
	if err := ValidateConversation(badRole); err == nil {
		t.Error("expected error for unknown role")
	}
}
