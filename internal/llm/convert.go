package llm

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	. "github.com/roelfdiedericks/mcprompt/internal/logging"
	"github.com/roelfdiedericks/mcprompt/internal/types"
)

// convertTurns converts our turns to Anthropic messages. Empty text blocks
// are dropped and a turn left with no blocks is skipped, since the API
// rejects both.
func convertTurns(turns []types.Turn) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(turns))
	for i, turn := range turns {
		var blocks []anthropic.ContentBlockParamUnion
		if turn.IsPlain() {
			if turn.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
			}
		} else {
			for _, block := range turn.Blocks {
				param, ok, err := convertBlock(block)
				if err != nil {
					return nil, fmt.Errorf("turn %d: %w", i, err)
				}
				if ok {
					blocks = append(blocks, param)
				}
			}
		}

		if len(blocks) == 0 {
			L_debug("anthropic: skipping empty turn", "index", i, "role", turn.Role)
			continue
		}

		switch turn.Role {
		case types.RoleUser:
			result = append(result, anthropic.NewUserMessage(blocks...))
		case types.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
	}
	return result, nil
}

// convertBlock converts a single block; ok is false for blocks that are dropped.
func convertBlock(block types.ContentBlock) (anthropic.ContentBlockParamUnion, bool, error) {
	switch b := block.(type) {
	case types.TextBlock:
		if b.Text == "" {
			return anthropic.ContentBlockParamUnion{}, false, nil
		}
		return anthropic.NewTextBlock(b.Text), true, nil

	case types.ToolUseBlock:
		// replay the model's input unchanged
		input := b.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    b.ID,
				Name:  b.Name,
				Input: input,
			},
		}, true, nil

	case types.ToolResultBlock:
		return anthropic.ContentBlockParamUnion{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: b.ToolUseID,
				Content:   convertResultItems(b.Content),
			},
		}, true, nil

	default:
		return anthropic.ContentBlockParamUnion{}, false, fmt.Errorf("cannot encode %q block", block.Kind())
	}
}

// convertResultItems maps tool output onto tool_result content: text stays
// text, base64 images become image blocks, anything else is forwarded as its
// raw JSON in a text block. Empty text items are dropped because the API
// rejects empty text blocks; a result left with nothing goes out without content.
func convertResultItems(items []types.ResultItem) []anthropic.ToolResultBlockParamContentUnion {
	var result []anthropic.ToolResultBlockParamContentUnion
	for i, item := range items {
		switch {
		case item.IsText():
			if item.Text == "" {
				L_debug("anthropic: dropping empty text item from tool result", "index", i)
				continue
			}
			result = append(result, anthropic.ToolResultBlockParamContentUnion{
				OfText: &anthropic.TextBlockParam{Text: item.Text},
			})

		case item.Type == "image" && item.Data != "" && item.MimeType != "":
			result = append(result, anthropic.ToolResultBlockParamContentUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfBase64: &anthropic.Base64ImageSourceParam{
							Data:      item.Data,
							MediaType: anthropic.Base64ImageSourceMediaType(item.MimeType),
						},
					},
				},
			})

		default:
			raw := item.Raw
			if len(raw) == 0 {
				raw, _ = json.Marshal(item)
			}
			result = append(result, anthropic.ToolResultBlockParamContentUnion{
				OfText: &anthropic.TextBlockParam{Text: string(raw)},
			})
		}
	}
	return result
}

// convertTools converts tool declarations to Anthropic format. The declared
// schema is sent as-is: every key, "type" and "required" included, goes out
// through ExtraFields so the service sees exactly what the provider listed.
func convertTools(decls []types.ToolDeclaration) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(decls))
	for _, decl := range decls {
		param := anthropic.ToolInputSchemaParam{}
		if len(decl.InputSchema) > 0 {
			extra := make(map[string]any, len(decl.InputSchema))
			for key, value := range decl.InputSchema {
				extra[key] = value
			}
			param.ExtraFields = extra
		}

		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        decl.Name,
				Description: anthropic.String(decl.Description),
				InputSchema: param,
			},
		})
	}
	return result
}

// convertResponse converts the response content to our blocks, in order.
// Block types we don't model come back as OtherBlock with their raw JSON.
func convertResponse(msg *anthropic.Message) ([]types.ContentBlock, error) {
	blocks := make([]types.ContentBlock, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			blocks = append(blocks, types.TextBlock{Text: variant.Text})
		case anthropic.ToolUseBlock:
			input, err := json.Marshal(variant.Input)
			if err != nil {
				return nil, fmt.Errorf("tool_use %s input: %w", variant.ID, err)
			}
			blocks = append(blocks, types.ToolUseBlock{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: input,
			})
		default:
			blocks = append(blocks, types.OtherBlock{
				Type: block.Type,
				Raw:  json.RawMessage(block.RawJSON()),
			})
		}
	}
	return blocks, nil
}
