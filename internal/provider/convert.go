package provider

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roelfdiedericks/mcprompt/internal/types"
)

// toDescriptor converts an MCP tool to the provider-neutral descriptor.
func toDescriptor(tool *mcp.Tool) (types.ToolDescriptor, error) {
	if tool == nil {
		return types.ToolDescriptor{}, errors.New("null tool entry")
	}
	if tool.Name == "" {
		return types.ToolDescriptor{}, errors.New("tool with empty name")
	}
	schema, err := schemaMap(tool.InputSchema)
	if err != nil {
		return types.ToolDescriptor{}, fmt.Errorf("tool %q: %w", tool.Name, err)
	}
	return types.ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: schema,
	}, nil
}

// schemaMap normalizes an input schema of any Go shape to a JSON object map.
// The schema content itself is not validated.
func schemaMap(schema any) (map[string]any, error) {
	switch s := schema.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return s, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("input schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("input schema is not a JSON object: %w", err)
	}
	return m, nil
}

// toOutcome converts a call result. Each content item keeps its wire JSON
// so types we don't know are forwarded unchanged.
func toOutcome(res *mcp.CallToolResult) (*types.ToolOutcome, error) {
	outcome := &types.ToolOutcome{Content: []types.ResultItem{}}
	if res == nil {
		return outcome, nil
	}
	for i, c := range res.Content {
		if c == nil {
			continue
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("content item %d: %w", i, err)
		}
		item, err := resultItem(raw)
		if err != nil {
			return nil, fmt.Errorf("content item %d: %w", i, err)
		}
		outcome.Content = append(outcome.Content, item)
	}
	return outcome, nil
}

// resultItem decodes the discriminating fields of one content item.
func resultItem(raw json.RawMessage) (types.ResultItem, error) {
	var head struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Data     string `json:"data"`
		MimeType string `json:"mimeType"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return types.ResultItem{}, err
	}
	item := types.ResultItem{Type: head.Type, Raw: raw}
	switch head.Type {
	case types.KindText:
		item.Text = head.Text
	case "image":
		item.Data = head.Data
		item.MimeType = head.MimeType
	}
	return item, nil
}
