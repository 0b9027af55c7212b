package types

// ToolDescriptor is a tool as advertised by the tool provider.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolDeclaration is the format required by the LLM API for tool calling.
// This lives in types to break the llm → tools import cycle.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}
