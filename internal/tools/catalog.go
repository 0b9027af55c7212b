// Package tools maps provider tool descriptors onto LLM tool declarations.
package tools

import (
	"strings"

	"github.com/roelfdiedericks/mcprompt/internal/types"
)

// ToDeclaration converts a provider descriptor to the LLM API format.
// The schema is passed through as-is; validating it is the LLM service's job.
func ToDeclaration(d types.ToolDescriptor) types.ToolDeclaration {
	return types.ToolDeclaration{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema,
	}
}

// BuildCatalog converts descriptors to declarations one-to-one, keeping order.
// Empty input yields an empty (non-nil) slice.
func BuildCatalog(descs []types.ToolDescriptor) []types.ToolDeclaration {
	decls := make([]types.ToolDeclaration, 0, len(descs))
	for _, d := range descs {
		decls = append(decls, ToDeclaration(d))
	}
	return decls
}

// Catalog holds the declarations for one orchestration run.
type Catalog struct {
	decls []types.ToolDeclaration
	index map[string]int
}

// NewCatalog builds a Catalog from provider descriptors.
func NewCatalog(descs []types.ToolDescriptor) *Catalog {
	c := &Catalog{
		decls: BuildCatalog(descs),
		index: make(map[string]int, len(descs)),
	}
	for i, d := range c.decls {
		if _, dup := c.index[d.Name]; !dup {
			c.index[d.Name] = i
		}
	}
	return c
}

// Declarations returns the declarations in provider order.
func (c *Catalog) Declarations() []types.ToolDeclaration {
	return c.decls
}

// Has returns true if a tool with the given name is declared
func (c *Catalog) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Names returns the tool names in provider order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.decls))
	for _, d := range c.decls {
		names = append(names, d.Name)
	}
	return names
}

// Count returns the number of declared tools
func (c *Catalog) Count() int {
	return len(c.decls)
}

// Summary renders a short listing of the tools, one per line:
//
//	- search: Search videos
//	- transcript
func (c *Catalog) Summary() string {
	if len(c.decls) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, d := range c.decls {
		sb.WriteString("- ")
		sb.WriteString(d.Name)
		if desc := firstLine(d.Description); desc != "" {
			sb.WriteString(": ")
			sb.WriteString(desc)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
