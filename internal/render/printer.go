// Package render prints run progress and the final answer to the console.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/roelfdiedericks/mcprompt/internal/metrics"
	"github.com/roelfdiedericks/mcprompt/internal/types"
)

// Colors
var (
	primaryColor   = lipgloss.Color("39")  // Blue
	secondaryColor = lipgloss.Color("245") // Gray
	errorColor     = lipgloss.Color("196") // Red
	warningColor   = lipgloss.Color("214") // Orange
)

type styles struct {
	title  lipgloss.Style
	tool   lipgloss.Style
	dim    lipgloss.Style
	errMsg lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(primaryColor),
		tool:   r.NewStyle().Foreground(warningColor).Italic(true),
		dim:    r.NewStyle().Foreground(secondaryColor),
		errMsg: r.NewStyle().Foreground(errorColor),
	}
}

// Printer writes the answer to out and progress lines to status.
// Colors are used only when the writer is a terminal.
type Printer struct {
	out    io.Writer
	status io.Writer
	plain  bool

	outStyles    styles
	statusStyles styles
}

// New creates a Printer. plain suppresses progress lines and the answer header.
func New(out, status io.Writer, plain bool) *Printer {
	return &Printer{
		out:          out,
		status:       status,
		plain:        plain,
		outStyles:    newStyles(lipgloss.NewRenderer(out)),
		statusStyles: newStyles(lipgloss.NewRenderer(status)),
	}
}

func (p *Printer) progress(line string) {
	if p.plain {
		return
	}
	fmt.Fprintln(p.status, line)
}

// OnTools prints the tool names advertised by the provider.
func (p *Printer) OnTools(names []string) {
	list := "(none)"
	if len(names) > 0 {
		list = strings.Join(names, ", ")
	}
	p.progress(p.statusStyles.dim.Render("Available tools: ") + list)
}

// OnToolUse prints the tool the model asked for.
func (p *Printer) OnToolUse(use types.ToolUseBlock) {
	p.progress(p.statusStyles.tool.Render("Using tool: " + use.Name))
}

// OnToolResult prints the kind of the first content item of a tool response.
func (p *Printer) OnToolResult(use types.ToolUseBlock, outcome *types.ToolOutcome) {
	kind := "other content type"
	switch outcome.FirstKind() {
	case types.KindText:
		kind = "text"
	case "":
		kind = "empty"
	}
	p.progress(p.statusStyles.dim.Render("Tool response received: ") + kind)
}

// Answer prints the final answer, under a header unless plain.
func (p *Printer) Answer(text string) {
	if !p.plain {
		fmt.Fprintln(p.out, p.outStyles.title.Render("Response:"))
	}
	fmt.Fprintln(p.out, text)
}

// Error prints a one-line error to the status writer. Shown even when plain.
func (p *Printer) Error(msg string) {
	fmt.Fprintln(p.status, p.statusStyles.errMsg.Render("Error: "+msg))
}

// Stats prints a metrics snapshot, one metric per line.
func (p *Printer) Stats(snaps []metrics.Snapshot) {
	if len(snaps) == 0 {
		return
	}
	width := 0
	for _, s := range snaps {
		width = max(width, len(s.Path))
	}
	fmt.Fprintln(p.status, p.statusStyles.title.Render("Stats:"))
	for _, s := range snaps {
		fmt.Fprintf(p.status, "  %-*s  %s\n", width, s.Path, p.statusStyles.dim.Render(s.String()))
	}
}
