package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/sfclive/internal/trace"
)

var (
	seqStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(4).Align(lipgloss.Right)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dangerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// detailLimit bounds each detail entry in printed trace lines. Sources and
// generated code are long.
const detailLimit = 120

// TracePrinter writes trace events as styled terminal lines.
type TracePrinter struct {
	mu    sync.Mutex
	w     io.Writer
	title cases.Caser
	full  bool
}

// NewTracePrinter creates a printer writing to w. With full set, details are
// printed untruncated.
func NewTracePrinter(w io.Writer, full bool) *TracePrinter {
	return &TracePrinter{w: w, title: cases.Title(language.English), full: full}
}

// Emit implements trace.Sink.
func (p *TracePrinter) Emit(e trace.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.format(e))
}

func (p *TracePrinter) format(e trace.Event) string {
	mark, style := "✓", successStyle
	if e.Status == trace.StatusDanger {
		mark, style = "✗", dangerStyle
	}

	var b strings.Builder
	b.WriteString(seqStyle.Render(fmt.Sprintf("%d", e.Seq)))
	b.WriteString(" ")
	b.WriteString(style.Render(mark + " " + p.title.String(e.Stage)))
	if e.Done {
		b.WriteString(" ")
		b.WriteString(doneStyle.Render("[done]"))
	}

	for _, d := range e.Detail {
		if !p.full {
			d = oneLine(d, detailLimit)
		}
		b.WriteString("\n     ")
		b.WriteString(detailStyle.Render(d))
	}
	return b.String()
}

// oneLine collapses whitespace runs and truncates s to limit runes.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

// printSummary writes the closing line after a render.
func printSummary(w io.Writer, elapsed time.Duration, err error) {
	if err != nil {
		fmt.Fprintln(w, dangerStyle.Render("render failed: "+err.Error()))
		return
	}
	fmt.Fprintln(w, successStyle.Render("rendered in "+elapsed.Round(time.Millisecond).String()))
}
