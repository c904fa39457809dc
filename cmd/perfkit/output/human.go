// human.go - Human-readable output formatter.
// Styles are built per writer so colors only appear on terminals.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Level colors follow the usual severity ramp.
var levelColors = map[string]lipgloss.Color{
	"critical": lipgloss.Color("#FF5F87"),
	"high":     lipgloss.Color("#FF8700"),
	"medium":   lipgloss.Color("#FFD700"),
	"warning":  lipgloss.Color("#FFD700"),
	"low":      lipgloss.Color("#87AFFF"),
	"info":     lipgloss.Color("#8A8A8A"),
}

// HumanFormatter produces human-readable output.
type HumanFormatter struct{}

type humanStyles struct {
	ok, fail, key, dim lipgloss.Style
	levels             map[string]lipgloss.Style
}

func newHumanStyles(w io.Writer) humanStyles {
	r := lipgloss.NewRenderer(w)
	s := humanStyles{
		ok:     r.NewStyle().Foreground(lipgloss.Color("#5FD787")).Bold(true),
		fail:   r.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true),
		key:    r.NewStyle().Bold(true),
		dim:    r.NewStyle().Faint(true),
		levels: make(map[string]lipgloss.Style, len(levelColors)),
	}
	for level, c := range levelColors {
		s.levels[level] = r.NewStyle().Foreground(c)
	}
	return s
}

func (s humanStyles) level(level string) lipgloss.Style {
	if st, ok := s.levels[level]; ok {
		return st
	}
	return s.dim
}

// Format writes a human-readable representation of the result.
func (h *HumanFormatter) Format(w io.Writer, result *Result) error {
	st := newHumanStyles(w)
	var sb strings.Builder

	if result.Success {
		sb.WriteString(st.ok.Render("[OK]"))
	} else {
		sb.WriteString(st.fail.Render("[Error]"))
	}
	sb.WriteString(" " + result.Command)
	if result.Summary != "" {
		sb.WriteString(": " + result.Summary)
	}
	sb.WriteString("\n")
	if result.Error != "" {
		fmt.Fprintf(&sb, "   %s %s\n", st.key.Render("Error:"), result.Error)
	}

	width := 0
	for _, f := range result.Fields {
		width = max(width, len(f.Key))
	}
	for _, f := range result.Fields {
		pad := strings.Repeat(" ", width-len(f.Key))
		fmt.Fprintf(&sb, "   %s%s  %s\n", st.key.Render(f.Key+":"), pad, f.Value)
	}

	if len(result.Findings) > 0 && len(result.Fields) > 0 {
		sb.WriteString("\n")
	}
	for _, f := range result.Findings {
		tag := st.level(f.Level).Render(fmt.Sprintf("%-8s", f.Level))
		fmt.Fprintf(&sb, "   %s %s\n", tag, f.Text)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
