// types.go - Shared types for output formatting.
package output

import "io"

// Result represents the outcome of a CLI command execution.
type Result struct {
	Success bool   `json:"success"`
	Command string `json:"command"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
	// Data is the full payload (a report, a range). Only JSON output prints it.
	Data any `json:"data,omitempty"`

	// Fields and Findings are the human view of Data.
	Fields   []Field   `json:"-"`
	Findings []Finding `json:"-"`
}

// Field is one "key: value" line, printed in order.
type Field struct {
	Key   string
	Value string
}

// Finding is a leveled line: an issue, leak, violation or recommendation.
// Level is one of critical, high, medium, low or info.
type Finding struct {
	Level string
	Text  string
}

// AddField appends a key/value line.
func (r *Result) AddField(key, value string) *Result {
	r.Fields = append(r.Fields, Field{Key: key, Value: value})
	return r
}

// AddFinding appends a leveled line.
func (r *Result) AddFinding(level, text string) *Result {
	r.Findings = append(r.Findings, Finding{Level: level, Text: text})
	return r
}

// Formatter is the interface for all output formatters.
type Formatter interface {
	Format(w io.Writer, result *Result) error
}

// GetFormatter returns the formatter for format, or nil when unknown.
func GetFormatter(format string) Formatter {
	switch format {
	case "human", "":
		return &HumanFormatter{}
	case "json":
		return &JSONFormatter{}
	default:
		return nil
	}
}
