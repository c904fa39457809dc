// response.go - Tool result formatting: compact JSON and markdown tables.
package mcp

import (
	"encoding/json"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// jsonResult renders a summary line followed by compact JSON.
func jsonResult(summary string, data any) *sdk.CallToolResult {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return errorResult(ErrMarshalFailed, "Failed to serialize response: "+err.Error(), "Do not retry")
	}
	text := string(dataJSON)
	if summary != "" {
		text = summary + "\n" + text
	}
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}}
}

// markdownResult renders a summary line followed by markdown.
func markdownResult(summary, markdown string) *sdk.CallToolResult {
	text := summary
	if markdown != "" {
		text += "\n\n" + markdown
	}
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}}
}

// withWarnings appends a warnings block when there are any.
func withWarnings(res *sdk.CallToolResult, warnings []string) *sdk.CallToolResult {
	if len(warnings) == 0 || res == nil {
		return res
	}
	res.Content = append(res.Content, &sdk.TextContent{Text: "_warnings: " + strings.Join(warnings, "; ")})
	return res
}

// MarkdownTable converts rows into a markdown table. Pipe chars in cells
// are escaped and newlines replaced with spaces.
func MarkdownTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder

	b.WriteString("| ")
	b.WriteString(strings.Join(headers, " | "))
	b.WriteString(" |\n")

	b.WriteString("|")
	for range headers {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")

	for _, row := range rows {
		escaped := make([]string, len(row))
		for i, cell := range row {
			cell = strings.ReplaceAll(cell, "\n", " ")
			cell = strings.ReplaceAll(cell, "|", `\|`)
			escaped[i] = cell
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(escaped, " | "))
		b.WriteString(" |\n")
	}
	return b.String()
}
