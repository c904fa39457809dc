// errors.go - Structured error handling and error codes for MCP tools.
package mcp

import (
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Error codes are self-describing snake_case strings.
const (
	// Input errors - the caller can fix arguments and retry immediately
	ErrInvalidJSON  = "invalid_json"
	ErrMissingParam = "missing_param"
	ErrInvalidParam = "invalid_param"

	// State errors - retry after data arrives
	ErrNoData = "no_data"

	// Internal errors - do not retry
	ErrMarshalFailed = "marshal_failed"
)

// StructuredError is embedded in the text content of a failed tool call.
type StructuredError struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	Retry        string `json:"retry"`
	Retryable    bool   `json:"retryable"`
	RetryAfterMs int    `json:"retry_after_ms,omitempty"`
	Param        string `json:"param,omitempty"`
}

// WithParam names the offending parameter.
func WithParam(p string) func(*StructuredError) {
	return func(se *StructuredError) { se.Param = p }
}

// retryDefaults marks transient codes as retryable.
func retryDefaults(se *StructuredError) {
	switch se.Error {
	case ErrNoData:
		se.Retryable = true
		se.RetryAfterMs = 2000
	default:
		se.Retryable = false
	}
}

// errorResult builds a tool error. Format:
//
//	Error: missing_param - Add the 'item_height' parameter and call again
//	{"error":"missing_param","message":"...","retry":"..."}
func errorResult(code, message, retry string, opts ...func(*StructuredError)) *sdk.CallToolResult {
	se := StructuredError{Error: code, Message: message, Retry: retry}
	retryDefaults(&se)
	for _, opt := range opts {
		opt(&se)
	}
	seJSON, _ := json.Marshal(se)
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: fmt.Sprintf("Error: %s - %s\n%s", code, retry, seJSON)}},
		IsError: true,
	}
}
