// Package tools holds the gateway's tool catalog: named definitions with
// JSON-schema-validated arguments, uniform invocation wrapping, and a tagged
// result type that cannot represent an inconsistent success/error mix.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mailwebhook/mcp-gateway-go/mcp"
)

// Result is the tagged outcome of a tool invocation: either Ok with an
// optional payload and message, or Err with an error string. The zero value
// is not meaningful; construct through Ok/OkMessage/Errf.
type Result struct {
	ok      bool
	data    any
	message string
	errText string
}

// Ok builds a successful result carrying data.
func Ok(data any) *Result {
	return &Result{ok: true, data: data}
}

// OkMessage builds a successful result carrying data and a human message.
func OkMessage(data any, message string) *Result {
	return &Result{ok: true, data: data, message: message}
}

// Errf builds a failed result with a formatted error string.
func Errf(format string, a ...any) *Result {
	return &Result{errText: fmt.Sprintf(format, a...)}
}

// OK reports whether the invocation succeeded.
func (r *Result) OK() bool { return r.ok }

// Data returns the success payload (nil on failure).
func (r *Result) Data() any { return r.data }

// Message returns the optional human message.
func (r *Result) Message() string { return r.message }

// ErrorText returns the error string ("" on success).
func (r *Result) ErrorText() string { return r.errText }

// MarshalJSON emits the external tool result envelope
// {success, data?, message?, error?}.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := map[string]any{"success": r.ok}
	if r.data != nil {
		out["data"] = r.data
	}
	if r.message != "" {
		out["message"] = r.message
	}
	if r.errText != "" {
		out["error"] = r.errText
	}
	return json.Marshal(out)
}

// CallToolResult converts the result into the MCP content envelope: a single
// text block holding either the error string or the JSON-encoded success
// envelope, with IsError mirroring the tag.
func (r *Result) CallToolResult() *mcp.CallToolResult {
	if !r.ok {
		return &mcp.CallToolResult{
			Content: []mcp.ContentBlock{{Type: "text", Text: r.errText}},
			IsError: true,
		}
	}

	text := r.message
	if b, err := json.Marshal(r); err == nil {
		text = string(b)
	}
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: text}},
	}
}
