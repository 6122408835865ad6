// Package jsonrpc implements the JSON-RPC 2.0 envelope shared by every
// transport variant of the gateway: message validation, the string-or-number
// request id union, and batch decoding.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// AnyMessage is a generic JSON-RPC message (request, notification, or response).
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request represents a JSON-RPC request (with an ID) or notification (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Response represents a JSON-RPC response. Unlike requests, a response
// always carries an id member; when the request id could not be determined
// (parse errors, invalid envelopes) it serializes as null.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// UnmarshalJSON implements custom JSON unmarshaling for AnyMessage.
// It enforces JSON-RPC 2.0 semantics: the version tag must be "2.0" and the
// message must carry a method (request/notification) or exactly one of
// result/error (response).
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type rawMessage struct {
		JSONRPCVersion string          `json:"jsonrpc"`
		Method         string          `json:"method,omitempty"`
		Params         json.RawMessage `json:"params,omitempty"`
		Result         json.RawMessage `json:"result,omitempty"`
		Error          *Error          `json:"error,omitempty"`
		ID             *RequestID      `json:"id,omitempty"`
	}

	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if raw.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, raw.JSONRPCVersion)
	}

	hasMethod := raw.Method != ""
	hasResult := len(raw.Result) > 0
	hasError := raw.Error != nil

	if hasMethod {
		if hasResult || hasError {
			return fmt.Errorf("request message cannot have result or error fields")
		}
	} else {
		if hasResult && hasError {
			return fmt.Errorf("response message cannot have both result and error fields")
		}
		if !hasResult && !hasError {
			return fmt.Errorf("response message must have either result or error field")
		}
	}

	m.JSONRPCVersion = raw.JSONRPCVersion
	m.Method = raw.Method
	m.Params = raw.Params
	m.Result = raw.Result
	m.Error = raw.Error
	m.ID = raw.ID

	return nil
}

// Type returns "request", "notification" or "response" for the message.
func (m *AnyMessage) Type() string {
	if m.Method != "" {
		if m.ID == nil {
			return "notification"
		}
		return "request"
	}
	return "response"
}

// AsRequest returns the message as a Request if it is a request or
// notification, otherwise nil.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}

	return &Request{
		JSONRPCVersion: m.JSONRPCVersion,
		Method:         m.Method,
		Params:         m.Params,
		ID:             m.ID,
	}
}

// AsResponse returns the message as a Response if it is a response message,
// otherwise nil.
func (m *AnyMessage) AsResponse() *Response {
	if m.Method != "" {
		return nil
	}

	return &Response{
		JSONRPCVersion: m.JSONRPCVersion,
		Result:         m.Result,
		Error:          m.Error,
		ID:             m.ID,
	}
}

// SplitBatch splits a request body that is either a single JSON-RPC message
// or an array of them into its raw members. The returned batch flag tells
// the caller whether the body used the array form so the response can
// mirror it. An empty array is rejected per JSON-RPC 2.0. Individual
// members are NOT validated here; callers unmarshal each into AnyMessage so
// one malformed member yields one error entry instead of failing the batch.
func SplitBatch(data []byte) (raws []json.RawMessage, batch bool, err error) {
	trimmed := data
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t' || trimmed[0] == '\n' || trimmed[0] == '\r') {
		trimmed = trimmed[1:]
	}
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty body")
	}

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, true, fmt.Errorf("invalid JSON: %w", err)
		}
		if len(raws) == 0 {
			return nil, true, fmt.Errorf("empty batch")
		}
		return raws, true, nil
	}

	if !json.Valid(trimmed) {
		return nil, false, fmt.Errorf("invalid JSON")
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, false, nil
}
