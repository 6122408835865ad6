// Package mcp defines the wire-level types of the Model Context Protocol
// subset served by the gateway: the initialize handshake, tool listing and
// invocation, and the ping/pong exchange. These structs are shared by every
// transport variant; the JSON-RPC envelope itself lives in internal/jsonrpc.
package mcp

import "encoding/json"

// LatestProtocolVersion is the protocol revision advertised to clients.
const LatestProtocolVersion = "2025-06-18"

// Method names handled by the gateway's dispatch table.
const (
	InitializeMethod              = "initialize"
	ListToolsMethod               = "tools/list"
	CallToolMethod                = "tools/call"
	PingMethod                    = "ping"
	InitializedNotificationMethod = "notifications/initialized"
)

// ImplementationInfo names one side of the protocol exchange.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ClientCapabilities carries the client-declared capability set. The gateway
// records it on the session but does not branch on it.
type ClientCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
}

// ServerCapabilities advertises what this server supports.
type ServerCapabilities struct {
	Tools *ToolsServerCapability `json:"tools,omitempty"`
}

// ToolsServerCapability describes the tools capability.
type ToolsServerCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeRequest starts the MCP initialization handshake.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult returns the negotiated protocol version, capabilities and
// server identity.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
}

// Tool describes a callable tool: a unique name, a human description, and a
// simplified JSON-schema for its arguments.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema is a JSON-schema-like description of tool input. It is
// always an object schema.
type ToolInputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties"`
}

// SchemaProperty is a simplified schema node used in tool input schemas.
type SchemaProperty struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitempty"`
	Enum        []any                     `json:"enum,omitempty"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
}

// ListToolsResult is the payload of a tools/list response.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolRequest is the params payload of a tools/call request.
type CallToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the tool invocation result envelope. Content always
// carries at least one block; IsError marks tool-level failures (as opposed
// to protocol-level JSON-RPC errors).
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is a typed content part of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// PongResult is the ping response payload.
type PongResult struct {
	Pong      bool   `json:"pong"`
	Timestamp string `json:"timestamp"`
}
