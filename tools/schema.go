package tools

import (
	"github.com/invopop/jsonschema"
	"github.com/mailwebhook/mcp-gateway-go/mcp"
)

// reflectInputSchema reflects a Go args struct A into the simplified MCP
// input schema. Unknown-field policy is surfaced via the schema's
// additionalProperties flag and mirrored by the runtime decoder.
func reflectInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	// Only object schemas map cleanly onto tool input. Anything else becomes
	// an empty object schema with the configured additionalProperties policy.
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           map[string]mcp.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

// toSchemaProperty recursively maps a jsonschema.Schema node to the
// simplified property shape.
func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}
