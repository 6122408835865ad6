package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mailwebhook/mcp-gateway-go/internal/logctx"
	"github.com/mailwebhook/mcp-gateway-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Handler executes a tool against already-validated raw arguments.
type Handler func(ctx context.Context, args json.RawMessage) (*Result, error)

// Tool pairs an MCP tool descriptor with its handler and the compiled
// argument schema used for validation.
type Tool struct {
	Descriptor mcp.Tool
	Handler    Handler

	compiled *jsonschema.Schema
}

// ToolOption configures New.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool // default false (strict)
}

// WithDescription sets the tool description used in listings.
func WithDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithAllowAdditionalProperties controls whether unknown argument fields are
// accepted. When false (default), both the published schema and the runtime
// decoder reject them.
func WithAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// New constructs a Tool from a typed args struct A: the input schema is
// reflected from A, and the handler decodes validated arguments into A
// before invoking fn.
func New[A any](name string, fn func(ctx context.Context, args A) (*Result, error), opts ...ToolOption) Tool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	input := reflectInputSchema[A](cfg.allowAdditionalProperties)
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: input,
	}

	handler := func(ctx context.Context, raw json.RawMessage) (*Result, error) {
		var a A
		if len(raw) > 0 {
			if cfg.allowAdditionalProperties {
				if err := json.Unmarshal(raw, &a); err != nil {
					return Errf("invalid arguments: %v", err), nil
				}
			} else {
				dec := json.NewDecoder(bytes.NewReader(raw))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&a); err != nil {
					return Errf("invalid arguments: %v", err), nil
				}
			}
		}
		return fn(ctx, a)
	}

	return Tool{Descriptor: desc, Handler: handler}
}

// Registry is the name-indexed tool catalog. Definitions are immutable once
// registered; names are unique.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*Tool
	log   *slog.Logger
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for invocation events.
func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = log }
}

// NewRegistry builds a registry from the given tools. Duplicate names and
// uncompilable schemas are construction errors.
func NewRegistry(defs []Tool, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]*Tool, len(defs)),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := range defs {
		t := defs[i]
		name := t.Descriptor.Name
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", name)
		}
		compiled, err := compileSchema(name, t.Descriptor.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
		t.compiled = compiled
		r.order = append(r.order, name)
		r.tools[name] = &t
	}
	return r, nil
}

// compileSchema compiles the simplified input schema into a validating JSON
// Schema so required/type/enum checks share one code path.
func compileSchema(name string, schema mcp.ToolInputSchema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	url := "mailmcp://tools/" + name + ".schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile input schema: %w", err)
	}
	return compiled, nil
}

// List returns the tool descriptors in registration order.
func (r *Registry) List() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor)
	}
	return out
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Call invokes the named tool with args. Unknown names, invalid arguments,
// handler errors and handler panics all surface as a failed Result; no fault
// escapes the registry.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (res *Result) {
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: name})

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		r.log.InfoContext(ctx, "tool.call.unknown")
		return Errf("unknown tool: %s", name)
	}

	if failure := r.validateArgs(t, args); failure != nil {
		r.log.InfoContext(ctx, "tool.call.invalid_args", slog.String("err", failure.ErrorText()))
		return failure
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorContext(ctx, "tool.call.panic", slog.Any("panic", rec))
			res = Errf("tool %s failed: %v", name, rec)
		}
	}()

	out, err := t.Handler(ctx, args)
	if err != nil {
		r.log.WarnContext(ctx, "tool.call.fail", slog.String("err", err.Error()))
		return Errf("tool %s failed: %v", name, err)
	}
	if out == nil {
		return Errf("tool %s returned no result", name)
	}
	r.log.InfoContext(ctx, "tool.call.ok", slog.Bool("success", out.OK()))
	return out
}

// validateArgs checks args against the tool's compiled schema, returning a
// failed Result describing the first violation, or nil when valid.
func (r *Registry) validateArgs(t *Tool, args json.RawMessage) *Result {
	var value any = map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &value); err != nil {
			return Errf("invalid arguments: %v", err)
		}
	}
	if err := t.compiled.Validate(value); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			causes := ve.BasicOutput().Errors
			// The last leaf cause is the most specific violation.
			for i := len(causes) - 1; i >= 0; i-- {
				if causes[i].Error != "" && causes[i].KeywordLocation != "" {
					return Errf("invalid arguments: %s %s", causes[i].InstanceLocation, causes[i].Error)
				}
			}
		}
		return Errf("invalid arguments: %v", err)
	}
	return nil
}
