package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type greetArgs struct {
	Name string `json:"name" jsonschema:"description=Who to greet"`
	Mode string `json:"mode,omitempty" jsonschema:"enum=loud,enum=quiet"`
}

func newTestRegistry(t *testing.T, defs ...Tool) *Registry {
	t.Helper()
	r, err := NewRegistry(defs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func greetTool() Tool {
	return New("greet", func(ctx context.Context, args greetArgs) (*Result, error) {
		return Ok(map[string]string{"greeting": "hello " + args.Name}), nil
	}, WithDescription("Greets someone"))
}

func TestCallSuccess(t *testing.T) {
	r := newTestRegistry(t, greetTool())

	res := r.Call(context.Background(), "greet", json.RawMessage(`{"name":"world"}`))
	if !res.OK() {
		t.Fatalf("expected success, got %q", res.ErrorText())
	}
	data, ok := res.Data().(map[string]string)
	if !ok || data["greeting"] != "hello world" {
		t.Fatalf("unexpected data: %+v", res.Data())
	}
}

func TestCallUnknownToolFailsSoftly(t *testing.T) {
	r := newTestRegistry(t, greetTool())

	res := r.Call(context.Background(), "nope", nil)
	if res.OK() {
		t.Fatal("expected failed result")
	}
	if !strings.Contains(res.ErrorText(), "unknown tool") {
		t.Fatalf("unexpected error text: %q", res.ErrorText())
	}

	ctr := res.CallToolResult()
	if !ctr.IsError {
		t.Fatal("CallToolResult should carry isError")
	}
	if len(ctr.Content) != 1 || ctr.Content[0].Type != "text" {
		t.Fatalf("unexpected content: %+v", ctr.Content)
	}
}

func TestCallValidatesRequired(t *testing.T) {
	r := newTestRegistry(t, greetTool())

	res := r.Call(context.Background(), "greet", json.RawMessage(`{}`))
	if res.OK() {
		t.Fatal("expected failed result for missing required field")
	}
	if !strings.Contains(res.ErrorText(), "invalid arguments") {
		t.Fatalf("unexpected error text: %q", res.ErrorText())
	}
}

func TestCallValidatesType(t *testing.T) {
	r := newTestRegistry(t, greetTool())

	res := r.Call(context.Background(), "greet", json.RawMessage(`{"name":42}`))
	if res.OK() {
		t.Fatal("expected failed result for wrong type")
	}
	if !strings.Contains(res.ErrorText(), "invalid arguments") {
		t.Fatalf("unexpected error text: %q", res.ErrorText())
	}
}

func TestCallValidatesEnum(t *testing.T) {
	r := newTestRegistry(t, greetTool())

	res := r.Call(context.Background(), "greet", json.RawMessage(`{"name":"x","mode":"shrieking"}`))
	if res.OK() {
		t.Fatal("expected failed result for enum violation")
	}

	res = r.Call(context.Background(), "greet", json.RawMessage(`{"name":"x","mode":"loud"}`))
	if !res.OK() {
		t.Fatalf("expected success for allowed enum value, got %q", res.ErrorText())
	}
}

func TestCallRejectsUnknownFields(t *testing.T) {
	r := newTestRegistry(t, greetTool())

	res := r.Call(context.Background(), "greet", json.RawMessage(`{"name":"x","extra":true}`))
	if res.OK() {
		t.Fatal("expected failed result for unknown field")
	}
}

func TestCallWrapsHandlerError(t *testing.T) {
	failing := New("fail", func(ctx context.Context, args struct{}) (*Result, error) {
		return nil, errors.New("backend exploded")
	})
	r := newTestRegistry(t, failing)

	res := r.Call(context.Background(), "fail", nil)
	if res.OK() {
		t.Fatal("expected failed result")
	}
	if !strings.Contains(res.ErrorText(), "backend exploded") {
		t.Fatalf("unexpected error text: %q", res.ErrorText())
	}
}

func TestCallContainsPanic(t *testing.T) {
	panicking := New("panic", func(ctx context.Context, args struct{}) (*Result, error) {
		panic("boom")
	})
	r := newTestRegistry(t, panicking)

	res := r.Call(context.Background(), "panic", nil)
	if res.OK() {
		t.Fatal("expected failed result")
	}
	if !strings.Contains(res.ErrorText(), "boom") {
		t.Fatalf("unexpected error text: %q", res.ErrorText())
	}
}

func TestCallGuardsNilResult(t *testing.T) {
	broken := New("nil", func(ctx context.Context, args struct{}) (*Result, error) {
		return nil, nil
	})
	r := newTestRegistry(t, broken)

	res := r.Call(context.Background(), "nil", nil)
	if res.OK() {
		t.Fatal("expected failed result for nil handler result")
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry([]Tool{greetTool(), greetTool()}); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	a := New("alpha", func(ctx context.Context, args struct{}) (*Result, error) { return Ok(nil), nil })
	b := New("beta", func(ctx context.Context, args struct{}) (*Result, error) { return Ok(nil), nil })
	c := New("gamma", func(ctx context.Context, args struct{}) (*Result, error) { return Ok(nil), nil })
	r := newTestRegistry(t, c, a, b)

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(list))
	}
	for i, want := range []string{"gamma", "alpha", "beta"} {
		if list[i].Name != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, list[i].Name)
		}
	}

	if !r.Has("alpha") || r.Has("delta") {
		t.Fatal("Has misreported registration")
	}
}

func TestReflectedSchema(t *testing.T) {
	tool := greetTool()
	schema := tool.Descriptor.InputSchema

	if schema.Type != "object" {
		t.Fatalf("expected object schema, got %s", schema.Type)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "name" {
		t.Fatalf("unexpected required set: %v", schema.Required)
	}
	mode, ok := schema.Properties["mode"]
	if !ok {
		t.Fatal("missing mode property")
	}
	if len(mode.Enum) != 2 {
		t.Fatalf("expected enum of 2 values, got %v", mode.Enum)
	}
	if schema.AdditionalProperties {
		t.Fatal("additionalProperties should default to false")
	}
}

func TestResultEnvelope(t *testing.T) {
	ok := OkMessage(map[string]int{"sent": 1}, "delivered")
	b, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env["success"] != true || env["message"] != "delivered" {
		t.Fatalf("unexpected envelope: %v", env)
	}
	if _, hasErr := env["error"]; hasErr {
		t.Fatal("success envelope must not carry error")
	}

	fail := Errf("nope: %d", 7)
	b, err = json.Marshal(fail)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env["success"] != false || env["error"] != "nope: 7" {
		t.Fatalf("unexpected envelope: %v", env)
	}
}
