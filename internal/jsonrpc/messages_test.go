package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestAnyMessageUnmarshal(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
		typ     string
	}{
		{"request", `{"jsonrpc":"2.0","method":"ping","id":1}`, false, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, false, "notification"},
		{"response result", `{"jsonrpc":"2.0","result":{},"id":1}`, false, "response"},
		{"response error", `{"jsonrpc":"2.0","error":{"code":-32600,"message":"nope"},"id":1}`, false, "response"},
		{"wrong version", `{"jsonrpc":"1.0","method":"ping","id":1}`, true, ""},
		{"missing version", `{"method":"ping","id":1}`, true, ""},
		{"method plus result", `{"jsonrpc":"2.0","method":"ping","result":{},"id":1}`, true, ""},
		{"result plus error", `{"jsonrpc":"2.0","result":{},"error":{"code":1,"message":"x"},"id":1}`, true, ""},
		{"neither", `{"jsonrpc":"2.0","id":1}`, true, ""},
		{"not json", `{nope`, true, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg AnyMessage
			err := json.Unmarshal([]byte(tc.input), &msg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got message %+v", msg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := msg.Type(); got != tc.typ {
				t.Fatalf("expected type %q, got %q", tc.typ, got)
			}
		})
	}
}

func TestAsRequestAndAsResponse(t *testing.T) {
	var req AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"tools/list","id":"a"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.AsRequest() == nil {
		t.Fatal("expected request view")
	}
	if req.AsResponse() != nil {
		t.Fatal("request should not convert to response")
	}

	var resp AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","result":true,"id":"a"}`), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.AsRequest() != nil {
		t.Fatal("response should not convert to request")
	}
	if resp.AsResponse() == nil {
		t.Fatal("expected response view")
	}
}

func TestSplitBatch(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		raws, batch, err := SplitBatch([]byte(` {"jsonrpc":"2.0","method":"ping","id":1}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if batch {
			t.Fatal("single object should not be flagged as batch")
		}
		if len(raws) != 1 {
			t.Fatalf("expected 1 member, got %d", len(raws))
		}
	})

	t.Run("array keeps malformed members", func(t *testing.T) {
		raws, batch, err := SplitBatch([]byte(`[{"jsonrpc":"2.0","method":"ping","id":1},{"bogus":true}]`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !batch {
			t.Fatal("array should be flagged as batch")
		}
		if len(raws) != 2 {
			t.Fatalf("expected 2 members, got %d", len(raws))
		}
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		if _, _, err := SplitBatch([]byte(`[]`)); err == nil {
			t.Fatal("expected error for empty batch")
		}
	})

	t.Run("empty body rejected", func(t *testing.T) {
		if _, _, err := SplitBatch([]byte("  \n")); err == nil {
			t.Fatal("expected error for empty body")
		}
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		if _, _, err := SplitBatch([]byte(`{"jsonrpc":`)); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})
}

func TestRequestIDRoundTrip(t *testing.T) {
	t.Run("integer stays integral", func(t *testing.T) {
		var id RequestID
		if err := json.Unmarshal([]byte(`42`), &id); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		out, err := id.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != "42" {
			t.Fatalf("expected 42, got %s", out)
		}
	})

	t.Run("string", func(t *testing.T) {
		var id RequestID
		if err := json.Unmarshal([]byte(`"abc"`), &id); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if id.String() != "abc" {
			t.Fatalf("expected abc, got %q", id.String())
		}
	})

	t.Run("nil marshals as null", func(t *testing.T) {
		var id *RequestID
		out, err := id.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != "null" {
			t.Fatalf("expected null, got %s", out)
		}
		if !id.IsNil() {
			t.Fatal("nil id should report IsNil")
		}
	})

	t.Run("object rejected", func(t *testing.T) {
		var id RequestID
		if err := json.Unmarshal([]byte(`{"x":1}`), &id); err == nil {
			t.Fatal("expected error for object id")
		}
	})
}

func TestErrorResponseWithoutIDMarshalsNullID(t *testing.T) {
	resp := NewErrorResponse(nil, ErrorCodeInvalidRequest, "invalid request", "boom")

	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// The id member must be present and explicitly null, not absent.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(out, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	idRaw, ok := raw["id"]
	if !ok {
		t.Fatalf("response is missing the id member: %s", out)
	}
	if string(idRaw) != "null" {
		t.Fatalf("expected id null, got %s", idRaw)
	}
}

func TestResultResponseCarriesID(t *testing.T) {
	resp, err := NewResultResponse(NewRequestID(7), map[string]bool{"ok": true})
	if err != nil {
		t.Fatalf("NewResultResponse: %v", err)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(out, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["id"]) != "7" {
		t.Fatalf("expected id 7, got %s", raw["id"])
	}
}
