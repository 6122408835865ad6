package mcphttp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mailwebhook/mcp-gateway-go/auth"
	"github.com/mailwebhook/mcp-gateway-go/mcphttp"
	"github.com/mailwebhook/mcp-gateway-go/tools"
)

type echoArgs struct {
	Message string `json:"message" jsonschema:"description=Text to echo back"`
}

// authRT injects an Authorization header for test requests.
type authRT struct{ base http.RoundTripper }

func (t authRT) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer e2e-token")
	return t.base.RoundTrip(r)
}

// TestGateway_E2E drives the synchronous transport with a real MCP client:
// initialize handshake, tool listing, and a tool call round trip.
func TestGateway_E2E(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	registry, err := tools.NewRegistry([]tools.Tool{
		tools.New("echo", func(ctx context.Context, args echoArgs) (*tools.Result, error) {
			return tools.Ok(map[string]string{"echo": args.Message}), nil
		}, tools.WithDescription("Echoes a message back")),
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	h, err := mcphttp.New(registry,
		auth.NewStaticTokens(map[string]string{"e2e-token": "e2e-client"}),
		mcphttp.WithServerInfo("e2e-gateway", "0.0.0"),
	)
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}

	srv := httptest.NewServer(h)
	defer srv.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "e2e", Version: "0.0.0"}, &sdk.ClientOptions{})
	transport := &sdk.StreamableClientTransport{
		Endpoint:   srv.URL + "/mcp",
		HTTPClient: &http.Client{Transport: authRT{base: http.DefaultTransport}},
	}
	cs, err := client.Connect(ctx, transport, &sdk.ClientSessionOptions{})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer cs.Close()

	lt, err := cs.ListTools(ctx, &sdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(lt.Tools) != 1 || lt.Tools[0].Name != "echo" {
		t.Fatalf("unexpected tools: %+v", lt.Tools)
	}

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"message": "hello"},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	if len(res.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(*sdk.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	if !strings.Contains(text.Text, `"echo":"hello"`) {
		t.Fatalf("unexpected content: %s", text.Text)
	}
}
