package mcphttp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailwebhook/mcp-gateway-go/internal/jsonrpc"
	"github.com/mailwebhook/mcp-gateway-go/internal/logctx"
	"github.com/mailwebhook/mcp-gateway-go/mcp"
	"github.com/mailwebhook/mcp-gateway-go/tools"
)

// dispatcher is the method-dispatch core shared by all three transport
// variants. It maps one validated JSON-RPC message to at most one response:
// requests always get one, notifications never do.
type dispatcher struct {
	registry      *tools.Registry
	serverName    string
	serverVersion string
	log           *slog.Logger
}

// dispatch processes a single message. The returned response is nil for
// notifications (including unknown-method notifications) and for response
// messages, which a server has no business answering.
func (d *dispatcher) dispatch(ctx context.Context, msg *jsonrpc.AnyMessage) (resp *jsonrpc.Response) {
	req := msg.AsRequest()
	if req == nil {
		return nil
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   msg.Type(),
	})

	isNotification := req.ID.IsNil()

	// A fault escaping a method handler becomes an InternalError with the
	// fault message as diagnostic data, never a raw panic to the transport.
	defer func() {
		if rec := recover(); rec != nil {
			d.log.ErrorContext(ctx, "rpc.dispatch.panic", slog.Any("panic", rec))
			if isNotification {
				resp = nil
				return
			}
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", fmt.Sprintf("%v", rec))
		}
	}()

	var (
		result any
		rpcErr *jsonrpc.Response
	)

	switch req.Method {
	case mcp.InitializeMethod:
		result = d.initializeResult()

	case mcp.ListToolsMethod:
		result = mcp.ListToolsResult{Tools: d.registry.List()}

	case mcp.CallToolMethod:
		var call mcp.CallToolRequest
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &call); err != nil {
				rpcErr = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", err.Error())
				break
			}
		}
		if call.Name == "" {
			rpcErr = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "missing required param: name", nil)
			break
		}
		result = d.registry.Call(ctx, call.Name, call.Arguments).CallToolResult()

	case mcp.PingMethod:
		result = mcp.PongResult{Pong: true, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}

	case mcp.InitializedNotificationMethod:
		// Acknowledged implicitly; nothing to do.
		d.log.DebugContext(ctx, "rpc.initialized")
		return nil

	default:
		d.log.InfoContext(ctx, "rpc.method.unknown")
		rpcErr = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}

	if isNotification {
		return nil
	}
	if rpcErr != nil {
		return rpcErr
	}

	out, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		d.log.ErrorContext(ctx, "rpc.result.marshal.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", err.Error())
	}
	d.log.InfoContext(ctx, "rpc.dispatch.ok")
	return out
}

func (d *dispatcher) initializeResult() mcp.InitializeResult {
	return mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsServerCapability{},
		},
		ServerInfo: mcp.ImplementationInfo{
			Name:    d.serverName,
			Version: d.serverVersion,
		},
	}
}
