package mcphttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/mailwebhook/mcp-gateway-go/internal/jsonrpc"
	"github.com/mailwebhook/mcp-gateway-go/sessions"
)

// handleGetStream is the stateless variant: the whole JSON-RPC request rides
// in the query string, so a single GET yields connected, the response as a
// message event, heartbeats, and finally a timeout event when the stream's
// lifetime elapses. No session is registered; nothing survives the request.
func (h *Handler) handleGetStream(w http.ResponseWriter, r *http.Request) {
	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "accept header must allow text/event-stream")
		return
	}

	client := h.checkAuthentication(w, r)
	if client == nil {
		return
	}
	if !h.gate(w, r, client) {
		return
	}

	q := r.URL.Query()
	method := q.Get("method")
	if method == "" {
		writeJSONError(w, http.StatusBadRequest, "missing required query param: method")
		return
	}

	var params json.RawMessage
	if raw := q.Get("params"); raw != "" {
		if !json.Valid([]byte(raw)) {
			writeJSONError(w, http.StatusBadRequest, "params must be valid JSON")
			return
		}
		params = json.RawMessage(raw)
	}

	var id *jsonrpc.RequestID
	if raw := q.Get("id"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			id = jsonrpc.NewRequestID(n)
		} else {
			id = jsonrpc.NewRequestID(raw)
		}
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := newSSEConn(w, ctx, cancel)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	defer conn.Close()

	streamID := uuid.NewString()
	connected, _ := json.Marshal(map[string]string{
		"streamId":  streamID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err := conn.WriteEvent(ctx, sessions.EventConnected, connected); err != nil {
		return
	}
	h.log.InfoContext(ctx, "stream.open", slog.String("stream_id", streamID), slog.String("rpc_method", method))

	msg := &jsonrpc.AnyMessage{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         method,
		Params:         params,
		ID:             id,
	}
	if resp := h.disp.dispatch(ctx, msg); resp != nil {
		payload, err := json.Marshal(resp)
		if err != nil {
			h.log.ErrorContext(ctx, "stream.message.marshal.fail", slog.String("err", err.Error()))
			return
		}
		if err := conn.WriteEvent(ctx, sessions.EventMessage, payload); err != nil {
			return
		}
	}

	ticker := time.NewTicker(h.heartbeatEvery)
	defer ticker.Stop()
	deadline := time.NewTimer(h.statelessTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, _ := json.Marshal(map[string]string{"timestamp": time.Now().UTC().Format(time.RFC3339)})
			if err := conn.WriteEvent(ctx, sessions.EventHeartbeat, payload); err != nil {
				return
			}
		case <-deadline.C:
			payload, _ := json.Marshal(map[string]string{
				"streamId":  streamID,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			_ = conn.WriteEvent(ctx, sessions.EventTimeout, payload)
			h.log.InfoContext(ctx, "stream.timeout", slog.String("stream_id", streamID))
			return
		}
	}
}
