package mcphttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/mailwebhook/mcp-gateway-go/internal/jsonrpc"
	"github.com/mailwebhook/mcp-gateway-go/internal/logctx"
	"github.com/mailwebhook/mcp-gateway-go/sessions"
)

// handleGetSSE opens the stateful stream. The first frame is an endpoint
// event carrying the relative URL the client must POST its messages to,
// bound to this stream by the session id in the query string. The handler
// then holds the connection open, heartbeating, until the client goes away
// or the registry closes the session.
func (h *Handler) handleGetSSE(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := newSSEConn(w, ctx, cancel)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID, err := h.sessions.Add(sessions.ClientInfo{
		ClientID:   client.ClientID(),
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
	}, conn)
	if err != nil {
		// Headers are already committed; the stream is the only channel left.
		h.log.ErrorContext(ctx, "sse.session.add.fail", slog.String("err", err.Error()))
		payload, _ := json.Marshal(map[string]any{"code": http.StatusInternalServerError, "message": "failed to create session"})
		_ = conn.WriteEvent(ctx, sessions.EventError, payload)
		_ = conn.Close()
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: sessionID,
		ClientID:  client.ClientID(),
		State:     "open",
	})

	endpointURL, _ := json.Marshal(fmt.Sprintf("%s/messages?sessionId=%s", h.basePath, sessionID))
	if err := conn.WriteEvent(ctx, sessions.EventEndpoint, endpointURL); err != nil {
		h.sessions.Remove(sessionID)
		return
	}
	h.log.InfoContext(ctx, "sse.open")

	defer func() {
		h.sessions.Remove(sessionID)
		h.log.InfoContext(ctx, "sse.close")
	}()

	ticker := time.NewTicker(h.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, _ := json.Marshal(map[string]string{"timestamp": time.Now().UTC().Format(time.RFC3339)})
			if err := conn.WriteEvent(ctx, sessions.EventHeartbeat, payload); err != nil {
				return
			}
		}
	}
}

// handlePostMessages receives the request half of the stateful exchange. The
// POST is acknowledged with 202 immediately; the JSON-RPC response, if any,
// is delivered as a message event on the session's stream.
func (h *Handler) handlePostMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	client := h.checkAuthentication(w, r)
	if client == nil {
		return
	}
	if !h.gate(w, r, client) {
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing required query param: sessionId")
		return
	}

	transport, err := h.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: sessionID,
		ClientID:  client.ClientID(),
		State:     "active",
	})

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "invalid request", err.Error()))
		return
	}

	w.WriteHeader(http.StatusAccepted)

	// Dispatch after the ack, detached from the POST's lifetime so a client
	// that hangs up on the 202 does not abort delivery to the stream.
	dispatchCtx := context.WithoutCancel(ctx)
	go func() {
		resp := h.disp.dispatch(dispatchCtx, &msg)
		if resp == nil {
			return
		}
		payload, err := json.Marshal(resp)
		if err != nil {
			h.log.ErrorContext(dispatchCtx, "sse.message.marshal.fail", slog.String("err", err.Error()))
			return
		}
		if err := transport.WriteEvent(dispatchCtx, sessions.EventMessage, payload); err != nil {
			h.log.WarnContext(dispatchCtx, "sse.message.write.fail", slog.String("err", err.Error()))
			h.sessions.Remove(sessionID)
		}
	}()
}
