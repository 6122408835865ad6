package mcphttp

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/mailwebhook/mcp-gateway-go/internal/jsonrpc"
	"github.com/mailwebhook/mcp-gateway-go/mcp"
)

// handlePostMCP is the synchronous variant: one POST carries one JSON-RPC
// message or a batch of them, and the response body mirrors the request
// shape. Notifications consume no slot in the response; a request body of
// only notifications yields 202 with no body.
func (h *Handler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mediaType, err := contenttype.GetMediaType(r)
	if err != nil || !mediaType.EqualsMIME(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	client := h.checkAuthentication(w, r)
	if client == nil {
		return
	}
	if !h.gate(w, r, client) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	raws, batch, err := jsonrpc.SplitBatch(body)
	if err != nil {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", err.Error()))
		return
	}

	// One malformed batch member becomes one error entry; it never fails the
	// well-formed members around it.
	responses := make([]*jsonrpc.Response, 0, len(raws))
	for _, raw := range raws {
		var msg jsonrpc.AnyMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			responses = append(responses, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "invalid request", err.Error()))
			continue
		}
		if resp := h.disp.dispatch(ctx, &msg); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if batch {
		_ = json.NewEncoder(w).Encode(responses)
		return
	}
	_ = json.NewEncoder(w).Encode(responses[0])
}

// handleListTools is the REST convenience mirror of tools/list.
func (h *Handler) handleListTools(w http.ResponseWriter, r *http.Request) {
	client := h.checkAuthentication(w, r)
	if client == nil {
		return
	}
	if !h.gate(w, r, client) {
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"tools": h.disp.registry.List()})
}

// handleCallTool is the REST convenience mirror of tools/call. Tool failures
// surface as isError results with HTTP 200; only transport-level problems
// use error statuses.
func (h *Handler) handleCallTool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mediaType, err := contenttype.GetMediaType(r)
	if err != nil || !mediaType.EqualsMIME(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	client := h.checkAuthentication(w, r)
	if client == nil {
		return
	}
	if !h.gate(w, r, client) {
		return
	}

	var req struct {
		Params mcp.CallToolRequest `json:"params"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Params.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "missing required param: name")
		return
	}

	result := h.disp.registry.Call(ctx, req.Params.Name, req.Params.Arguments).CallToolResult()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}
