package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code. The gateway only emits the five
// codes reserved by the protocol; tool failures are reported inside results
// and never surface as protocol errors.
type ErrorCode int

const (
	// ErrorCodeParseError: the request body was not valid JSON.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest: valid JSON, but not a valid request envelope.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound: the method is not in the dispatch table.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams: params failed to decode or lack required fields.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError: a handler fault that escaped dispatch.
	ErrorCodeInternalError ErrorCode = -32603
)
