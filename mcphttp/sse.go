package mcphttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/mailwebhook/mcp-gateway-go/sessions"
)

// connState is the per-connection lifecycle. Transitions only move forward:
// Connecting -> Open -> Active -> Closing -> Closed. A write failure jumps
// straight to Closed with no further events attempted.
type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateActive
	stateClosing
	stateClosed
)

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an
// optional context. It serializes concurrent writes/flushes and avoids
// writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check after acquiring the lock to minimize races with cancellation
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

var errConnClosed = fmt.Errorf("connection closed")

// sseConn is one server-sent-event connection. It implements
// sessions.Transport so the session registry can own its lifetime.
type sseConn struct {
	wf     *lockedWriteFlusher
	cancel context.CancelFunc

	mu     sync.Mutex
	state  connState
	nextID uint64
}

// newSSEConn commits the response to the event-stream content type and
// returns the connection. cancel unblocks the serving handler when the
// connection is torn down from outside the request goroutine.
func newSSEConn(w http.ResponseWriter, ctx context.Context, cancel context.CancelFunc) (*sseConn, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	wf.Flush()

	return &sseConn{wf: wf, cancel: cancel, state: stateConnecting}, nil
}

// WriteEvent emits one frame: "event: <type>\nid: <n>\ndata: <json>\n\n".
// The first successful write moves the connection to Open; a message write
// moves it to Active. Any write failure closes the connection silently.
func (c *sseConn) WriteEvent(ctx context.Context, typ sessions.EventType, data []byte) error {
	c.mu.Lock()
	if c.state >= stateClosing {
		c.mu.Unlock()
		return errConnClosed
	}
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	frame := fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", typ, id, data)
	if _, err := c.wf.Write([]byte(frame)); err != nil {
		c.abort()
		return err
	}
	c.wf.Flush()

	c.mu.Lock()
	switch {
	case c.state == stateConnecting:
		c.state = stateOpen
	case c.state == stateOpen && typ == sessions.EventMessage:
		c.state = stateActive
	}
	c.mu.Unlock()
	return nil
}

// abort transitions straight to Closed after a failed write. No further
// events are attempted.
func (c *sseConn) abort() {
	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
	c.cancel()
}

// Close tears the connection down. Idempotent.
func (c *sseConn) Close() error {
	c.mu.Lock()
	if c.state >= stateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosing
	c.mu.Unlock()

	c.cancel()

	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
	return nil
}

var _ sessions.Transport = (*sseConn)(nil)
