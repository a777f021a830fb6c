// Package vmservice implements a client for the Dart VM service protocol.
//
// The VM service is the JSON-RPC 2.0 endpoint a debug-mode Flutter app
// exposes over a websocket. This package provides:
//   - Conn: the call/event surface shared by every transport
//   - Client: a Conn over a websocket (or any frame-oriented connection)
//   - Service: typed VM service methods and isolate pause tracking on top of a Conn
//
// The protocol is described at:
// https://github.com/dart-lang/sdk/blob/main/runtime/vm/service/service.md
package vmservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrClosed is reported for calls that were pending when the connection went away.
var ErrClosed = errors.New("vm service connection closed")

// Call is an in-flight request. Done receives the call itself once Result or
// Error is set.
type Call struct {
	Method string
	Params map[string]interface{}
	Result json.RawMessage
	Error  error
	Done   chan *Call
}

// NewCall returns a pending call. Conn implementations complete it exactly once.
func NewCall(method string, params map[string]interface{}) *Call {
	return &Call{Method: method, Params: params, Done: make(chan *Call, 1)}
}

// Complete sets the outcome and signals Done.
func (c *Call) Complete(result json.RawMessage, err error) {
	c.Result = result
	c.Error = err
	c.Done <- c
}

// Wait blocks until the call completes or ctx ends.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.Done:
		return c.Result, c.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Failed returns a call that has already completed with err.
func Failed(method string, err error) *Call {
	call := NewCall(method, nil)
	call.Complete(nil, err)
	return call
}

// Conn is a VM service connection. Go writes the request before returning and
// never waits for the response.
type Conn interface {
	Go(method string, params map[string]interface{}) *Call
	SetEventHandler(handler func(*Event))
	Close() error
}

// FrameConn is the subset of *websocket.Conn the client needs.
type FrameConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type rpcRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

type rpcMessage struct {
	ID     *string         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

type streamNotify struct {
	StreamID string          `json:"streamId"`
	Event    json.RawMessage `json:"event"`
}

// Client speaks JSON-RPC 2.0 over a frame connection
type Client struct {
	conn   FrameConn
	logger *slog.Logger

	writeMu sync.Mutex

	// Response handling
	pending map[string]*Call
	mu      sync.Mutex
	closed  bool

	// Event handling
	handlerMu    sync.RWMutex
	eventHandler func(*Event)

	done chan struct{}
	wg   sync.WaitGroup
}

// DialWebsocket connects to a VM service websocket URI such as
// ws://127.0.0.1:8181/abcd=/ws.
func DialWebsocket(ctx context.Context, uri string, logger *slog.Logger) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, uri, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to VM service at %s (HTTP %d): %w", uri, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to VM service at %s: %w", uri, err)
	}
	return NewClient(conn, logger), nil
}

// NewClient creates a client over an established frame connection and starts
// its read loop.
func NewClient(conn FrameConn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]*Call),
		done:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// SetEventHandler sets the handler for stream events
func (c *Client) SetEventHandler(handler func(*Event)) {
	c.handlerMu.Lock()
	c.eventHandler = handler
	c.handlerMu.Unlock()
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// readLoop continuously reads frames from the connection
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.done)
	defer c.failPending(ErrClosed)

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logger.Warn("vm service read failed", "error", err)
			}
			return
		}

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			consecutiveErrors++
			c.logger.Warn("vm service sent malformed frame",
				"attempt", consecutiveErrors, "max", maxConsecutiveErrors, "error", err)
			if consecutiveErrors >= maxConsecutiveErrors {
				c.logger.Error("vm service: too many consecutive malformed frames, stopping read loop")
				return
			}
			continue
		}

		consecutiveErrors = 0
		c.handleMessage(&msg)
	}
}

// handleMessage routes responses to pending calls and notifications to the event handler
func (c *Client) handleMessage(msg *rpcMessage) {
	if msg.ID != nil && msg.Method == "" {
		c.mu.Lock()
		call, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("vm service response for unknown request", "id", *msg.ID)
			return
		}
		if msg.Error != nil {
			call.Complete(nil, msg.Error)
			return
		}
		call.Complete(msg.Result, nil)
		return
	}

	if msg.Method != "streamNotify" {
		return
	}

	var notify streamNotify
	if err := json.Unmarshal(msg.Params, &notify); err != nil {
		c.logger.Warn("vm service sent malformed streamNotify", "error", err)
		return
	}
	var event Event
	if err := json.Unmarshal(notify.Event, &event); err != nil {
		c.logger.Warn("vm service sent malformed event", "stream", notify.StreamID, "error", err)
		return
	}
	event.StreamID = notify.StreamID

	c.handlerMu.RLock()
	handler := c.eventHandler
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(&event)
	}
}

// Go sends a request and returns without waiting for the response
func (c *Client) Go(method string, params map[string]interface{}) *Call {
	call := NewCall(method, params)
	id := uuid.NewString()

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		call.Complete(nil, fmt.Errorf("failed to marshal %s request: %w", method, err))
		return call
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		call.Complete(nil, ErrClosed)
		return call
	}
	c.pending[id] = call
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		_, stillPending := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if stillPending {
			call.Complete(nil, fmt.Errorf("failed to write %s request: %w", method, err))
		}
	}
	return call
}

// Call sends a request and waits for the response
func (c *Client) Call(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	return c.Go(method, params).Wait(ctx)
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*Call)
	c.mu.Unlock()

	for _, call := range pending {
		call.Complete(nil, err)
	}
}

// Close shuts down the client
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	c.wg.Wait()
	return err
}
