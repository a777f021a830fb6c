package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/go-dap"

	"github.com/ctagard/inspector-mcp/internal/vmservice"
)

// rpcErrorCode is reported for callService failures; the adapter does not
// forward the VM service error code.
const rpcErrorCode = -32000

// Client drives a Dart debug adapter and implements vmservice.Conn on top of
// its callService request.
type Client struct {
	transport *Transport
	logger    *slog.Logger

	// Response handling
	pending map[int]func(dap.Message)
	mu      sync.Mutex
	closed  bool

	// Event handling
	handlerMu    sync.RWMutex
	eventHandler func(*vmservice.Event)

	// Capabilities from initialize response
	capabilities dap.Capabilities

	initialized     chan struct{}
	initializedOnce sync.Once

	vmServiceURI  string
	vmServiceOnce sync.Once
	vmServiceUp   chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

var _ vmservice.Conn = (*Client)(nil)

// NewClient creates a client over transport and starts its read loop.
func NewClient(transport *Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		transport:   transport,
		logger:      logger,
		pending:     make(map[int]func(dap.Message)),
		initialized: make(chan struct{}),
		vmServiceUp: make(chan struct{}),
		done:        make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// SetEventHandler sets the handler for VM service events synthesized from
// adapter events.
func (c *Client) SetEventHandler(handler func(*vmservice.Event)) {
	c.handlerMu.Lock()
	c.eventHandler = handler
	c.handlerMu.Unlock()
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// readLoop continuously reads messages from the transport
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.done)
	defer c.failPending(vmservice.ErrClosed)

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	for {
		msg, err := c.transport.Receive()
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				c.logger.Debug("skipping undecodable DAP message", "error", err)
				continue
			}
			if c.isClosed() || errors.Is(err, io.EOF) {
				return
			}
			consecutiveErrors++
			c.logger.Warn("DAP transport error",
				"attempt", consecutiveErrors, "max", maxConsecutiveErrors, "error", err)
			if consecutiveErrors >= maxConsecutiveErrors {
				c.logger.Error("DAP transport: too many consecutive errors, stopping read loop")
				return
			}
			continue
		}

		consecutiveErrors = 0
		c.handleMessage(msg)
	}
}

// handleMessage routes responses to their requests and translates events
func (c *Client) handleMessage(msg dap.Message) {
	if resp, ok := msg.(dap.ResponseMessage); ok {
		seq := resp.GetResponse().RequestSeq
		c.mu.Lock()
		handler, ok := c.pending[seq]
		delete(c.pending, seq)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("DAP response for unknown request", "requestSeq", seq)
			return
		}
		handler(msg)
		return
	}

	switch m := msg.(type) {
	case *dap.InitializedEvent:
		c.initializedOnce.Do(func() { close(c.initialized) })
	case *dap.StoppedEvent:
		c.emit(&vmservice.Event{StreamID: vmservice.StreamDebug, Kind: pauseKind(m.Body.Reason)})
	case *dap.ContinuedEvent:
		c.emit(&vmservice.Event{StreamID: vmservice.StreamDebug, Kind: vmservice.EventKindResume})
	case *dap.OutputEvent:
		c.logger.Debug("adapter output", "category", m.Body.Category, "output", m.Body.Output)
	case *dap.TerminatedEvent:
		c.logger.Info("debug adapter reported termination")
	case *CustomEvent:
		c.handleCustomEvent(m)
	}
}

func (c *Client) handleCustomEvent(e *CustomEvent) {
	switch e.Event.Event {
	case EventDebuggerURIs:
		var body debuggerURIsBody
		if err := json.Unmarshal(e.Body, &body); err != nil || body.VMServiceURI == "" {
			c.logger.Warn("malformed debugger URIs event", "error", err)
			return
		}
		c.vmServiceOnce.Do(func() {
			c.mu.Lock()
			c.vmServiceURI = body.VMServiceURI
			c.mu.Unlock()
			close(c.vmServiceUp)
		})
	case EventServiceExtensionAdded:
		var body extensionAddedBody
		if err := json.Unmarshal(e.Body, &body); err != nil {
			c.logger.Warn("malformed service extension event", "error", err)
			return
		}
		event := &vmservice.Event{
			StreamID:     vmservice.StreamIsolate,
			Kind:         vmservice.EventKindServiceExtensionAdded,
			ExtensionRPC: body.ExtensionRPC,
		}
		if body.IsolateID != "" {
			event.Isolate = &vmservice.IsolateRef{ID: body.IsolateID}
		}
		c.emit(event)
	case EventToolEvent:
		var body toolEventBody
		if err := json.Unmarshal(e.Body, &body); err != nil {
			c.logger.Warn("malformed tool event", "error", err)
			return
		}
		c.emit(&vmservice.Event{
			StreamID:      vmservice.StreamToolEvent,
			Kind:          "ToolEvent",
			ExtensionKind: body.Kind,
			ExtensionData: body.Data,
		})
	default:
		c.logger.Debug("ignoring adapter event", "event", e.Event.Event)
	}
}

func (c *Client) emit(event *vmservice.Event) {
	c.handlerMu.RLock()
	handler := c.eventHandler
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(event)
	}
}

// pauseKind maps a DAP stop reason to a VM service pause kind. Stops carry no
// isolate, so the event applies to every isolate.
func pauseKind(reason string) string {
	switch reason {
	case "breakpoint", "function breakpoint", "data breakpoint", "instruction breakpoint":
		return vmservice.EventKindPauseBreakpoint
	case "exception":
		return vmservice.EventKindPauseException
	case "entry":
		return vmservice.EventKindPauseStart
	default:
		return vmservice.EventKindPauseInterrupted
	}
}

func newRequest(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Type: "request"},
		Command:         command,
	}
}

// send assigns a sequence number, registers onResponse and writes req. When
// the write fails the handler is dropped and the error returned.
func (c *Client) send(req dap.RequestMessage, onResponse func(dap.Message)) error {
	seq := c.transport.NextSeq()
	req.GetRequest().Seq = seq

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return vmservice.ErrClosed
	}
	c.pending[seq] = onResponse
	c.mu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.mu.Lock()
		_, stillPending := c.pending[seq]
		delete(c.pending, seq)
		c.mu.Unlock()
		if stillPending {
			return err
		}
	}
	return nil
}

// sendAsync writes req and returns a channel receiving its response.
func (c *Client) sendAsync(req dap.RequestMessage) (<-chan dap.Message, error) {
	respCh := make(chan dap.Message, 1)
	if err := c.send(req, func(msg dap.Message) { respCh <- msg }); err != nil {
		return nil, err
	}
	return respCh, nil
}

// sendRequest sends a request and waits for the response
func (c *Client) sendRequest(ctx context.Context, req dap.RequestMessage) (dap.Message, error) {
	respCh, err := c.sendAsync(req)
	if err != nil {
		return nil, err
	}
	return c.wait(ctx, req.GetRequest().Command, respCh)
}

func (c *Client) wait(ctx context.Context, command string, respCh <-chan dap.Message) (dap.Message, error) {
	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, vmservice.ErrClosed
		}
		if err := responseError(resp); err != nil {
			return nil, fmt.Errorf("%s failed: %w", command, err)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", command, ctx.Err())
	case <-c.done:
		return nil, vmservice.ErrClosed
	}
}

// responseError extracts the failure of an unsuccessful response.
func responseError(msg dap.Message) error {
	switch m := msg.(type) {
	case *dap.ErrorResponse:
		if m.Body.Error != nil && m.Body.Error.Format != "" {
			return errors.New(m.Body.Error.Format)
		}
		return errors.New(m.Message)
	case dap.ResponseMessage:
		if r := m.GetResponse(); !r.Success {
			return errors.New(r.Message)
		}
	}
	return nil
}

// Initialize sends the initialize request
func (c *Client) Initialize(ctx context.Context, clientID string) (dap.Capabilities, error) {
	req := &dap.InitializeRequest{
		Request: newRequest("initialize"),
		Arguments: dap.InitializeRequestArguments{
			ClientID:             clientID,
			ClientName:           clientID,
			AdapterID:            "dart",
			Locale:               "en-US",
			LinesStartAt1:        true,
			ColumnsStartAt1:      true,
			PathFormat:           "path",
			SupportsVariableType: true,
		},
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return dap.Capabilities{}, err
	}
	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok {
		return dap.Capabilities{}, fmt.Errorf("unexpected response type: %T", resp)
	}

	c.mu.Lock()
	c.capabilities = initResp.Body
	c.mu.Unlock()
	return initResp.Body, nil
}

// Capabilities returns what the adapter reported from initialize.
func (c *Client) Capabilities() dap.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// WaitInitialized waits for the initialized event
func (c *Client) WaitInitialized(ctx context.Context) error {
	select {
	case <-c.initialized:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for initialized event: %w", ctx.Err())
	case <-c.done:
		return vmservice.ErrClosed
	}
}

// Launch runs a Flutter app through the adapter. The Dart adapter answers the
// launch request only after configurationDone, so the response is awaited
// last.
func (c *Client) Launch(ctx context.Context, args map[string]interface{}) error {
	return c.start(ctx, "launch", args)
}

// Attach connects the adapter to a running app, typically via vmServiceUri.
func (c *Client) Attach(ctx context.Context, args map[string]interface{}) error {
	return c.start(ctx, "attach", args)
}

func (c *Client) start(ctx context.Context, command string, args map[string]interface{}) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal %s args: %w", command, err)
	}

	var req dap.RequestMessage
	if command == "launch" {
		req = &dap.LaunchRequest{Request: newRequest(command), Arguments: argsJSON}
	} else {
		req = &dap.AttachRequest{Request: newRequest(command), Arguments: argsJSON}
	}

	respCh, err := c.sendAsync(req)
	if err != nil {
		return err
	}
	if err := c.WaitInitialized(ctx); err != nil {
		return err
	}
	if err := c.ConfigurationDone(ctx); err != nil {
		return err
	}
	if _, err := c.wait(ctx, command, respCh); err != nil {
		return err
	}
	return nil
}

// ConfigurationDone signals that configuration is complete
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := c.sendRequest(ctx, &dap.ConfigurationDoneRequest{Request: newRequest("configurationDone")})
	return err
}

// WaitVMService blocks until the adapter has announced the VM service URI.
func (c *Client) WaitVMService(ctx context.Context) (string, error) {
	select {
	case <-c.vmServiceUp:
		return c.VMServiceURI(), nil
	case <-ctx.Done():
		return "", fmt.Errorf("timeout waiting for the VM service: %w", ctx.Err())
	case <-c.done:
		return "", vmservice.ErrClosed
	}
}

// VMServiceURI returns the announced VM service URI, or "" before the
// announcement.
func (c *Client) VMServiceURI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vmServiceURI
}

// Disconnect ends the debug session
func (c *Client) Disconnect(ctx context.Context, terminateDebuggee bool) error {
	req := &dap.DisconnectRequest{
		Request:   newRequest("disconnect"),
		Arguments: &dap.DisconnectArguments{TerminateDebuggee: terminateDebuggee},
	}
	_, err := c.sendRequest(ctx, req)
	return err
}

// Go tunnels a VM service call through callService without waiting for the
// response.
func (c *Client) Go(method string, params map[string]interface{}) *vmservice.Call {
	call := vmservice.NewCall(method, params)
	req := &CallServiceRequest{
		Request:   newRequest(callServiceCommand),
		Arguments: CallServiceArguments{Method: method, Params: params},
	}
	err := c.send(req, func(msg dap.Message) {
		call.Complete(callServiceResult(msg))
	})
	if err != nil {
		call.Complete(nil, err)
	}
	return call
}

func callServiceResult(msg dap.Message) (json.RawMessage, error) {
	switch m := msg.(type) {
	case *CallServiceResponse:
		if !m.Success {
			return nil, &vmservice.RPCError{Code: rpcErrorCode, Message: m.Message}
		}
		if len(m.Body) == 0 {
			return json.RawMessage("null"), nil
		}
		return m.Body, nil
	case *dap.ErrorResponse:
		return nil, &vmservice.RPCError{Code: rpcErrorCode, Message: responseError(m).Error()}
	}
	return nil, fmt.Errorf("unexpected response type: %T", msg)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// failPending answers every outstanding request with an ErrorResponse so
// waiters and VM service calls observe err.
func (c *Client) failPending(err error) {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[int]func(dap.Message))
	c.mu.Unlock()

	for seq, handler := range pending {
		handler(&dap.ErrorResponse{
			Response: dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Type: "response"},
				RequestSeq:      seq,
				Message:         err.Error(),
			},
		})
	}
}

// Close shuts down the client
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	err := c.transport.Close()
	c.wg.Wait()
	return err
}
