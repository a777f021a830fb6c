// Package dap reaches the Dart VM service through a Debug Adapter Protocol
// server such as 'flutter debug-adapter'.
//
// The adapter owns the VM service connection. This package provides:
//   - Transport: framed DAP messages over TCP or the adapter's stdio
//   - Client: the DAP handshake plus a vmservice.Conn that tunnels VM service
//     calls through the adapter's callService request
//   - Spawn/Dial: starting or connecting to the adapter process
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/go-dap"
)

// Transport handles communication with a DAP server
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int
}

// NewTCPTransport creates a transport connected to a TCP address
func NewTCPTransport(address string) (*Transport, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}
	return newTransport(conn), nil
}

// NewStdioTransport creates a transport using stdio streams
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) *Transport {
	return newTransport(&stdioRWC{reader: stdout, writer: stdin})
}

func newTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}
}

type stdioRWC struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioRWC) Read(p []byte) (n int, err error) {
	return s.reader.Read(p)
}

func (s *stdioRWC) Write(p []byte) (n int, err error) {
	return s.writer.Write(p)
}

func (s *stdioRWC) Close() error {
	err1 := s.writer.Close()
	err2 := s.reader.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// NextSeq returns the next sequence number
func (t *Transport) NextSeq() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.seq
	t.seq++
	return seq
}

// Send sends a DAP message
func (t *Transport) Send(msg dap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}
	return nil
}

// DecodeError reports a frame that was read but could not be decoded. The
// stream is still in sync after it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode DAP message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Receive receives a DAP message. Dart-specific responses and events, which
// the go-dap codec does not know, decode to CallServiceResponse and
// CustomEvent.
func (t *Transport) Receive() (dap.Message, error) {
	data, err := dap.ReadBaseMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read DAP message: %w", err)
	}
	msg, err := decodeMessage(data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return msg, nil
}

// Close closes the transport
func (t *Transport) Close() error {
	return t.conn.Close()
}

type messageHead struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Event   string `json:"event"`
}

func decodeMessage(data []byte) (dap.Message, error) {
	var head messageHead
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch {
	case head.Type == "response" && head.Command == callServiceCommand:
		var resp CallServiceResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	case head.Type == "event" && isCustomEvent(head.Event):
		var event CustomEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, err
		}
		return &event, nil
	}
	return dap.DecodeProtocolMessage(data)
}

func isCustomEvent(name string) bool {
	return strings.HasPrefix(name, "dart.") || strings.HasPrefix(name, "flutter.")
}
