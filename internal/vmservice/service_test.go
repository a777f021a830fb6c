package vmservice

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// scriptedConn answers every call from a table keyed by method.
type scriptedConn struct {
	mu        sync.Mutex
	responses map[string]func(params map[string]interface{}) (string, error)
	handler   func(*Event)
	calls     []string
}

func (c *scriptedConn) Go(method string, params map[string]interface{}) *Call {
	c.mu.Lock()
	c.calls = append(c.calls, method)
	respond := c.responses[method]
	c.mu.Unlock()

	call := NewCall(method, params)
	if respond == nil {
		call.Complete(nil, &RPCError{Code: CodeMethodNotFound, Message: "Method not found"})
		return call
	}
	result, err := respond(params)
	if err != nil {
		call.Complete(nil, err)
		return call
	}
	call.Complete(json.RawMessage(result), nil)
	return call
}

func (c *scriptedConn) SetEventHandler(handler func(*Event)) { c.handler = handler }
func (c *scriptedConn) Close() error                         { return nil }

func fixed(result string) func(map[string]interface{}) (string, error) {
	return func(map[string]interface{}) (string, error) { return result, nil }
}

// TestService_PauseTracking verifies Debug stream events toggle IsPaused.
func TestService_PauseTracking(t *testing.T) {
	conn := &scriptedConn{}
	s := NewService(conn, nil)

	if s.IsPaused("isolates/1") {
		t.Fatal("isolates start running")
	}

	conn.handler(&Event{StreamID: StreamDebug, Kind: EventKindPauseBreakpoint, Isolate: &IsolateRef{ID: "isolates/1"}})
	if !s.IsPaused("isolates/1") {
		t.Error("expected paused after PauseBreakpoint")
	}
	if s.IsPaused("isolates/2") {
		t.Error("other isolates are unaffected")
	}

	conn.handler(&Event{StreamID: StreamDebug, Kind: EventKindResume, Isolate: &IsolateRef{ID: "isolates/1"}})
	if s.IsPaused("isolates/1") {
		t.Error("expected running after Resume")
	}

	// Pause events on other streams are ignored
	conn.handler(&Event{StreamID: StreamIsolate, Kind: EventKindPauseInterrupted, Isolate: &IsolateRef{ID: "isolates/1"}})
	if s.IsPaused("isolates/1") {
		t.Error("only Debug stream events change pause state")
	}

	// Isolate-less events apply everywhere
	conn.handler(&Event{StreamID: StreamDebug, Kind: EventKindPauseInterrupted})
	if !s.IsPaused("isolates/1") || !s.IsPaused("isolates/9") {
		t.Error("expected wildcard pause to apply to all isolates")
	}
}

// TestService_Listeners verifies listener registration and removal.
func TestService_Listeners(t *testing.T) {
	conn := &scriptedConn{}
	s := NewService(conn, nil)

	var got []string
	remove := s.AddListener(func(e *Event) { got = append(got, e.Kind) })

	conn.handler(&Event{StreamID: StreamExtension, Kind: "Extension"})
	remove()
	conn.handler(&Event{StreamID: StreamExtension, Kind: "Extension"})

	if len(got) != 1 {
		t.Errorf("expected 1 delivery, got %d", len(got))
	}
}

// TestService_StreamListenAlreadySubscribed verifies error 103 is swallowed.
func TestService_StreamListenAlreadySubscribed(t *testing.T) {
	conn := &scriptedConn{responses: map[string]func(map[string]interface{}) (string, error){
		"streamListen": func(map[string]interface{}) (string, error) {
			return "", &RPCError{Code: CodeStreamAlreadySubscribed, Message: "Stream already subscribed"}
		},
	}}
	s := NewService(conn, nil)

	if err := s.StreamListen(testContext(t), StreamExtension); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

// TestService_EvaluateDecodesErrors verifies @Error and Sentinel responses become errors.
func TestService_EvaluateDecodesErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		check    func(error) bool
	}{
		{"eval error", `{"type":"@Error","kind":"CompilationError","message":"bad"}`, func(err error) bool {
			var e *EvalError
			return errors.As(err, &e) && e.Kind == "CompilationError"
		}},
		{"sentinel", `{"type":"Sentinel","kind":"Collected","valueAsString":"<collected>"}`, func(err error) bool {
			var e *SentinelError
			return errors.As(err, &e) && e.Kind == "Collected"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &scriptedConn{responses: map[string]func(map[string]interface{}) (string, error){
				"evaluate": fixed(tt.response),
			}}
			_, err := NewService(conn, nil).Evaluate(testContext(t), "isolates/1", "libraries/1", "1+1", nil)
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

// TestService_EvaluateParams verifies the scope map is only sent when non-empty.
func TestService_EvaluateParams(t *testing.T) {
	var seen map[string]interface{}
	conn := &scriptedConn{responses: map[string]func(map[string]interface{}) (string, error){
		"evaluate": func(p map[string]interface{}) (string, error) {
			seen = p
			return `{"type":"@Instance","kind":"Bool","id":"objects/1","valueAsString":"true"}`, nil
		},
	}}
	s := NewService(conn, nil)

	ref, err := s.Evaluate(testContext(t), "isolates/1", "libraries/7", "that.size", map[string]string{"that": "objects/3"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if ref.StringValue() != "true" {
		t.Errorf("expected true, got %q", ref.StringValue())
	}
	if seen["targetId"] != "libraries/7" {
		t.Errorf("unexpected targetId %v", seen["targetId"])
	}
	scope, ok := seen["scope"].(map[string]string)
	if !ok || scope["that"] != "objects/3" {
		t.Errorf("scope not passed: %v", seen["scope"])
	}

	if _, err := s.Evaluate(testContext(t), "isolates/1", "libraries/7", "1", nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := seen["scope"]; ok {
		t.Error("empty scope must be omitted")
	}
}

// TestScript_LineColumn verifies token position lookup.
func TestScript_LineColumn(t *testing.T) {
	script := &Script{TokenPosTable: [][]int{
		{1, 0, 1, 5, 7},
		{4, 20, 3, 31, 14},
	}}

	line, col, ok := script.LineColumn(31)
	if !ok || line != 4 || col != 14 {
		t.Errorf("expected 4:14, got %d:%d (%v)", line, col, ok)
	}
	if _, _, ok := script.LineColumn(99); ok {
		t.Error("unknown token positions must not resolve")
	}
}

// TestIsolate_HasExtension verifies extension lookup.
func TestIsolate_HasExtension(t *testing.T) {
	iso := &Isolate{ExtensionRPCs: []string{"ext.flutter.inspector.setPubRootDirectories"}}
	if !iso.HasExtension("ext.flutter.inspector.setPubRootDirectories") {
		t.Error("expected extension to be found")
	}
	if iso.HasExtension("ext.flutter.debugPaint") {
		t.Error("unexpected extension")
	}
}
