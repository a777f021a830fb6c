package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ctagard/inspector-mcp/internal/vmservice"
)

const (
	testIsolateID = "isolates/1"
	testLibraryID = "libraries/1"
)

type recordedCall struct {
	method string
	params map[string]interface{}
}

// fakeVM is an in-memory VM service. It records every call, answers from
// per-method handlers and can hold calls open to simulate slow responses.
type fakeVM struct {
	mu       sync.Mutex
	handlers map[string]func(params map[string]interface{}) (string, error)
	objects  map[string]string
	hold     map[string]bool
	held     []*vmservice.Call
	calls    []recordedCall
	notify   chan string
	handler  func(*vmservice.Event)
}

// newFakeVM returns a VM whose inspector class implements methods.
func newFakeVM(methods ...string) *fakeVM {
	functions := make([]map[string]string, len(methods))
	for i, m := range methods {
		functions[i] = map[string]string{"id": fmt.Sprintf("functions/ws%d", i), "name": m}
	}
	class, _ := json.Marshal(map[string]interface{}{
		"type":      "Class",
		"id":        "classes/1",
		"name":      inspectorClassName,
		"functions": functions,
		"fields":    []interface{}{},
	})

	vm := &fakeVM{
		handlers: make(map[string]func(map[string]interface{}) (string, error)),
		objects: map[string]string{
			testLibraryID: `{"type":"Library","id":"libraries/1","uri":"` + inspectorLibraryURI + `","classes":[{"id":"classes/1","name":"WidgetInspectorService"}]}`,
			"classes/1":   string(class),
		},
		hold:   make(map[string]bool),
		notify: make(chan string, 256),
	}
	vm.on("getVM", `{"type":"VM","name":"vm","isolates":[{"id":"isolates/1","name":"main"}]}`)
	vm.on("getIsolate", `{"type":"Isolate","id":"isolates/1","name":"main","libraries":[{"id":"libraries/1","uri":"`+inspectorLibraryURI+`"}],"extensionRPCs":[]}`)
	vm.on("streamListen", `{"type":"Success"}`)
	vm.handlers["getObject"] = func(params map[string]interface{}) (string, error) {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		id, _ := params["objectId"].(string)
		obj, ok := vm.objects[id]
		if !ok {
			return "", &vmservice.RPCError{Code: -32602, Message: "no object " + id}
		}
		return obj, nil
	}
	return vm
}

// on answers method with a fixed result.
func (vm *fakeVM) on(method, result string) {
	vm.handle(method, func(map[string]interface{}) (string, error) { return result, nil })
}

func (vm *fakeVM) handle(method string, fn func(params map[string]interface{}) (string, error)) {
	vm.mu.Lock()
	vm.handlers[method] = fn
	vm.mu.Unlock()
}

// onExtension answers an inspector extension with {"result": result}.
func (vm *fakeVM) onExtension(name, result string) {
	vm.on(ExtensionPrefix+name, `{"type":"_extensionType","method":"`+ExtensionPrefix+name+`","result":`+result+`}`)
}

func (vm *fakeVM) object(id, body string) {
	vm.mu.Lock()
	vm.objects[id] = body
	vm.mu.Unlock()
}

func (vm *fakeVM) Go(method string, params map[string]interface{}) *vmservice.Call {
	vm.mu.Lock()
	vm.calls = append(vm.calls, recordedCall{method: method, params: params})
	respond := vm.handlers[method]
	hold := vm.hold[method]
	call := vmservice.NewCall(method, params)
	if hold {
		vm.held = append(vm.held, call)
	}
	vm.mu.Unlock()

	select {
	case vm.notify <- method:
	default:
	}

	if hold {
		return call
	}
	if respond == nil {
		call.Complete(nil, &vmservice.RPCError{Code: vmservice.CodeMethodNotFound, Message: "Method not found"})
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

func (vm *fakeVM) SetEventHandler(handler func(*vmservice.Event)) {
	vm.mu.Lock()
	vm.handler = handler
	vm.mu.Unlock()
}

func (vm *fakeVM) Close() error { return nil }

func (vm *fakeVM) emit(e *vmservice.Event) {
	vm.mu.Lock()
	handler := vm.handler
	vm.mu.Unlock()
	handler(e)
}

func (vm *fakeVM) pause() {
	vm.emit(&vmservice.Event{
		StreamID: vmservice.StreamDebug,
		Kind:     vmservice.EventKindPauseBreakpoint,
		Isolate:  &vmservice.IsolateRef{ID: testIsolateID},
	})
}

func (vm *fakeVM) callCount() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.calls)
}

// callsTo returns the recorded calls of method.
func (vm *fakeVM) callsTo(method string) []recordedCall {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	var out []recordedCall
	for _, c := range vm.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (vm *fakeVM) lastCall() recordedCall {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.calls[len(vm.calls)-1]
}

// waitFor blocks until method is called.
func (vm *fakeVM) waitFor(t *testing.T, method string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m := <-vm.notify:
			if m == method {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", method)
		}
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func connectSession(t *testing.T, vm *fakeVM, opts Options) *Session {
	t.Helper()
	svc := vmservice.NewService(vm, nil)
	s, err := Connect(testContext(t), svc, opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// flush waits until every callback queued so far has been delivered.
func flush(t *testing.T, s *Session) {
	t.Helper()
	done := make(chan struct{})
	s.deliver(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery queue stalled")
	}
}

// recordingClient records notifications.
type recordingClient struct {
	mu         sync.Mutex
	selections [][2]bool
	frames     int
	refreshes  int
	refreshErr error
}

func (c *recordingClient) OnSelectionChanged(uiAlreadyUpdated, editorUpdated bool) {
	c.mu.Lock()
	c.selections = append(c.selections, [2]bool{uiAlreadyUpdated, editorUpdated})
	c.mu.Unlock()
}

func (c *recordingClient) OnFrame() {
	c.mu.Lock()
	c.frames++
	c.mu.Unlock()
}

func (c *recordingClient) OnForceRefresh(ctx context.Context) error {
	c.mu.Lock()
	c.refreshes++
	c.mu.Unlock()
	return c.refreshErr
}

func (c *recordingClient) selectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selections)
}

func evalString(s string) string {
	b, _ := json.Marshal(s)
	return `{"type":"@Instance","kind":"String","id":"objects/str","valueAsString":` + string(b) + `}`
}

const evalNull = `{"type":"@Instance","kind":"Null","id":"objects/null"}`
