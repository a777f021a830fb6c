// Package vmservicetest provides an in-memory VM service for tests of
// packages built on vmservice.
package vmservicetest

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ctagard/inspector-mcp/internal/vmservice"
)

// Identifiers of the single isolate and inspector library the fake serves.
const (
	IsolateID  = "isolates/1"
	LibraryID  = "libraries/1"
	LibraryURI = "package:flutter/src/widgets/widget_inspector.dart"

	extensionPrefix = "ext.flutter.inspector."
)

// VM answers calls from fixed results or handlers and records them.
type VM struct {
	mu       sync.Mutex
	handlers map[string]func(params map[string]interface{}) (string, error)
	objects  map[string]string
	calls    map[string][]map[string]interface{}
	handler  func(*vmservice.Event)
	closed   bool
}

var _ vmservice.Conn = (*VM)(nil)

// New returns a VM running a Flutter isolate whose WidgetInspectorService
// implements methods.
func New(methods ...string) *VM {
	functions := make([]map[string]string, len(methods))
	for i, m := range methods {
		functions[i] = map[string]string{"id": fmt.Sprintf("functions/%d", i), "name": m}
	}
	class, _ := json.Marshal(map[string]interface{}{
		"type":      "Class",
		"id":        "classes/1",
		"name":      "WidgetInspectorService",
		"functions": functions,
	})

	vm := &VM{
		handlers: make(map[string]func(map[string]interface{}) (string, error)),
		objects: map[string]string{
			LibraryID:   `{"type":"Library","id":"` + LibraryID + `","uri":"` + LibraryURI + `","classes":[{"id":"classes/1","name":"WidgetInspectorService"}]}`,
			"classes/1": string(class),
		},
		calls: make(map[string][]map[string]interface{}),
	}
	vm.On("getVM", `{"type":"VM","name":"vm","isolates":[{"id":"`+IsolateID+`","name":"main"}]}`)
	vm.On("getIsolate", `{"type":"Isolate","id":"`+IsolateID+`","name":"main","libraries":[{"id":"`+LibraryID+`","uri":"`+LibraryURI+`"}]}`)
	vm.On("streamListen", `{"type":"Success"}`)
	vm.Handle("getObject", func(params map[string]interface{}) (string, error) {
		id, _ := params["objectId"].(string)
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if obj, ok := vm.objects[id]; ok {
			return obj, nil
		}
		return "", &vmservice.RPCError{Code: -32602, Message: "no object " + id}
	})
	return vm
}

// On answers method with a fixed result.
func (vm *VM) On(method, result string) {
	vm.Handle(method, func(map[string]interface{}) (string, error) { return result, nil })
}

// Handle answers method with fn.
func (vm *VM) Handle(method string, fn func(params map[string]interface{}) (string, error)) {
	vm.mu.Lock()
	vm.handlers[method] = fn
	vm.mu.Unlock()
}

// OnExtension answers ext.flutter.inspector.<name> with {"result": result}.
func (vm *VM) OnExtension(name, result string) {
	method := extensionPrefix + name
	vm.On(method, `{"type":"_extensionType","method":"`+method+`","result":`+result+`}`)
}

// Object registers a getObject result.
func (vm *VM) Object(id, body string) {
	vm.mu.Lock()
	vm.objects[id] = body
	vm.mu.Unlock()
}

// Calls returns the params of every call to method, oldest first.
func (vm *VM) Calls(method string) []map[string]interface{} {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]map[string]interface{}(nil), vm.calls[method]...)
}

// ExtensionCalls returns the params of every call to an inspector extension.
func (vm *VM) ExtensionCalls(name string) []map[string]interface{} {
	return vm.Calls(extensionPrefix + name)
}

// Closed reports whether Close was called.
func (vm *VM) Closed() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.closed
}

// Emit delivers an event as if it arrived on the connection.
func (vm *VM) Emit(e *vmservice.Event) {
	vm.mu.Lock()
	handler := vm.handler
	vm.mu.Unlock()
	if handler != nil {
		handler(e)
	}
}

// Go answers synchronously. Unknown methods fail with "Method not found".
func (vm *VM) Go(method string, params map[string]interface{}) *vmservice.Call {
	vm.mu.Lock()
	vm.calls[method] = append(vm.calls[method], params)
	respond := vm.handlers[method]
	closed := vm.closed
	vm.mu.Unlock()

	call := vmservice.NewCall(method, params)
	switch {
	case closed:
		call.Complete(nil, vmservice.ErrClosed)
	case respond == nil:
		call.Complete(nil, &vmservice.RPCError{Code: vmservice.CodeMethodNotFound, Message: "Method not found"})
	default:
		result, err := respond(params)
		if err != nil {
			call.Complete(nil, err)
		} else {
			call.Complete(json.RawMessage(result), nil)
		}
	}
	return call
}

// SetEventHandler implements vmservice.Conn.
func (vm *VM) SetEventHandler(handler func(*vmservice.Event)) {
	vm.mu.Lock()
	vm.handler = handler
	vm.mu.Unlock()
}

// Close implements vmservice.Conn.
func (vm *VM) Close() error {
	vm.mu.Lock()
	vm.closed = true
	vm.mu.Unlock()
	return nil
}
