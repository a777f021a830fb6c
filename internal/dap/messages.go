package dap

import (
	"encoding/json"

	"github.com/google/go-dap"
)

const callServiceCommand = "callService"

// Custom events emitted by the Dart debug adapter.
const (
	EventDebuggerURIs          = "dart.debuggerUris"
	EventServiceExtensionAdded = "dart.serviceExtensionAdded"
	EventToolEvent             = "dart.toolEvent"
)

// CallServiceRequest asks the adapter to forward a VM service call.
type CallServiceRequest struct {
	dap.Request

	Arguments CallServiceArguments `json:"arguments"`
}

// CallServiceArguments names the VM service method and its params.
type CallServiceArguments struct {
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// CallServiceResponse carries the VM service result as its body.
type CallServiceResponse struct {
	dap.Response

	Body json.RawMessage `json:"body,omitempty"`
}

// CustomEvent is any dart.* or flutter.* event; the body is left raw.
type CustomEvent struct {
	dap.Event

	Body json.RawMessage `json:"body,omitempty"`
}

type debuggerURIsBody struct {
	VMServiceURI string `json:"vmServiceUri"`
}

type extensionAddedBody struct {
	ExtensionRPC string `json:"extensionRPC"`
	IsolateID    string `json:"isolateId"`
}

type toolEventBody struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}
