package inspector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ctagard/inspector-mcp/internal/vmservice"
)

// ExtensionPrefix namespaces every inspector service extension.
const ExtensionPrefix = "ext.flutter.inspector."

// serviceInstance is the expression naming the inspector singleton.
const serviceInstance = "WidgetInspectorService.instance"

// request is one logical inspector call. The extension transport sends
// method and params; the evaluation transport calls method with args, or
// evaluates expression when it is set.
type request struct {
	method     string
	params     map[string]interface{}
	args       []*string
	expression string
	scope      map[string]string
}

// value is a transport-neutral response: JSON for extension calls, an
// instance reference for evaluations.
type value struct {
	json json.RawMessage
	ref  *vmservice.InstanceRef
}

// transport is one of the two wire strategies.
type transport interface {
	name() string
	issue(req request) *vmservice.Call
	decode(raw json.RawMessage) (value, error)
}

// extensionTransport sends structured service extension calls. They run
// between frames, so they never execute while the isolate is paused.
type extensionTransport struct {
	service   *vmservice.Service
	isolateID string
}

func (t extensionTransport) name() string { return "extension" }

func (t extensionTransport) issue(req request) *vmservice.Call {
	return t.service.Go(ExtensionPrefix+req.method, vmservice.ServiceExtensionParams(t.isolateID, stripNulls(req.params)))
}

func (t extensionTransport) decode(raw json.RawMessage) (value, error) {
	if isAbsent(raw) {
		return value{}, nil
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return value{}, fmt.Errorf("unexpected extension response: %w", err)
	}
	return value{json: envelope.Result}, nil
}

// evalTransport evaluates expressions in the inspector library. It works
// while the isolate is paused at a breakpoint.
type evalTransport struct {
	service   *vmservice.Service
	isolateID string
	libraryID string
}

func (t evalTransport) name() string { return "eval" }

func (t evalTransport) issue(req request) *vmservice.Call {
	expression := req.expression
	if expression == "" {
		expression = callExpression(req.method, req.args...)
	}
	return t.service.Go("evaluate", vmservice.EvaluateParams(t.isolateID, t.libraryID, expression, req.scope))
}

func (t evalTransport) decode(raw json.RawMessage) (value, error) {
	ref, err := vmservice.DecodeInstanceRef(raw)
	if err != nil {
		return value{}, err
	}
	return value{ref: ref}, nil
}

// stripNulls drops nil parameters; the extension protocol would otherwise
// deliver them as the string "null".
func stripNulls(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		if s, ok := v.(*string); ok {
			if s == nil {
				continue
			}
			v = *s
		}
		out[k] = v
	}
	return out
}

// callExpression renders WidgetInspectorService.instance.method(args...).
func callExpression(method string, args ...*string) string {
	rendered := make([]string, len(args))
	for i, arg := range args {
		if arg == nil {
			rendered[i] = "null"
			continue
		}
		rendered[i] = dartString(*arg)
	}
	return serviceInstance + "." + method + "(" + strings.Join(rendered, ", ") + ")"
}

// dartString quotes s as a Dart string literal.
func dartString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\', '"', '$':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func strPtr(s string) *string {
	return &s
}

// handleArg returns nil for an absent handle so it renders as null.
func handleArg(h RemoteHandle) *string {
	if h.IsZero() {
		return nil
	}
	return strPtr(string(h))
}
