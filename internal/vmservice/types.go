package vmservice

import (
	"encoding/json"
	"fmt"
)

// Stream identifiers used with streamListen.
const (
	StreamDebug     = "Debug"
	StreamExtension = "Extension"
	StreamIsolate   = "Isolate"
	StreamToolEvent = "ToolEvent"
)

// Event kinds the inspector cares about.
const (
	EventKindInspect               = "Inspect"
	EventKindExtension             = "Extension"
	EventKindServiceExtensionAdded = "ServiceExtensionAdded"
	EventKindResume                = "Resume"
	EventKindNone                  = "None"
	EventKindPauseStart            = "PauseStart"
	EventKindPauseExit             = "PauseExit"
	EventKindPauseBreakpoint       = "PauseBreakpoint"
	EventKindPauseInterrupted      = "PauseInterrupted"
	EventKindPauseException        = "PauseException"
	EventKindPausePostRequest      = "PausePostRequest"
)

// Error codes defined by the VM service protocol.
const (
	CodeMethodNotFound          = -32601
	CodeStreamAlreadySubscribed = 103
	CodeExpressionCompileError  = 113
)

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		var details struct {
			Details string `json:"details"`
		}
		if json.Unmarshal(e.Data, &details) == nil && details.Details != "" {
			return fmt.Sprintf("%s (%d): %s", e.Message, e.Code, details.Details)
		}
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// EvalError is returned when an evaluation produced an @Error instead of a value.
type EvalError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// SentinelError is returned when the VM answers with a Sentinel (collected or expired object).
type SentinelError struct {
	Kind          string `json:"kind"`
	ValueAsString string `json:"valueAsString"`
}

func (e *SentinelError) Error() string {
	return fmt.Sprintf("sentinel %s: %s", e.Kind, e.ValueAsString)
}

// VM is the response to getVM.
type VM struct {
	Name     string       `json:"name"`
	Version  string       `json:"version"`
	Isolates []IsolateRef `json:"isolates"`
}

// IsolateRef references an isolate.
type IsolateRef struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Number          string `json:"number"`
	IsSystemIsolate bool   `json:"isSystemIsolate"`
}

// Isolate is the response to getIsolate.
type Isolate struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Runnable      bool         `json:"runnable"`
	PauseEvent    *Event       `json:"pauseEvent,omitempty"`
	RootLib       *LibraryRef  `json:"rootLib,omitempty"`
	Libraries     []LibraryRef `json:"libraries"`
	ExtensionRPCs []string     `json:"extensionRPCs"`
}

// HasExtension reports whether the isolate registered the given service extension.
func (i *Isolate) HasExtension(method string) bool {
	for _, rpc := range i.ExtensionRPCs {
		if rpc == method {
			return true
		}
	}
	return false
}

// LibraryRef references a library.
type LibraryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Library is a fully loaded library object.
type Library struct {
	LibraryRef
	Classes []ClassRef `json:"classes"`
}

// ClassRef references a class.
type ClassRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Class is a fully loaded class object.
type Class struct {
	ClassRef
	SuperClass *ClassRef  `json:"super,omitempty"`
	Functions  []FuncRef  `json:"functions"`
	Fields     []FieldRef `json:"fields"`
}

// FuncRef references a function.
type FuncRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Func is a fully loaded function object.
type Func struct {
	FuncRef
	Location *SourceLocation `json:"location,omitempty"`
}

// FieldRef references a field.
type FieldRef struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	DeclaredType *InstanceRef `json:"declaredType,omitempty"`
	Const        bool         `json:"const"`
	Final        bool         `json:"final"`
	Static       bool         `json:"static"`
}

// ScriptRef references a script.
type ScriptRef struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// Script is a fully loaded script with its token position table.
type Script struct {
	ScriptRef
	// Each row is [line, tokenPos, column, tokenPos, column, ...].
	TokenPosTable [][]int `json:"tokenPosTable"`
}

// LineColumn resolves a token position to a 1-based line and column.
func (s *Script) LineColumn(tokenPos int) (line, column int, ok bool) {
	for _, row := range s.TokenPosTable {
		if len(row) == 0 {
			continue
		}
		for i := 1; i+1 < len(row); i += 2 {
			if row[i] == tokenPos {
				return row[0], row[i+1], true
			}
		}
	}
	return 0, 0, false
}

// SourceLocation is a script plus token position.
type SourceLocation struct {
	Script   ScriptRef `json:"script"`
	TokenPos int       `json:"tokenPos"`
}

// InstanceRef references a Dart object. Kind "Null" denotes an explicit null value.
type InstanceRef struct {
	Type                     string    `json:"type,omitempty"`
	ID                       string    `json:"id"`
	Kind                     string    `json:"kind"`
	ClassRef                 *ClassRef `json:"class,omitempty"`
	ValueAsString            *string   `json:"valueAsString,omitempty"`
	ValueAsStringIsTruncated bool      `json:"valueAsStringIsTruncated,omitempty"`
}

// IsNull reports whether the reference is an explicit Dart null.
func (r *InstanceRef) IsNull() bool {
	return r != nil && r.Kind == "Null"
}

// StringValue returns valueAsString or "" when absent.
func (r *InstanceRef) StringValue() string {
	if r == nil || r.ValueAsString == nil {
		return ""
	}
	return *r.ValueAsString
}

// Instance is a fully loaded object.
type Instance struct {
	InstanceRef
	Elements []InstanceRef `json:"elements,omitempty"`
}

// Event is delivered on a stream after streamListen.
type Event struct {
	StreamID      string          `json:"-"`
	Kind          string          `json:"kind"`
	Isolate       *IsolateRef     `json:"isolate,omitempty"`
	ExtensionKind string          `json:"extensionKind,omitempty"`
	ExtensionData json.RawMessage `json:"extensionData,omitempty"`
	ExtensionRPC  string          `json:"extensionRPC,omitempty"`
	Inspectee     *InstanceRef    `json:"inspectee,omitempty"`
	Timestamp     int64           `json:"timestamp,omitempty"`
}

// IsPause reports whether the event kind leaves the isolate suspended.
func (e *Event) IsPause() bool {
	switch e.Kind {
	case EventKindPauseStart, EventKindPauseExit, EventKindPauseBreakpoint,
		EventKindPauseInterrupted, EventKindPauseException, EventKindPausePostRequest:
		return true
	}
	return false
}

// typed peeks at the "type" member of a response object.
type typed struct {
	Type string `json:"type"`
}

// decodeObject unmarshals raw into v after checking the response is not an
// @Error or Sentinel.
func decodeObject(raw json.RawMessage, v interface{}) error {
	var t typed
	if err := json.Unmarshal(raw, &t); err != nil {
		return fmt.Errorf("unexpected response shape: %w", err)
	}
	switch t.Type {
	case "@Error", "Error":
		var e EvalError
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		return &e
	case "Sentinel":
		var s SentinelError
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		return &s
	}
	return json.Unmarshal(raw, v)
}

// DecodeObject decodes a getObject response into v. @Error and Sentinel
// responses become *EvalError and *SentinelError.
func DecodeObject(raw json.RawMessage, v interface{}) error {
	return decodeObject(raw, v)
}

// DecodeInstanceRef decodes the result of evaluate or invoke.
func DecodeInstanceRef(raw json.RawMessage) (*InstanceRef, error) {
	var ref InstanceRef
	if err := decodeObject(raw, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}
