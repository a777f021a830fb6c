// Package types defines shared data types used across the inspector MCP server.
//
// This package provides type definitions for:
//   - TransportKind and SessionStatus: how a session reaches the app and its state
//   - Request types: ConnectRequest
//   - Info types: SessionInfo, Node, PathNode, Rect, ScreenshotInfo, Event
//
// Nodes here are plain JSON views of the remote diagnostics tree: they carry
// the handles needed for follow-up calls but no back-pointers, so they
// serialize without cycles.
package types

// TransportKind selects how a session reaches the VM service
type TransportKind string

const (
	TransportVMService TransportKind = "vmservice"
	TransportDAP       TransportKind = "dap"
)

// SessionStatus represents the status of an inspector session
type SessionStatus string

const (
	SessionStatusConnecting SessionStatus = "connecting"
	SessionStatusRunning    SessionStatus = "running"
	SessionStatusPaused     SessionStatus = "paused"
	SessionStatusClosed     SessionStatus = "closed"
)

// TreeType names the tree a request targets
type TreeType string

const (
	TreeWidget TreeType = "widget"
	TreeRender TreeType = "render"
)

// ConnectRequest describes how to reach a running Flutter app
type ConnectRequest struct {
	Transport TransportKind `json:"transport,omitempty"`
	// VMServiceURI is the ws:// URI of the VM service (vmservice transport, or
	// dap attach).
	VMServiceURI string `json:"vmServiceUri,omitempty"`
	// ProjectDir is the Flutter project to launch through the debug adapter.
	ProjectDir string   `json:"projectDir,omitempty"`
	Program    string   `json:"program,omitempty"`
	DeviceID   string   `json:"deviceId,omitempty"`
	ToolArgs   []string `json:"toolArgs,omitempty"`
	// Args are passed to the app's main.
	Args []string          `json:"args,omitempty"`
	Env  map[string]string `json:"env,omitempty"`
}

// SessionInfo represents information about an inspector session
type SessionInfo struct {
	SessionID    string        `json:"sessionId"`
	Transport    TransportKind `json:"transport"`
	Status       SessionStatus `json:"status"`
	Target       string        `json:"target"`
	IsolateID    string        `json:"isolateId,omitempty"`
	Capabilities []string      `json:"capabilities,omitempty"`
	Groups       []string      `json:"groups,omitempty"`
	PID          int           `json:"pid,omitempty"`
}

// SourceLocation is where a widget was created
type SourceLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Node represents one diagnostics node
type Node struct {
	Description           string          `json:"description"`
	Name                  string          `json:"name,omitempty"`
	Type                  string          `json:"type,omitempty"`
	WidgetRuntimeType     string          `json:"widgetRuntimeType,omitempty"`
	Level                 string          `json:"level,omitempty"`
	PropertyType          string          `json:"propertyType,omitempty"`
	ValueRef              string          `json:"valueRef,omitempty"`
	DiagnosticRef         string          `json:"diagnosticRef,omitempty"`
	HasChildren           bool            `json:"hasChildren,omitempty"`
	Stateful              bool            `json:"stateful,omitempty"`
	CreatedByLocalProject bool            `json:"createdByLocalProject,omitempty"`
	Truncated             bool            `json:"truncated,omitempty"`
	Location              *SourceLocation `json:"location,omitempty"`
	Properties            []*Node         `json:"properties,omitempty"`
	Children              []*Node         `json:"children,omitempty"`
}

// PathNode is one step of an ancestor chain
type PathNode struct {
	Node       *Node   `json:"node"`
	Children   []*Node `json:"children,omitempty"`
	ChildIndex int     `json:"childIndex"`
}

// Rect represents a transformed rectangle
type Rect struct {
	Left      float64   `json:"left"`
	Top       float64   `json:"top"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Transform []float64 `json:"transform,omitempty"`
}

// ScreenshotInfo describes a screenshot returned as image content
type ScreenshotInfo struct {
	Format   string  `json:"format"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Rect     Rect    `json:"rect"`
	Boxes    []*Node `json:"boxes,omitempty"`
	Elements []*Node `json:"elements,omitempty"`
}

// EventKind names a recorded session event
type EventKind string

const (
	EventSelectionChanged EventKind = "selectionChanged"
	EventFrame            EventKind = "frame"
	EventNavigate         EventKind = "navigate"
	EventForceRefresh     EventKind = "forceRefresh"
)

// Event is one session event as seen by a recording client
type Event struct {
	Kind      EventKind       `json:"kind"`
	Time      string          `json:"time"`
	UIAlready bool            `json:"uiAlreadyUpdated,omitempty"`
	TextEdit  bool            `json:"textEditorUpdated,omitempty"`
	Location  *SourceLocation `json:"location,omitempty"`
}
