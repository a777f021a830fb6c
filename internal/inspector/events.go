package inspector

import (
	"encoding/json"
	"net/url"

	"github.com/ctagard/inspector-mcp/internal/vmservice"
)

const (
	frameExtensionKind    = "Flutter.Frame"
	navigateExtensionKind = "navigate"
)

// inboundEvent is an event the session reacts to. Every VM service event is
// classified once at the boundary; unknown combinations classify to nil.
type inboundEvent interface {
	inbound()
}

// selectionInspected: the debugger (DevTools, the on-device inspector) set a
// new selection.
type selectionInspected struct {
	Inspectee *vmservice.InstanceRef
}

// frameRendered: the app produced a frame.
type frameRendered struct{}

// navigateRequested: a tool asked the IDE to open a source position.
type navigateRequested struct {
	FileURI string
	Line    int
	Column  int
}

// extensionAdded: a service extension became available.
type extensionAdded struct {
	Method string
}

func (selectionInspected) inbound() {}
func (frameRendered) inbound()      {}
func (navigateRequested) inbound()  {}
func (extensionAdded) inbound()     {}

type wireNavigate struct {
	FileURI *string `json:"fileUri"`
	Line    *int    `json:"line"`
	Column  *int    `json:"column"`
}

// classifyEvent maps a stream/kind pair to an inbound event.
func classifyEvent(e *vmservice.Event) inboundEvent {
	switch e.StreamID {
	case vmservice.StreamDebug:
		if e.Kind == vmservice.EventKindInspect {
			return selectionInspected{Inspectee: e.Inspectee}
		}
	case vmservice.StreamExtension:
		if e.ExtensionKind == frameExtensionKind {
			return frameRendered{}
		}
	case vmservice.StreamIsolate:
		if e.Kind == vmservice.EventKindServiceExtensionAdded && e.ExtensionRPC != "" {
			return extensionAdded{Method: e.ExtensionRPC}
		}
	case vmservice.StreamToolEvent:
		if e.ExtensionKind != navigateExtensionKind || len(e.ExtensionData) == 0 {
			return nil
		}
		var w wireNavigate
		if err := json.Unmarshal(e.ExtensionData, &w); err != nil || w.FileURI == nil {
			return nil
		}
		nav := navigateRequested{FileURI: *w.FileURI, Line: -1, Column: -1}
		if w.Line != nil {
			nav.Line = *w.Line
		}
		if w.Column != nil {
			nav.Column = *w.Column
		}
		return nav
	}
	return nil
}

// navigatePath extracts the file path of a navigate request; ok is false for
// URIs that do not parse or carry no path.
func navigatePath(fileURI string) (string, bool) {
	u, err := url.Parse(fileURI)
	if err != nil || u.Scheme == "" || u.Path == "" {
		return "", false
	}
	return u.Path, true
}
