package inspector

import "sort"

// Capabilities is the set of WidgetInspectorService methods implemented by the
// connected framework. It is computed once when the session is created.
type Capabilities struct {
	methods map[string]struct{}
}

// NewCapabilities builds a capability set from method names.
func NewCapabilities(methods []string) Capabilities {
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return Capabilities{methods: set}
}

// Has reports whether the framework implements method.
func (c Capabilities) Has(method string) bool {
	_, ok := c.methods[method]
	return ok
}

// Methods returns the sorted method names.
func (c Capabilities) Methods() []string {
	out := make([]string, 0, len(c.methods))
	for m := range c.methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of methods.
func (c Capabilities) Len() int {
	return len(c.methods)
}

// DetailsSummaryView reports support for the summary tree and local-only selection.
func (c Capabilities) DetailsSummaryView() bool {
	return c.Has("getSelectedSummaryWidget")
}

// HotUIScreenMirror reports support for bounding boxes, hit testing and
// location screenshots.
func (c Capabilities) HotUIScreenMirror() bool {
	return c.Has("getBoundingBoxes")
}
