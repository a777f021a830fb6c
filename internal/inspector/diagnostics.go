package inspector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ctagard/inspector-mcp/internal/errors"
)

// RemoteHandle is an opaque id for an object held by the inspector on behalf
// of an object group. It must not be used after its group is disposed.
type RemoteHandle string

// IsZero reports whether the handle is absent.
func (h RemoteHandle) IsZero() bool {
	return h == ""
}

// CreationLocation is where a widget was constructed, as tracked by the
// widget creation transformer.
type CreationLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Name   string `json:"name,omitempty"`
}

// wireNode is the JSON shape of a serialized DiagnosticsNode.
type wireNode struct {
	Description           string            `json:"description"`
	Type                  string            `json:"type"`
	Name                  string            `json:"name"`
	Style                 string            `json:"style"`
	Level                 string            `json:"level"`
	ValueID               string            `json:"valueId"`
	ObjectID              string            `json:"objectId"`
	WidgetRuntimeType     string            `json:"widgetRuntimeType"`
	HasChildren           bool              `json:"hasChildren"`
	Stateful              bool              `json:"stateful"`
	CreatedByLocalProject bool              `json:"createdByLocalProject"`
	SummaryTree           bool              `json:"summaryTree"`
	Truncated             bool              `json:"truncated"`
	PropertyType          string            `json:"propertyType"`
	TextPreview           string            `json:"textPreview"`
	ShowName              *bool             `json:"showName"`
	LocationID            *int              `json:"locationId"`
	CreationLocation      *CreationLocation `json:"creationLocation"`
	Properties            json.RawMessage   `json:"properties"`
	Children              json.RawMessage   `json:"children"`
	RenderObject          json.RawMessage   `json:"renderObject"`
}

// DiagnosticsNode describes one object of the remote widget, element or
// render tree. Nodes are owned by the ObjectGroup that fetched them.
type DiagnosticsNode struct {
	Description           string
	Type                  string
	Name                  string
	Style                 string
	Level                 string
	WidgetRuntimeType     string
	HasChildren           bool
	Stateful              bool
	CreatedByLocalProject bool
	SummaryTree           bool
	Truncated             bool
	PropertyType          string
	TextPreview           string
	ShowName              bool
	LocationID            *int
	CreationLocation      *CreationLocation

	// ValueRef identifies the object the node describes (valueId).
	ValueRef RemoteHandle
	// DiagnosticRef identifies the DiagnosticsNode itself (objectId).
	DiagnosticRef RemoteHandle

	// Properties and Children are present when the payload inlined them.
	Properties []*DiagnosticsNode
	Children   []*DiagnosticsNode
	// RenderObject is present on details subtrees of widgets.
	RenderObject *DiagnosticsNode

	parent *DiagnosticsNode
	group  *ObjectGroup
}

// Parent returns the node this one was fetched under, or nil. The parent is
// a navigation link only.
func (n *DiagnosticsNode) Parent() *DiagnosticsNode {
	return n.parent
}

// Group returns the group owning the node's handles.
func (n *DiagnosticsNode) Group() *ObjectGroup {
	return n.group
}

// IsProperty reports whether the node is a DiagnosticsProperty.
func (n *DiagnosticsNode) IsProperty() bool {
	return n.PropertyType != ""
}

// HasInlineChildren reports whether Children were included in the payload.
func (n *DiagnosticsNode) HasInlineChildren() bool {
	return n.Children != nil
}

// Location converts the creation location into a local Location.
func (n *DiagnosticsNode) Location(rewriter PathRewriter) *Location {
	if n.CreationLocation == nil {
		return nil
	}
	return &Location{
		Path:   FromSourceLocationURI(n.CreationLocation.File, rewriter),
		Line:   n.CreationLocation.Line,
		Column: n.CreationLocation.Column,
	}
}

// GetChildren returns the inline children or fetches them through the
// owning group.
func (n *DiagnosticsNode) GetChildren(ctx context.Context) ([]*DiagnosticsNode, error) {
	if n.Children != nil {
		return n.Children, nil
	}
	if !n.HasChildren || n.group == nil {
		return []*DiagnosticsNode{}, nil
	}
	return n.group.GetChildren(ctx, n.DiagnosticRef, n.SummaryTree, n)
}

// GetProperties returns the inline properties or fetches them through the
// owning group.
func (n *DiagnosticsNode) GetProperties(ctx context.Context) ([]*DiagnosticsNode, error) {
	if n.Properties != nil {
		return n.Properties, nil
	}
	if n.group == nil {
		return []*DiagnosticsNode{}, nil
	}
	return n.group.GetProperties(ctx, n.DiagnosticRef)
}

func (n *DiagnosticsNode) String() string {
	if n.Name != "" && n.ShowName {
		return n.Name + ": " + n.Description
	}
	return n.Description
}

// DiagnosticsPathNode is one step of an ancestor chain: the node on the path,
// its siblings-inclusive child list and the index of the child that continues
// the path.
type DiagnosticsPathNode struct {
	Node       *DiagnosticsNode
	Children   []*DiagnosticsNode
	ChildIndex int
}

type wirePathNode struct {
	Node       json.RawMessage `json:"node"`
	Children   json.RawMessage `json:"children"`
	ChildIndex *int            `json:"childIndex"`
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeNode builds a node from a JSON object. Absent or null input yields nil.
func decodeNode(raw json.RawMessage, group *ObjectGroup, parent *DiagnosticsNode) (*DiagnosticsNode, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	if trimmed := bytes.TrimSpace(raw); trimmed[0] != '{' {
		return nil, errors.MalformedPayload("diagnostics node", fmt.Errorf("expected object, got %.20s", trimmed))
	}

	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.MalformedPayload("diagnostics node", err)
	}

	node := &DiagnosticsNode{
		Description:           w.Description,
		Type:                  w.Type,
		Name:                  w.Name,
		Style:                 w.Style,
		Level:                 w.Level,
		WidgetRuntimeType:     w.WidgetRuntimeType,
		HasChildren:           w.HasChildren,
		Stateful:              w.Stateful,
		CreatedByLocalProject: w.CreatedByLocalProject,
		SummaryTree:           w.SummaryTree,
		Truncated:             w.Truncated,
		PropertyType:          w.PropertyType,
		TextPreview:           w.TextPreview,
		ShowName:              w.ShowName == nil || *w.ShowName,
		LocationID:            w.LocationID,
		CreationLocation:      w.CreationLocation,
		ValueRef:              RemoteHandle(w.ValueID),
		DiagnosticRef:         RemoteHandle(w.ObjectID),
		parent:                parent,
		group:                 group,
	}

	if !isAbsent(w.Properties) {
		props, err := decodeNodes(w.Properties, group, node)
		if err != nil {
			return nil, err
		}
		node.Properties = props
	}
	if !isAbsent(w.Children) {
		children, err := decodeNodes(w.Children, group, node)
		if err != nil {
			return nil, err
		}
		node.Children = children
	}
	if !isAbsent(w.RenderObject) {
		render, err := decodeNode(w.RenderObject, group, node)
		if err != nil {
			return nil, err
		}
		node.RenderObject = render
	}
	return node, nil
}

func decodeArray(raw json.RawMessage, what string) ([]json.RawMessage, error) {
	if trimmed := bytes.TrimSpace(raw); trimmed[0] != '[' {
		return nil, errors.MalformedPayload(what, fmt.Errorf("expected array, got %.20s", trimmed))
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, errors.MalformedPayload(what, err)
	}
	return elements, nil
}

// decodeNodes builds nodes from a JSON array in wire order, each with the
// same parent. Absent or null input yields an empty list.
func decodeNodes(raw json.RawMessage, group *ObjectGroup, parent *DiagnosticsNode) ([]*DiagnosticsNode, error) {
	if isAbsent(raw) {
		return []*DiagnosticsNode{}, nil
	}
	elements, err := decodeArray(raw, "diagnostics node list")
	if err != nil {
		return nil, err
	}

	nodes := make([]*DiagnosticsNode, 0, len(elements))
	for i, element := range elements {
		node, err := decodeNode(element, group, parent)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if node == nil {
			return nil, errors.MalformedPayload("diagnostics node list", fmt.Errorf("element %d is null", i))
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// decodePath builds an ancestor chain from a JSON array.
func decodePath(raw json.RawMessage, group *ObjectGroup) ([]*DiagnosticsPathNode, error) {
	if isAbsent(raw) {
		return []*DiagnosticsPathNode{}, nil
	}
	elements, err := decodeArray(raw, "parent chain")
	if err != nil {
		return nil, err
	}

	path := make([]*DiagnosticsPathNode, 0, len(elements))
	for i, element := range elements {
		var w wirePathNode
		if err := json.Unmarshal(element, &w); err != nil {
			return nil, errors.MalformedPayload("parent chain", fmt.Errorf("element %d: %w", i, err))
		}
		node, err := decodeNode(w.Node, group, nil)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if node == nil {
			return nil, errors.MalformedPayload("parent chain", fmt.Errorf("element %d has no node", i))
		}
		children, err := decodeNodes(w.Children, group, node)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		childIndex := -1
		if w.ChildIndex != nil {
			childIndex = *w.ChildIndex
		}
		path = append(path, &DiagnosticsPathNode{Node: node, Children: children, ChildIndex: childIndex})
	}
	return path, nil
}
