package mcp

import (
	"context"

	"github.com/ctagard/inspector-mcp/internal/inspector"
	"github.com/ctagard/inspector-mcp/internal/vmservice"
	"github.com/ctagard/inspector-mcp/pkg/types"
)

// maxTreeNodes caps the nodes fetched for one tree view.
const maxTreeNodes = 1000

func nodeView(n *inspector.DiagnosticsNode) *types.Node {
	if n == nil {
		return nil
	}
	v := &types.Node{
		Description:           n.Description,
		Name:                  n.Name,
		Type:                  n.Type,
		WidgetRuntimeType:     n.WidgetRuntimeType,
		Level:                 n.Level,
		PropertyType:          n.PropertyType,
		ValueRef:              string(n.ValueRef),
		DiagnosticRef:         string(n.DiagnosticRef),
		HasChildren:           n.HasChildren,
		Stateful:              n.Stateful,
		CreatedByLocalProject: n.CreatedByLocalProject,
		Truncated:             n.Truncated,
		Location:              locationView(n.Location(nil)),
		Properties:            nodesView(n.Properties),
	}
	if n.Children != nil {
		v.Children = nodesView(n.Children)
	}
	return v
}

func nodesView(nodes []*inspector.DiagnosticsNode) []*types.Node {
	if nodes == nil {
		return nil
	}
	views := make([]*types.Node, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, nodeView(n))
	}
	return views
}

func locationView(l *inspector.Location) *types.SourceLocation {
	if l == nil {
		return nil
	}
	return &types.SourceLocation{File: l.Path, Line: l.Line, Column: l.Column}
}

func pathView(path []*inspector.DiagnosticsPathNode) []*types.PathNode {
	views := make([]*types.PathNode, 0, len(path))
	for _, p := range path {
		views = append(views, &types.PathNode{
			Node:       nodeView(p.Node),
			Children:   nodesView(p.Children),
			ChildIndex: p.ChildIndex,
		})
	}
	return views
}

func rectView(r inspector.TransformedRect) types.Rect {
	return types.Rect{Left: r.Left, Top: r.Top, Width: r.Width, Height: r.Height, Transform: r.Transform}
}

func screenshotView(shot *inspector.Screenshot) types.ScreenshotInfo {
	info := types.ScreenshotInfo{Format: shot.Format, Rect: rectView(shot.Rect)}
	if shot.Image != nil {
		bounds := shot.Image.Bounds()
		info.Width = bounds.Dx()
		info.Height = bounds.Dy()
	}
	return info
}

// instanceView is the JSON shape of a VM object reference.
type instanceView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Class     string `json:"class,omitempty"`
	Value     string `json:"value,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

func refView(r *vmservice.InstanceRef) *instanceView {
	if r == nil {
		return nil
	}
	v := &instanceView{ID: r.ID, Kind: r.Kind, Value: r.StringValue(), Truncated: r.ValueAsStringIsTruncated}
	if r.ClassRef != nil {
		v.Class = r.ClassRef.Name
	}
	return v
}

// TreeView expands root depth levels deep into a view, fetching children
// through root's group. At most maxTreeNodes nodes are fetched.
func TreeView(ctx context.Context, root *inspector.DiagnosticsNode, depth int) (*types.Node, error) {
	b := &treeBuilder{budget: maxTreeNodes}
	return b.build(ctx, root, depth)
}

// treeBuilder expands a tree breadth first until a depth or node budget is
// exhausted. Nodes left unexpanded keep HasChildren set.
type treeBuilder struct {
	budget int
}

func (b *treeBuilder) build(ctx context.Context, root *inspector.DiagnosticsNode, depth int) (*types.Node, error) {
	view := nodeView(root)
	view.Children = nil
	b.budget--

	type pending struct {
		node  *inspector.DiagnosticsNode
		view  *types.Node
		depth int
	}
	queue := []pending{{root, view, depth}}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if p.depth <= 0 || b.budget <= 0 {
			continue
		}
		if !p.node.HasChildren && !p.node.HasInlineChildren() {
			continue
		}

		children, err := p.node.GetChildren(ctx)
		if err != nil {
			return nil, err
		}
		if len(children) > b.budget {
			children = children[:b.budget]
			p.view.Truncated = true
		}
		p.view.Children = make([]*types.Node, 0, len(children))
		for _, c := range children {
			cv := nodeView(c)
			cv.Children = nil
			p.view.Children = append(p.view.Children, cv)
			queue = append(queue, pending{c, cv, p.depth - 1})
		}
		b.budget -= len(children)
	}
	return view, nil
}
