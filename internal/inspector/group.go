package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ctagard/inspector-mcp/internal/errors"
	"github.com/ctagard/inspector-mcp/internal/vmservice"
)

// groupCounter numbers every group created by the process.
var groupCounter atomic.Uint64

type groupState int32

const (
	groupActive groupState = iota
	groupDisposing
	groupDisposed
)

// TreeType selects the widget or the render object tree.
type TreeType int

const (
	WidgetTree TreeType = iota
	RenderTree
)

func (t TreeType) String() string {
	if t == RenderTree {
		return "renderObject"
	}
	return "widget"
}

// ObjectGroup scopes the lifetime of remote handles. Every handle fetched
// through a group is released by a single Dispose call.
//
// After Dispose, every operation returns nil (or an empty slice or map) and
// a nil error without contacting the app. Requests in flight when the group
// is disposed are orphaned: the round trip completes but its result is
// dropped.
type ObjectGroup struct {
	session  *Session
	name     string
	state    atomic.Int32
	mu       sync.RWMutex
	disposed chan struct{}
}

func newObjectGroup(s *Session, label string) *ObjectGroup {
	id := groupCounter.Add(1) - 1
	return &ObjectGroup{
		session:  s,
		name:     fmt.Sprintf("%s_%d", label, id),
		disposed: make(chan struct{}),
	}
}

// Name returns the unique group name sent to the app.
func (g *ObjectGroup) Name() string {
	return g.name
}

// Session returns the owning session.
func (g *ObjectGroup) Session() *Session {
	return g.session
}

// IsDisposed reports whether Dispose has been called.
func (g *ObjectGroup) IsDisposed() bool {
	return groupState(g.state.Load()) != groupActive
}

// Done is closed once disposal has completed.
func (g *ObjectGroup) Done() <-chan struct{} {
	return g.disposed
}

// Dispose releases every handle of the group on the app side. It is
// idempotent. Requests issued before Dispose was called are on the wire
// before the release; no request is issued after it.
func (g *ObjectGroup) Dispose() {
	if !g.state.CompareAndSwap(int32(groupActive), int32(groupDisposing)) {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tr := g.session.transport()
	req := request{
		method: "disposeGroup",
		params: map[string]interface{}{"objectGroup": g.name},
		args:   []*string{strPtr(g.name)},
	}
	call := tr.issue(req)
	go func() {
		<-call.Done
		if call.Error != nil {
			g.session.logger.Debug("disposeGroup failed", "group", g.name, "error", call.Error)
		}
	}()

	g.state.Store(int32(groupDisposed))
	close(g.disposed)
}

// send issues a request unless the group is disposed and waits for it. ok is
// false when the group was disposed before the request went out or before
// its response arrived.
func (g *ObjectGroup) send(ctx context.Context, method string, issue func() *vmservice.Call) (json.RawMessage, bool, error) {
	g.mu.RLock()
	if g.IsDisposed() {
		g.mu.RUnlock()
		return nil, false, nil
	}
	call := issue()
	g.mu.RUnlock()

	select {
	case <-call.Done:
	case <-g.disposed:
		g.session.logger.Debug("orphaned request", "group", g.name, "method", method)
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, errors.Timeout(method, ctx.Err())
	}

	if g.IsDisposed() {
		g.session.logger.Debug("orphaned request", "group", g.name, "method", method)
		return nil, false, nil
	}
	if call.Error != nil {
		return nil, false, errors.RPCFailed(method, call.Error)
	}
	return call.Result, true, nil
}

// invoke runs req over tr.
func (g *ObjectGroup) invoke(ctx context.Context, tr transport, req request) (value, bool, error) {
	raw, ok, err := g.send(ctx, req.method, func() *vmservice.Call { return tr.issue(req) })
	if !ok || err != nil {
		return value{}, false, err
	}
	v, err := tr.decode(raw)
	if err != nil {
		return value{}, false, errors.RPCFailed(req.method, err)
	}
	return v, true, nil
}

// getObject loads a VM object into v through the group.
func (g *ObjectGroup) getObject(ctx context.Context, objectID string, v interface{}) (bool, error) {
	params := vmservice.ObjectParams(g.session.library.isolateID, objectID)
	raw, ok, err := g.send(ctx, "getObject", func() *vmservice.Call {
		return g.session.service.Go("getObject", params)
	})
	if !ok || err != nil {
		return false, err
	}
	if err := vmservice.DecodeObject(raw, v); err != nil {
		return false, errors.RPCFailed("getObject", err)
	}
	return true, nil
}

// resultJSON returns the JSON payload of v. Evaluations return the payload
// as a Dart string; truncated strings are loaded in full.
func (g *ObjectGroup) resultJSON(ctx context.Context, v value) (json.RawMessage, bool, error) {
	if v.ref == nil {
		return v.json, true, nil
	}
	if v.ref.IsNull() {
		return nil, true, nil
	}
	if v.ref.ValueAsString != nil && !v.ref.ValueAsStringIsTruncated {
		return json.RawMessage(*v.ref.ValueAsString), true, nil
	}

	var instance vmservice.Instance
	ok, err := g.getObject(ctx, v.ref.ID, &instance)
	if !ok || err != nil {
		return nil, false, err
	}
	if instance.ValueAsString == nil {
		return nil, false, errors.MalformedPayload("evaluation result", fmt.Errorf("%s has no string value", v.ref.ID))
	}
	return json.RawMessage(*instance.ValueAsString), true, nil
}

func (g *ObjectGroup) fetchJSON(ctx context.Context, tr transport, req request) (json.RawMessage, bool, error) {
	v, ok, err := g.invoke(ctx, tr, req)
	if !ok || err != nil {
		return nil, false, err
	}
	return g.resultJSON(ctx, v)
}

func (g *ObjectGroup) fetchNode(ctx context.Context, tr transport, req request, parent *DiagnosticsNode) (*DiagnosticsNode, error) {
	raw, ok, err := g.fetchJSON(ctx, tr, req)
	if !ok || err != nil {
		return nil, err
	}
	return decodeNode(raw, g, parent)
}

func (g *ObjectGroup) fetchNodes(ctx context.Context, tr transport, req request, parent *DiagnosticsNode) ([]*DiagnosticsNode, error) {
	raw, ok, err := g.fetchJSON(ctx, tr, req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*DiagnosticsNode{}, nil
	}
	return decodeNodes(raw, g, parent)
}

// groupRequest calls method(groupName).
func (g *ObjectGroup) groupRequest(method string) request {
	return request{
		method: method,
		params: map[string]interface{}{"objectGroup": g.name},
		args:   []*string{strPtr(g.name)},
	}
}

// refRequest calls method(ref, groupName).
func (g *ObjectGroup) refRequest(method string, ref RemoteHandle) request {
	return request{
		method: method,
		params: map[string]interface{}{"arg": handleArg(ref), "objectGroup": g.name},
		args:   []*string{handleArg(ref), strPtr(g.name)},
	}
}

// GetRoot returns the root of the widget or render tree.
func (g *ObjectGroup) GetRoot(ctx context.Context, treeType TreeType) (*DiagnosticsNode, error) {
	if treeType == RenderTree {
		return g.GetRootRenderObject(ctx)
	}
	return g.GetRootWidget(ctx)
}

// GetRootWidget returns the root widget, as a summary tree when supported.
func (g *ObjectGroup) GetRootWidget(ctx context.Context) (*DiagnosticsNode, error) {
	method := "getRootWidget"
	if g.session.IsDetailsSummaryViewSupported() {
		method = "getRootWidgetSummaryTree"
	}
	return g.fetchNode(ctx, g.session.transport(), g.groupRequest(method), nil)
}

// GetRootRenderObject returns the root of the render tree.
func (g *ObjectGroup) GetRootRenderObject(ctx context.Context) (*DiagnosticsNode, error) {
	return g.fetchNode(ctx, g.session.transport(), g.groupRequest("getRootRenderObject"), nil)
}

// GetElementForScreenshot returns the element a full app screenshot is taken of.
func (g *ObjectGroup) GetElementForScreenshot(ctx context.Context) (*DiagnosticsNode, error) {
	return g.fetchNode(ctx, g.session.transport(), g.groupRequest("getElementForScreenshot"), nil)
}

// GetSummaryTreeWithoutIDs returns the summary tree without registering any
// handles on the app side.
func (g *ObjectGroup) GetSummaryTreeWithoutIDs(ctx context.Context) (*DiagnosticsNode, error) {
	req := request{method: "getRootWidgetSummaryTree", params: map[string]interface{}{}}
	return g.fetchNode(ctx, g.session.extension(), req, nil)
}

// GetChildren fetches the children of the node identified by ref. parent is
// attached to every returned node.
func (g *ObjectGroup) GetChildren(ctx context.Context, ref RemoteHandle, summaryTree bool, parent *DiagnosticsNode) ([]*DiagnosticsNode, error) {
	method := "getChildren"
	if g.session.IsDetailsSummaryViewSupported() {
		method = "getChildrenDetailsSubtree"
		if summaryTree {
			method = "getChildrenSummaryTree"
		}
	}
	return g.fetchNodes(ctx, g.session.transport(), g.refRequest(method, ref), parent)
}

// GetProperties fetches the properties of the node identified by ref.
func (g *ObjectGroup) GetProperties(ctx context.Context, ref RemoteHandle) ([]*DiagnosticsNode, error) {
	return g.fetchNodes(ctx, g.session.transport(), g.refRequest("getProperties", ref), nil)
}

// GetDetailsSubtree fetches node with its properties and a few levels of
// children inlined.
func (g *ObjectGroup) GetDetailsSubtree(ctx context.Context, node *DiagnosticsNode) (*DiagnosticsNode, error) {
	if node == nil {
		return nil, nil
	}
	return g.fetchNode(ctx, g.session.transport(), g.refRequest("getDetailsSubtree", node.DiagnosticRef), nil)
}

// GetParentChain returns the path from the root to target.
func (g *ObjectGroup) GetParentChain(ctx context.Context, target *DiagnosticsNode) ([]*DiagnosticsPathNode, error) {
	if target == nil {
		return []*DiagnosticsPathNode{}, nil
	}
	raw, ok, err := g.fetchJSON(ctx, g.session.transport(), g.refRequest("getParentChain", target.ValueRef))
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*DiagnosticsPathNode{}, nil
	}
	return decodePath(raw, g)
}

// GetSelection returns the app's current selection. previous is returned
// as is when the selection has not changed. localOnly falls back to the full
// widget selection when the app has no summary selection.
func (g *ObjectGroup) GetSelection(ctx context.Context, previous *DiagnosticsNode, treeType TreeType, localOnly bool) (*DiagnosticsNode, error) {
	var previousRef RemoteHandle
	if previous != nil {
		previousRef = previous.DiagnosticRef
	}

	method := "getSelectedRenderObject"
	if treeType == WidgetTree {
		method = "getSelectedWidget"
		if localOnly && g.session.IsDetailsSummaryViewSupported() {
			method = "getSelectedSummaryWidget"
		}
	}

	selection, err := g.fetchNode(ctx, g.session.transport(), g.refRequest(method, previousRef), nil)
	if err != nil || selection == nil {
		return nil, err
	}
	if previous != nil && selection.DiagnosticRef == previousRef {
		return previous, nil
	}
	return selection, nil
}

// SetSelectionByRef selects the object identified by ref. Clients are
// notified only when the selection actually changed.
func (g *ObjectGroup) SetSelectionByRef(ctx context.Context, ref RemoteHandle, uiAlreadyUpdated, editorUpdated bool) (bool, error) {
	if ref.IsZero() {
		return false, nil
	}
	return g.setSelection(ctx, g.session.transport(), g.refRequest("setSelectionById", ref), uiAlreadyUpdated, editorUpdated)
}

// SetSelectionByLocation selects the widget created at loc. It needs the
// extension API and does nothing while the isolate is paused.
func (g *ObjectGroup) SetSelectionByLocation(ctx context.Context, loc *Location, uiAlreadyUpdated, editorUpdated bool) (bool, error) {
	if loc == nil || !g.session.UseExtensionAPI() {
		return false, nil
	}
	params := map[string]interface{}{"objectGroup": g.name}
	addLocationParams(loc, params)
	req := request{method: "setSelectionByLocation", params: params}
	return g.setSelection(ctx, g.session.extension(), req, uiAlreadyUpdated, editorUpdated)
}

// SetSelectionByValue selects a VM object, such as the inspectee of an
// Inspect event. It always evaluates since the argument is a VM reference.
func (g *ObjectGroup) SetSelectionByValue(ctx context.Context, ref *vmservice.InstanceRef, uiAlreadyUpdated, editorUpdated bool) (bool, error) {
	req := request{method: "setSelection", scope: map[string]string{}}
	if ref == nil {
		req.expression = callExpression("setSelection", nil, strPtr(g.name))
	} else {
		req.scope["arg1"] = ref.ID
		req.expression = serviceInstance + ".setSelection(arg1, " + dartString(g.name) + ")"
	}
	return g.setSelection(ctx, g.session.eval(), req, uiAlreadyUpdated, editorUpdated)
}

func (g *ObjectGroup) setSelection(ctx context.Context, tr transport, req request, uiAlreadyUpdated, editorUpdated bool) (bool, error) {
	v, ok, err := g.invoke(ctx, tr, req)
	if !ok || err != nil {
		return false, err
	}

	var changed bool
	if v.ref != nil {
		changed = v.ref.StringValue() == "true"
	} else if err := json.Unmarshal(v.json, &changed); err != nil {
		return false, errors.MalformedPayload(req.method+" result", err)
	}

	if changed && !g.IsDisposed() {
		g.session.notifySelectionChanged(uiAlreadyUpdated, editorUpdated)
	}
	return changed, nil
}

// GetElementsAtLocation returns up to count elements created at loc.
func (g *ObjectGroup) GetElementsAtLocation(ctx context.Context, loc *Location, count int) ([]*DiagnosticsNode, error) {
	params := map[string]interface{}{"count": count, "groupName": g.name}
	addLocationParams(loc, params)
	return g.fetchNodes(ctx, g.session.extension(), request{method: "getElementsAtLocation", params: params}, nil)
}

// GetBoundingBoxes returns the boxes of target relative to root.
func (g *ObjectGroup) GetBoundingBoxes(ctx context.Context, root, target *DiagnosticsNode) ([]*DiagnosticsNode, error) {
	if root == nil || target == nil || root.ValueRef.IsZero() || target.ValueRef.IsZero() {
		return []*DiagnosticsNode{}, nil
	}
	params := map[string]interface{}{
		"rootId":    string(root.ValueRef),
		"targetId":  string(target.ValueRef),
		"groupName": g.name,
	}
	return g.fetchNodes(ctx, g.session.extension(), request{method: "getBoundingBoxes", params: params}, nil)
}

// HitTestOptions narrows a hit test to widgets created in a file range.
type HitTestOptions struct {
	File      string
	StartLine int
	EndLine   int
}

// HitTest returns the widgets under (dx, dy) in root's coordinate space.
func (g *ObjectGroup) HitTest(ctx context.Context, root *DiagnosticsNode, dx, dy float64, opts HitTestOptions) ([]*DiagnosticsNode, error) {
	if root == nil || root.ValueRef.IsZero() {
		return []*DiagnosticsNode{}, nil
	}
	params := map[string]interface{}{
		"id":        string(root.ValueRef),
		"dx":        dx,
		"dy":        dy,
		"groupName": g.name,
	}
	if opts.File != "" {
		params["file"] = opts.File
	}
	if opts.StartLine >= 0 && opts.EndLine >= 0 {
		params["startLine"] = opts.StartLine
		params["endLine"] = opts.EndLine
	}
	return g.fetchNodes(ctx, g.session.extension(), request{method: "hitTest", params: params}, nil)
}

// ScreenshotSize bounds a screenshot.
type ScreenshotSize struct {
	Width         int
	Height        int
	MaxPixelRatio float64
}

func (s ScreenshotSize) addParams(params map[string]interface{}) {
	params["width"] = s.Width
	params["height"] = s.Height
	params["maxPixelRatio"] = s.MaxPixelRatio
}

// GetScreenshot renders the object identified by ref.
func (g *ObjectGroup) GetScreenshot(ctx context.Context, ref RemoteHandle, size ScreenshotSize) (*Screenshot, error) {
	if ref.IsZero() {
		return nil, nil
	}
	params := map[string]interface{}{"id": string(ref)}
	size.addParams(params)
	raw, ok, err := g.fetchJSON(ctx, g.session.extension(), request{method: "screenshot", params: params})
	if !ok || err != nil {
		return nil, err
	}
	return decodeScreenshot(raw)
}

// GetScreenshotAtLocation renders the widgets created at loc together with
// their bounding boxes.
func (g *ObjectGroup) GetScreenshotAtLocation(ctx context.Context, loc *Location, count int, size ScreenshotSize) (*InteractiveScreenshot, error) {
	params := map[string]interface{}{"count": count, "groupName": g.name}
	addLocationParams(loc, params)
	size.addParams(params)
	raw, ok, err := g.fetchJSON(ctx, g.session.extension(), request{method: "screenshotAtLocation", params: params})
	if !ok || err != nil {
		return nil, err
	}
	return decodeInteractiveScreenshot(raw, g)
}

// ToObject returns the VM reference of the object identified by ref.
func (g *ObjectGroup) ToObject(ctx context.Context, ref RemoteHandle) (*vmservice.InstanceRef, error) {
	return g.toObject(ctx, "toObject", ref)
}

// ToObjectForSourceLocation returns the VM reference of the object whose
// creation location identifies ref.
func (g *ObjectGroup) ToObjectForSourceLocation(ctx context.Context, ref RemoteHandle) (*vmservice.InstanceRef, error) {
	return g.toObject(ctx, "toObjectForSourceLocation", ref)
}

func (g *ObjectGroup) toObject(ctx context.Context, method string, ref RemoteHandle) (*vmservice.InstanceRef, error) {
	v, ok, err := g.invoke(ctx, g.session.eval(), g.refRequest(method, ref))
	if !ok || err != nil {
		return nil, err
	}
	return v.ref, nil
}

// GetObjectProperties evaluates the named getters on the object identified
// by ref.
func (g *ObjectGroup) GetObjectProperties(ctx context.Context, ref RemoteHandle, names []string) (map[string]*vmservice.InstanceRef, error) {
	if ref.IsZero() || len(names) == 0 {
		return map[string]*vmservice.InstanceRef{}, nil
	}
	object, err := g.ToObject(ctx, ref)
	if err != nil || object == nil {
		return map[string]*vmservice.InstanceRef{}, err
	}

	expression := "["
	for i, name := range names {
		if i > 0 {
			expression += ","
		}
		expression += "that." + name
	}
	expression += "]"

	req := request{method: "evaluate", expression: expression, scope: map[string]string{"that": object.ID}}
	v, ok, err := g.invoke(ctx, g.session.eval(), req)
	if !ok || err != nil {
		return map[string]*vmservice.InstanceRef{}, err
	}

	var list vmservice.Instance
	ok, err = g.getObject(ctx, v.ref.ID, &list)
	if !ok || err != nil {
		return map[string]*vmservice.InstanceRef{}, err
	}
	if len(list.Elements) != len(names) {
		return nil, errors.MalformedPayload("property list", fmt.Errorf("expected %d values, got %d", len(names), len(list.Elements)))
	}

	properties := make(map[string]*vmservice.InstanceRef, len(names))
	for i, name := range names {
		element := list.Elements[i]
		properties[name] = &element
	}
	return properties, nil
}

// NamedRef is an enum constant and its declared type.
type NamedRef struct {
	Name string
	Type *vmservice.InstanceRef
}

// GetEnumPropertyValues lists the constants of the enum class of the object
// identified by ref, in declaration order.
func (g *ObjectGroup) GetEnumPropertyValues(ctx context.Context, ref RemoteHandle) ([]NamedRef, error) {
	if ref.IsZero() {
		return []NamedRef{}, nil
	}
	object, err := g.ToObject(ctx, ref)
	if err != nil || object == nil {
		return []NamedRef{}, err
	}

	var instance vmservice.Instance
	ok, err := g.getObject(ctx, object.ID, &instance)
	if !ok || err != nil {
		return []NamedRef{}, err
	}
	if instance.ClassRef == nil {
		return nil, errors.MalformedPayload("instance", fmt.Errorf("%s has no class", object.ID))
	}

	var class vmservice.Class
	ok, err = g.getObject(ctx, instance.ClassRef.ID, &class)
	if !ok || err != nil {
		return []NamedRef{}, err
	}

	values := []NamedRef{}
	for _, field := range class.Fields {
		// Skips synthetic members such as _deleted_enum_sentinel and values.
		if strings.HasPrefix(field.Name, "_") || field.Name == "values" {
			continue
		}
		if field.Const && field.Static {
			values = append(values, NamedRef{Name: field.Name, Type: field.DeclaredType})
		}
	}
	return values, nil
}

// GetPropertyLocation finds the source position of the getter name on the
// class of value or one of its superclasses. It returns nil when no class
// declares it.
func (g *ObjectGroup) GetPropertyLocation(ctx context.Context, value *vmservice.InstanceRef, name string) (*Location, error) {
	if value == nil {
		return nil, nil
	}
	var instance vmservice.Instance
	ok, err := g.getObject(ctx, value.ID, &instance)
	if !ok || err != nil {
		return nil, err
	}

	classRef := instance.ClassRef
	for classRef != nil {
		var class vmservice.Class
		ok, err := g.getObject(ctx, classRef.ID, &class)
		if !ok || err != nil {
			return nil, err
		}
		for _, fn := range class.Functions {
			if fn.Name == name {
				return g.functionLocation(ctx, fn.ID)
			}
		}
		classRef = class.SuperClass
	}
	return nil, nil
}

func (g *ObjectGroup) functionLocation(ctx context.Context, funcID string) (*Location, error) {
	var fn vmservice.Func
	ok, err := g.getObject(ctx, funcID, &fn)
	if !ok || err != nil || fn.Location == nil {
		return nil, err
	}

	var script vmservice.Script
	ok, err = g.getObject(ctx, fn.Location.Script.ID, &script)
	if !ok || err != nil {
		return nil, err
	}
	line, column, found := script.LineColumn(fn.Location.TokenPos)
	if !found {
		return nil, nil
	}
	return &Location{
		Path:   FromSourceLocationURI(script.URI, g.session.rewriter),
		Line:   line,
		Column: column,
	}, nil
}

// evalWithRetry evaluates expression until it yields a non-null value. An
// explicit null means the app was busy and asks to be retried; a disposed
// group ends the loop silently.
func (g *ObjectGroup) evalWithRetry(ctx context.Context, expression string, scope map[string]string) (*vmservice.InstanceRef, error) {
	policy := g.session.retry
	req := request{method: "evaluate", expression: expression, scope: scope}

	for attempt := 1; ; attempt++ {
		v, ok, err := g.invoke(ctx, g.session.eval(), req)
		if !ok || err != nil {
			return nil, err
		}
		if !v.ref.IsNull() {
			return v.ref, nil
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return nil, errors.Timeout("evaluate", fmt.Errorf("still null after %d attempts", attempt))
		}
		if policy.Interval > 0 {
			timer := time.NewTimer(policy.Interval)
			select {
			case <-timer.C:
			case <-g.disposed:
				timer.Stop()
				return nil, nil
			case <-ctx.Done():
				timer.Stop()
				return nil, errors.Timeout("evaluate", ctx.Err())
			}
		}
	}
}
