package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/inspector-mcp/internal/errors"
	"github.com/ctagard/inspector-mcp/internal/inspector"
	"github.com/ctagard/inspector-mcp/internal/launchconfig"
	"github.com/ctagard/inspector-mcp/internal/session"
	"github.com/ctagard/inspector-mcp/pkg/types"
)

const (
	defaultTreeDepth = 3
	defaultCount     = 10
)

// jsonResult marshals data as the text of a tool result.
func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// errorResult reports err to the client as a failed tool call.
func errorResult(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(errors.FromError(err).Error()), nil
}

// groupDisposed is the result of a call whose group went away mid-flight.
func groupDisposed(group string) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf("object group '%s' was disposed before the call completed; fetch the tree again", groupName(group))), nil
}

func groupName(name string) string {
	if name == "" {
		return session.DefaultGroup
	}
	return name
}

func (s *Server) session(request mcp.CallToolRequest) (*session.Session, error) {
	id, err := request.RequireString("sessionId")
	if err != nil {
		return nil, errors.MissingParameter("sessionId", "Call inspector_connect first, or inspector_list_sessions to find open sessions.")
	}
	return s.sessions.Get(id)
}

func requireRef(request mcp.CallToolRequest, name string) (inspector.RemoteHandle, error) {
	ref, err := request.RequireString(name)
	if err != nil || ref == "" {
		return "", errors.MissingParameter(name, "Use a ref returned by inspector_tree or a related tool.")
	}
	return inspector.RemoteHandle(ref), nil
}

func treeTypeParam(request mcp.CallToolRequest) (inspector.TreeType, error) {
	switch t := types.TreeType(request.GetString("tree", string(types.TreeWidget))); t {
	case types.TreeWidget:
		return inspector.WidgetTree, nil
	case types.TreeRender:
		return inspector.RenderTree, nil
	default:
		return 0, errors.InvalidParameter("tree", t, "'widget' or 'render'")
	}
}

// locationParam reads file/line/column. It returns nil when no file is given.
func locationParam(request mcp.CallToolRequest) (*inspector.Location, error) {
	file := request.GetString("file", "")
	if file == "" {
		return nil, nil
	}
	line := request.GetInt("line", -1)
	column := request.GetInt("column", -1)
	if line < 1 || column < 1 {
		return nil, errors.InvalidParameter("line/column", fmt.Sprintf("%d:%d", line, column), "1-based line and column of a widget constructor call")
	}
	return &inspector.Location{Path: file, Line: line, Column: column}, nil
}

// Session Management Handlers

func (s *Server) handleConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := types.ConnectRequest{
		Transport:    types.TransportKind(request.GetString("transport", "")),
		VMServiceURI: request.GetString("vmServiceUri", ""),
		ProjectDir:   request.GetString("projectDir", ""),
		Program:      request.GetString("program", ""),
		DeviceID:     request.GetString("deviceId", ""),
		ToolArgs:     request.GetStringSlice("toolArgs", nil),
	}
	switch req.Transport {
	case "", types.TransportVMService, types.TransportDAP:
	default:
		return errorResult(errors.InvalidParameter("transport", req.Transport, "'vmservice' or 'dap'"))
	}

	if name := request.GetString("launchConfig", ""); name != "" {
		resolved, err := s.resolveLaunchConfig(request, name, req.ProjectDir)
		if err != nil {
			return errorResult(err)
		}
		if req.DeviceID != "" {
			resolved.DeviceID = req.DeviceID
		}
		resolved.ToolArgs = append(resolved.ToolArgs, req.ToolArgs...)
		req = resolved
	}

	// Launching builds the app, so the connect call is not bound by the
	// request timeout.
	sess, err := s.sessions.Connect(ctx, req)
	if err != nil {
		return errorResult(err)
	}

	result := map[string]interface{}{"session": sess.GetInfo()}
	if sess.Inspector.HasServiceMethod("isWidgetTreeReady") {
		rctx, cancel := s.requestContext(ctx)
		defer cancel()
		ready, err := sess.Inspector.IsWidgetTreeReady(rctx)
		if err != nil {
			s.logger.Warn("isWidgetTreeReady failed", "session", sess.ID, "error", err)
		} else {
			result["widgetTreeReady"] = ready
		}
	}
	return jsonResult(result)
}

func (s *Server) resolveLaunchConfig(request mcp.CallToolRequest, name, projectDir string) (types.ConnectRequest, error) {
	workspace := request.GetString("workspace", projectDir)
	var inputs map[string]string
	if raw := request.GetString("inputValues", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
			return types.ConnectRequest{}, errors.InvalidParameter("inputValues", raw, "a JSON object of strings")
		}
	}
	req, err := launchconfig.Load(workspace, name, inputs)
	if err != nil {
		return types.ConnectRequest{}, errors.InvalidParameter("launchConfig", name, err.Error())
	}
	return req, nil
}

func (s *Server) handleDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("sessionId")
	if err != nil {
		return errorResult(errors.MissingParameter("sessionId", "The session to close."))
	}
	if err := s.sessions.Disconnect(id); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]interface{}{"sessionId": id, "status": types.SessionStatusClosed})
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.sessions.List()
	infos := make([]types.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.GetInfo())
	}

	result := map[string]interface{}{
		"sessions": infos,
		"mode":     s.config.Mode,
	}
	if info := s.checker.GetUpdateInfo(); info != nil {
		if msg := info.UpdateMessage(); msg != "" {
			result["update"] = msg
		}
	}
	return jsonResult(result)
}

func (s *Server) handleLaunchConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, err := request.RequireString("workspace")
	if err != nil {
		return errorResult(errors.MissingParameter("workspace", "A directory inside the Flutter project."))
	}
	lj, path, err := launchconfig.LoadAndDiscover(workspace)
	if err != nil {
		return errorResult(errors.InvalidParameter("workspace", workspace, err.Error()))
	}
	return jsonResult(map[string]interface{}{
		"path":           path,
		"configurations": launchconfig.ListConfigurations(lj),
	})
}

// Tree Handlers

func (s *Server) handleTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	treeType, err := treeTypeParam(request)
	if err != nil {
		return errorResult(err)
	}
	depth := request.GetInt("depth", defaultTreeDepth)
	if depth < 0 {
		return errorResult(errors.InvalidParameter("depth", depth, "a non-negative number"))
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	if sess.Inspector.HasServiceMethod("isWidgetTreeReady") {
		ready, err := sess.Inspector.IsWidgetTreeReady(ctx)
		if err != nil {
			return errorResult(err)
		}
		if !ready {
			return mcp.NewToolResultText("The widget tree is not ready yet; the app has not rendered its first frame. Retry after a frame event."), nil
		}
	}

	name := request.GetString("group", "")
	group := sess.RenewGroup(name)
	root, err := group.GetRoot(ctx, treeType)
	if err != nil {
		return errorResult(err)
	}
	if root == nil {
		if group.IsDisposed() {
			return groupDisposed(name)
		}
		return mcp.NewToolResultText("The app has no root yet; it may not have rendered its first frame. Retry after a frame event."), nil
	}

	view, err := TreeView(ctx, root, depth)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(view)
}

func (s *Server) handleChildren(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	ref, err := requireRef(request, "diagnosticRef")
	if err != nil {
		return errorResult(err)
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	children, err := sess.Group(request.GetString("group", "")).GetChildren(ctx, ref, request.GetBool("summary", true), nil)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(nodesView(children))
}

func (s *Server) handleProperties(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	ref, err := requireRef(request, "diagnosticRef")
	if err != nil {
		return errorResult(err)
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	properties, err := sess.Group(request.GetString("group", "")).GetProperties(ctx, ref)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(nodesView(properties))
}

func (s *Server) handleDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	ref, err := requireRef(request, "diagnosticRef")
	if err != nil {
		return errorResult(err)
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	name := request.GetString("group", "")
	node, err := sess.Group(name).GetDetailsSubtree(ctx, &inspector.DiagnosticsNode{DiagnosticRef: ref})
	if err != nil {
		return errorResult(err)
	}
	if node == nil {
		return groupDisposed(name)
	}

	view := nodeView(node)
	result := map[string]interface{}{"node": view}
	if node.RenderObject != nil {
		result["renderObject"] = nodeView(node.RenderObject)
	}
	return jsonResult(result)
}

func (s *Server) handleParentChain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	ref, err := requireRef(request, "valueRef")
	if err != nil {
		return errorResult(err)
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	path, err := sess.Group(request.GetString("group", "")).GetParentChain(ctx, &inspector.DiagnosticsNode{ValueRef: ref})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(pathView(path))
}

// Selection Handlers

func (s *Server) handleSelection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	treeType, err := treeTypeParam(request)
	if err != nil {
		return errorResult(err)
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	group := sess.Group(request.GetString("group", ""))
	selection, err := group.GetSelection(ctx, nil, treeType, request.GetBool("localOnly", true))
	if err != nil {
		return errorResult(err)
	}
	if selection == nil {
		return jsonResult(map[string]interface{}{"selection": nil})
	}
	return jsonResult(map[string]interface{}{"selection": nodeView(selection)})
}

func (s *Server) handleSelect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	loc, err := locationParam(request)
	if err != nil {
		return errorResult(err)
	}
	ref := inspector.RemoteHandle(request.GetString("valueRef", ""))
	if ref.IsZero() && loc == nil {
		return errorResult(errors.MissingParameter("valueRef", "Pass valueRef, or file, line and column of a widget constructor call."))
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	group := sess.Group(request.GetString("group", ""))
	var changed bool
	if !ref.IsZero() {
		changed, err = group.SetSelectionByRef(ctx, ref, false, false)
	} else {
		if !sess.Inspector.UseExtensionAPI() {
			return errorResult(errors.Wrap(errors.CodeUnsupported, "selecting by location needs a running isolate", "Resume the app and retry.", nil))
		}
		changed, err = group.SetSelectionByLocation(ctx, loc, false, false)
	}
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]interface{}{"changed": changed})
}

// Layout Handlers

func (s *Server) requireScreenMirror(sess *session.Session, feature string) error {
	if !sess.Inspector.IsHotUIScreenMirrorSupported() {
		return errors.Unsupported(feature, "getBoundingBoxes")
	}
	return nil
}

func (s *Server) handleElementsAtLocation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	loc, err := locationParam(request)
	if err != nil {
		return errorResult(err)
	}
	if loc == nil {
		return errorResult(errors.MissingParameter("file", "The source file of the widget constructor call."))
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	elements, err := sess.Group(request.GetString("group", "")).GetElementsAtLocation(ctx, loc, request.GetInt("count", defaultCount))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(nodesView(elements))
}

// rootNode returns the node named by the rootRef parameter, or the element
// screenshots of the whole app are taken of.
func rootNode(ctx context.Context, group *inspector.ObjectGroup, request mcp.CallToolRequest) (*inspector.DiagnosticsNode, error) {
	if ref := request.GetString("rootRef", ""); ref != "" {
		return &inspector.DiagnosticsNode{ValueRef: inspector.RemoteHandle(ref)}, nil
	}
	return group.GetElementForScreenshot(ctx)
}

func (s *Server) handleHitTest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	if err := s.requireScreenMirror(sess, "hit testing"); err != nil {
		return errorResult(err)
	}
	dx, err := request.RequireFloat("dx")
	if err != nil {
		return errorResult(errors.MissingParameter("dx", "Horizontal offset in logical pixels."))
	}
	dy, err := request.RequireFloat("dy")
	if err != nil {
		return errorResult(errors.MissingParameter("dy", "Vertical offset in logical pixels."))
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	name := request.GetString("group", "")
	group := sess.Group(name)
	root, err := rootNode(ctx, group, request)
	if err != nil {
		return errorResult(err)
	}
	if root == nil {
		return groupDisposed(name)
	}

	hits, err := group.HitTest(ctx, root, dx, dy, inspector.HitTestOptions{
		File:      request.GetString("file", ""),
		StartLine: request.GetInt("startLine", -1),
		EndLine:   request.GetInt("endLine", -1),
	})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(nodesView(hits))
}

func (s *Server) handleBoundingBoxes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	if err := s.requireScreenMirror(sess, "bounding boxes"); err != nil {
		return errorResult(err)
	}
	target, err := requireRef(request, "targetRef")
	if err != nil {
		return errorResult(err)
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	name := request.GetString("group", "")
	group := sess.Group(name)
	root, err := rootNode(ctx, group, request)
	if err != nil {
		return errorResult(err)
	}
	if root == nil {
		return groupDisposed(name)
	}

	boxes, err := group.GetBoundingBoxes(ctx, root, &inspector.DiagnosticsNode{ValueRef: target})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(nodesView(boxes))
}

func (s *Server) screenshotSize(request mcp.CallToolRequest) inspector.ScreenshotSize {
	defaults := s.config.Screenshot
	return inspector.ScreenshotSize{
		Width:         request.GetInt("width", defaults.Width),
		Height:        request.GetInt("height", defaults.Height),
		MaxPixelRatio: request.GetFloat("maxPixelRatio", defaults.MaxPixelRatio),
	}
}

func (s *Server) handleScreenshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	if !sess.Inspector.HasServiceMethod("screenshot") {
		return errorResult(errors.Unsupported("screenshots", "screenshot"))
	}
	loc, err := locationParam(request)
	if err != nil {
		return errorResult(err)
	}
	size := s.screenshotSize(request)
	if size.Width <= 0 || size.Height <= 0 || size.MaxPixelRatio <= 0 {
		return errorResult(errors.InvalidParameter("width/height/maxPixelRatio", fmt.Sprintf("%dx%d@%g", size.Width, size.Height, size.MaxPixelRatio), "positive numbers"))
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	name := request.GetString("group", "")
	group := sess.Group(name)

	var (
		shot *inspector.Screenshot
		info types.ScreenshotInfo
	)
	if loc != nil {
		if err := s.requireScreenMirror(sess, "location screenshots"); err != nil {
			return errorResult(err)
		}
		interactive, err := group.GetScreenshotAtLocation(ctx, loc, request.GetInt("count", defaultCount), size)
		if err != nil {
			return errorResult(err)
		}
		if interactive == nil || interactive.Screenshot == nil {
			return mcp.NewToolResultText("Nothing created at that location is on screen."), nil
		}
		shot = interactive.Screenshot
		info = screenshotView(shot)
		info.Boxes = nodesView(interactive.Boxes)
		info.Elements = nodesView(interactive.Elements)
	} else {
		ref := inspector.RemoteHandle(request.GetString("valueRef", ""))
		if ref.IsZero() {
			root, err := group.GetElementForScreenshot(ctx)
			if err != nil {
				return errorResult(err)
			}
			if root == nil {
				return groupDisposed(name)
			}
			ref = root.ValueRef
		}
		shot, err = group.GetScreenshot(ctx, ref, size)
		if err != nil {
			return errorResult(err)
		}
		if shot == nil {
			return mcp.NewToolResultText("The object is not rendered, so there is nothing to capture."), nil
		}
		info = screenshotView(shot)
	}

	text, err := json.Marshal(info)
	if err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultImage(string(text), base64.StdEncoding.EncodeToString(shot.Encoded), "image/"+shot.Format), nil
}

// Object Handlers

func (s *Server) handleObjectProperties(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	ref, err := requireRef(request, "valueRef")
	if err != nil {
		return errorResult(err)
	}
	names := request.GetStringSlice("names", nil)
	if len(names) == 0 {
		return errorResult(errors.MissingParameter("names", "Getter names to evaluate."))
	}
	for _, name := range names {
		if !isIdentifier(name) {
			return errorResult(errors.InvalidParameter("names", name, "Dart identifiers"))
		}
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	values, err := sess.Group(request.GetString("group", "")).GetObjectProperties(ctx, ref, names)
	if err != nil {
		return errorResult(err)
	}
	result := make(map[string]*instanceView, len(values))
	for name, v := range values {
		result[name] = refView(v)
	}
	return jsonResult(result)
}

// isIdentifier reports whether name can be used as a getter name.
func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func (s *Server) handleEnumValues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	ref, err := requireRef(request, "valueRef")
	if err != nil {
		return errorResult(err)
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	values, err := sess.Group(request.GetString("group", "")).GetEnumPropertyValues(ctx, ref)
	if err != nil {
		return errorResult(err)
	}
	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, v.Name)
	}
	return jsonResult(map[string]interface{}{"values": names})
}

func (s *Server) handlePropertyLocation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	ref, err := requireRef(request, "valueRef")
	if err != nil {
		return errorResult(err)
	}
	property, err := request.RequireString("property")
	if err != nil {
		return errorResult(errors.MissingParameter("property", "The getter to locate."))
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	group := sess.Group(request.GetString("group", ""))
	object, err := group.ToObject(ctx, ref)
	if err != nil {
		return errorResult(err)
	}
	loc, err := group.GetPropertyLocation(ctx, object, property)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]interface{}{"location": locationView(loc)})
}

// Housekeeping Handlers

func (s *Server) handleEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	events, dropped := sess.Events.Drain()
	result := map[string]interface{}{"events": events}
	if dropped > 0 {
		result["dropped"] = dropped
	}
	return jsonResult(result)
}

func (s *Server) handleDisposeGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	name, err := request.RequireString("group")
	if err != nil {
		return errorResult(errors.MissingParameter("group", "The group to dispose."))
	}
	return jsonResult(map[string]interface{}{"group": name, "disposed": sess.DisposeGroup(name)})
}

func (s *Server) handleSetPubRoots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	roots := request.GetStringSlice("roots", nil)
	if len(roots) == 0 {
		return errorResult(errors.MissingParameter("roots", "Directories holding the project's code."))
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	if err := sess.Inspector.SetPubRootDirectories(ctx, roots); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]interface{}{"roots": roots})
}

func (s *Server) handleForceRefresh(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	if err := sess.Inspector.ForceRefresh(ctx); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]interface{}{"refreshed": true})
}

// Mutation Handlers

func (s *Server) handleSetColor(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanMutate() {
		return errorResult(errors.PermissionDenied("mutate", string(s.config.Mode)))
	}
	sess, err := s.session(request)
	if err != nil {
		return errorResult(err)
	}
	ref, err := requireRef(request, "valueRef")
	if err != nil {
		return errorResult(err)
	}
	raw, err := request.RequireString("color")
	if err != nil {
		return errorResult(errors.MissingParameter("color", "#RRGGBB or #AARRGGBB."))
	}
	c, err := parseColor(raw)
	if err != nil {
		return errorResult(errors.InvalidParameter("color", raw, "#RRGGBB or #AARRGGBB"))
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	changed, err := sess.Group(request.GetString("group", "")).SetColorProperty(ctx, &inspector.DiagnosticsNode{ValueRef: ref}, c)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]interface{}{"changed": changed})
}

// parseColor parses #RRGGBB or #AARRGGBB.
func parseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 6 {
		hex = "ff" + hex
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("color %q has %d hex digits", s, len(hex))
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, err
	}
	return color.NRGBA{A: uint8(v >> 24), R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}
