package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/inspector-mcp/internal/config"
	"github.com/ctagard/inspector-mcp/internal/session"
	"github.com/ctagard/inspector-mcp/internal/vmservice/vmservicetest"
	"github.com/ctagard/inspector-mcp/pkg/types"
)

const (
	rootNodeJSON = `{"description":"MyApp","valueId":"v1","objectId":"o1","hasChildren":true,"summaryTree":true,"createdByLocalProject":true,"creationLocation":{"file":"file:///app/lib/main.dart","line":5,"column":3}}`
	childrenJSON = `[{"description":"Scaffold","valueId":"v2","objectId":"o2","hasChildren":false,"summaryTree":true}]`
	elementJSON  = `{"description":"RenderView","valueId":"v0","objectId":"o0"}`
)

type testEnv struct {
	server *Server
	vm     *vmservicetest.VM
}

func newTestEnv(t *testing.T, mode config.CapabilityMode) *testEnv {
	t.Helper()
	vm := vmservicetest.New("getRootWidgetSummaryTree", "getSelectedSummaryWidget", "isWidgetTreeReady", "screenshot", "getBoundingBoxes")
	vm.OnExtension("isWidgetTreeReady", "true")
	vm.OnExtension("getRootWidgetSummaryTree", rootNodeJSON)
	vm.OnExtension("getChildrenSummaryTree", childrenJSON)
	vm.OnExtension("getElementForScreenshot", elementJSON)
	return newTestEnvWithVM(t, mode, vm)
}

// newTestEnvWithVM serves vm to every connect.
func newTestEnvWithVM(t *testing.T, mode config.CapabilityMode, vm *vmservicetest.VM) *testEnv {
	t.Helper()
	vm.OnExtension("disposeGroup", "null")

	cfg := config.DefaultConfig()
	cfg.Mode = mode
	cfg.SessionTimeout = 0
	dial := func(context.Context, types.ConnectRequest) (*session.Target, error) {
		return &session.Target{Conn: vm}, nil
	}
	s := NewServer(cfg, nil, session.WithDialer(dial))
	t.Cleanup(s.Close)
	return &testEnv{server: s, vm: vm}
}

func call(t *testing.T, handler server.ToolHandlerFunc, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	for _, c := range res.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	t.Fatalf("no text content in %+v", res.Content)
	return ""
}

func decodeResult(t *testing.T, res *mcp.CallToolResult, v interface{}) {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool failed: %s", resultText(t, res))
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), v); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
}

func (e *testEnv) connect(t *testing.T) string {
	t.Helper()
	var out struct {
		Session         types.SessionInfo `json:"session"`
		WidgetTreeReady bool              `json:"widgetTreeReady"`
	}
	decodeResult(t, call(t, e.server.handleConnect, map[string]interface{}{"vmServiceUri": "ws://127.0.0.1:1/ws"}), &out)
	if out.Session.SessionID == "" || !out.WidgetTreeReady {
		t.Fatalf("connect result = %+v", out)
	}
	return out.Session.SessionID
}

func TestServer_ToolsByMode(t *testing.T) {
	has := func(names []string, name string) bool {
		for _, n := range names {
			if n == name {
				return true
			}
		}
		return false
	}

	readonly := newTestEnv(t, config.ModeReadOnly).server.ToolNames()
	if !has(readonly, "inspector_tree") || has(readonly, "inspector_set_color") {
		t.Errorf("readonly tools = %v", readonly)
	}
	full := newTestEnv(t, config.ModeFull).server.ToolNames()
	if !has(full, "inspector_set_color") {
		t.Errorf("full tools = %v", full)
	}
}

func TestConnectAndList(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)

	var list struct {
		Sessions []types.SessionInfo `json:"sessions"`
	}
	decodeResult(t, call(t, env.server.handleListSessions, nil), &list)
	if len(list.Sessions) != 1 || list.Sessions[0].SessionID != id || list.Sessions[0].Status != types.SessionStatusRunning {
		t.Errorf("sessions = %+v", list.Sessions)
	}

	res := call(t, env.server.handleDisconnect, map[string]interface{}{"sessionId": id})
	if res.IsError || !env.vm.Closed() {
		t.Errorf("disconnect: %s", resultText(t, res))
	}
}

func TestConnect_InvalidTransport(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	res := call(t, env.server.handleConnect, map[string]interface{}{"transport": "usb"})
	if !res.IsError || !strings.Contains(resultText(t, res), "transport") {
		t.Errorf("result = %+v", res)
	}
}

func TestSessionParameter(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)

	res := call(t, env.server.handleTree, map[string]interface{}{})
	if !res.IsError || !strings.Contains(resultText(t, res), "sessionId") {
		t.Errorf("missing sessionId: %s", resultText(t, res))
	}
	res = call(t, env.server.handleTree, map[string]interface{}{"sessionId": "nope"})
	if !res.IsError || !strings.Contains(resultText(t, res), "nope") {
		t.Errorf("unknown session: %s", resultText(t, res))
	}
}

func TestTree(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)

	var root types.Node
	decodeResult(t, call(t, env.server.handleTree, map[string]interface{}{"sessionId": id, "depth": 2}), &root)
	if root.Description != "MyApp" || root.ValueRef != "v1" || root.DiagnosticRef != "o1" {
		t.Errorf("root = %+v", root)
	}
	if root.Location == nil || root.Location.File != "/app/lib/main.dart" || root.Location.Line != 5 {
		t.Errorf("location = %+v", root.Location)
	}
	if len(root.Children) != 1 || root.Children[0].Description != "Scaffold" {
		t.Fatalf("children = %+v", root.Children)
	}

	// A second fetch renews the group, releasing the first one's refs.
	call(t, env.server.handleTree, map[string]interface{}{"sessionId": id, "depth": 0})
	if n := len(env.vm.ExtensionCalls("disposeGroup")); n != 1 {
		t.Errorf("disposeGroup calls = %d", n)
	}
	if n := len(env.vm.ExtensionCalls("getChildrenSummaryTree")); n != 1 {
		t.Errorf("depth 0 fetched children: %d calls", n)
	}
}

func TestTree_NotReady(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)
	env.vm.OnExtension("isWidgetTreeReady", "false")

	res := call(t, env.server.handleTree, map[string]interface{}{"sessionId": id})
	if res.IsError || !strings.Contains(resultText(t, res), "not ready") {
		t.Errorf("result = %s", resultText(t, res))
	}
	if n := len(env.vm.ExtensionCalls("getRootWidgetSummaryTree")); n != 0 {
		t.Errorf("tree fetched before the first frame")
	}
}

func TestTree_NoRootYet(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)
	env.vm.OnExtension("getRootWidgetSummaryTree", "null")

	res := call(t, env.server.handleTree, map[string]interface{}{"sessionId": id})
	text := resultText(t, res)
	if res.IsError || !strings.Contains(text, "no root yet") || strings.Contains(text, "disposed") {
		t.Errorf("result = %s", text)
	}
}

func TestTree_InvalidType(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)
	res := call(t, env.server.handleTree, map[string]interface{}{"sessionId": id, "tree": "element"})
	if !res.IsError {
		t.Error("expected an error for an unknown tree type")
	}
}

func TestChildren(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)

	var children []types.Node
	decodeResult(t, call(t, env.server.handleChildren, map[string]interface{}{"sessionId": id, "diagnosticRef": "o1"}), &children)
	if len(children) != 1 || children[0].ValueRef != "v2" {
		t.Errorf("children = %+v", children)
	}

	res := call(t, env.server.handleChildren, map[string]interface{}{"sessionId": id})
	if !res.IsError {
		t.Error("expected an error without diagnosticRef")
	}
}

func TestScreenshot(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)

	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	env.vm.OnExtension("screenshot", `{"image":"`+encoded+`","transformedRect":{"left":0,"top":0,"width":4,"height":3}}`)

	res := call(t, env.server.handleScreenshot, map[string]interface{}{"sessionId": id})
	if res.IsError {
		t.Fatalf("screenshot failed: %s", resultText(t, res))
	}

	var info types.ScreenshotInfo
	if err := json.Unmarshal([]byte(resultText(t, res)), &info); err != nil {
		t.Fatal(err)
	}
	if info.Format != "png" || info.Width != 4 || info.Height != 3 {
		t.Errorf("info = %+v", info)
	}

	var found bool
	for _, c := range res.Content {
		if ic, ok := c.(mcp.ImageContent); ok {
			found = true
			if ic.MIMEType != "image/png" || ic.Data != encoded {
				t.Errorf("image content = %s, %d bytes", ic.MIMEType, len(ic.Data))
			}
		}
	}
	if !found {
		t.Error("no image content")
	}

	calls := env.vm.ExtensionCalls("screenshot")
	if len(calls) != 1 || calls[0]["id"] != "v0" {
		t.Errorf("screenshot calls = %v", calls)
	}
}

func TestScreenshot_Unsupported(t *testing.T) {
	vm := vmservicetest.New("getRootWidgetSummaryTree")
	cfg := config.DefaultConfig()
	cfg.SessionTimeout = 0
	s := NewServer(cfg, nil, session.WithDialer(func(context.Context, types.ConnectRequest) (*session.Target, error) {
		return &session.Target{Conn: vm}, nil
	}))
	defer s.Close()

	var out struct {
		Session types.SessionInfo `json:"session"`
	}
	decodeResult(t, call(t, s.handleConnect, map[string]interface{}{"vmServiceUri": "ws://x/ws"}), &out)

	res := call(t, s.handleScreenshot, map[string]interface{}{"sessionId": out.Session.SessionID})
	if !res.IsError || !strings.Contains(resultText(t, res), "not supported") {
		t.Errorf("result = %s", resultText(t, res))
	}
}

func TestEventsAndForceRefresh(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)
	call(t, env.server.handleTree, map[string]interface{}{"sessionId": id, "depth": 0})

	res := call(t, env.server.handleForceRefresh, map[string]interface{}{"sessionId": id})
	if res.IsError {
		t.Fatalf("force refresh: %s", resultText(t, res))
	}

	var out struct {
		Events []types.Event `json:"events"`
	}
	decodeResult(t, call(t, env.server.handleEvents, map[string]interface{}{"sessionId": id}), &out)
	if len(out.Events) != 1 || out.Events[0].Kind != types.EventForceRefresh {
		t.Errorf("events = %+v", out.Events)
	}
	if n := len(env.vm.ExtensionCalls("disposeGroup")); n != 1 {
		t.Errorf("groups not dropped on refresh: %d disposeGroup calls", n)
	}
}

func TestDisposeGroup(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)
	call(t, env.server.handleTree, map[string]interface{}{"sessionId": id, "group": "tree", "depth": 0})

	var out struct {
		Disposed bool `json:"disposed"`
	}
	decodeResult(t, call(t, env.server.handleDisposeGroup, map[string]interface{}{"sessionId": id, "group": "tree"}), &out)
	if !out.Disposed {
		t.Error("group not disposed")
	}
	decodeResult(t, call(t, env.server.handleDisposeGroup, map[string]interface{}{"sessionId": id, "group": "tree"}), &out)
	if out.Disposed {
		t.Error("second dispose should report no group")
	}
}

func TestSetColor_ReadOnly(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)
	res := call(t, env.server.handleSetColor, map[string]interface{}{"sessionId": id, "valueRef": "v2", "color": "#ff0000"})
	if !res.IsError || !strings.Contains(resultText(t, res), "not allowed") {
		t.Errorf("result = %s", resultText(t, res))
	}
}

func TestObjectProperties_RejectsExpressions(t *testing.T) {
	env := newTestEnv(t, config.ModeReadOnly)
	id := env.connect(t)
	res := call(t, env.server.handleObjectProperties, map[string]interface{}{
		"sessionId": id,
		"valueRef":  "v2",
		"names":     []interface{}{"size", "dispose()"},
	})
	if !res.IsError || !strings.Contains(resultText(t, res), "dispose()") {
		t.Errorf("result = %s", resultText(t, res))
	}
	if n := len(env.vm.Calls("evaluate")); n != 0 {
		t.Errorf("evaluate called %d times", n)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"#ff0000", color.NRGBA{R: 255, A: 255}, false},
		{"80112233", color.NRGBA{A: 0x80, R: 0x11, G: 0x22, B: 0x33}, false},
		{"#fff", color.NRGBA{}, true},
		{"#gg0000", color.NRGBA{}, true},
	}
	for _, tt := range tests {
		got, err := parseColor(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseColor(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestIsIdentifier(t *testing.T) {
	for name, want := range map[string]bool{
		"size":      true,
		"_private":  true,
		"value2":    true,
		"2value":    false,
		"a.b":       false,
		"dispose()": false,
		"":          false,
	} {
		if got := isIdentifier(name); got != want {
			t.Errorf("isIdentifier(%q) = %v", name, got)
		}
	}
}

func TestSelection_WithoutSummarySelection(t *testing.T) {
	vm := vmservicetest.New("getRootWidget", "getSelectedWidget")
	vm.OnExtension("getSelectedWidget", elementJSON)
	env := newTestEnvWithVM(t, config.ModeReadOnly, vm)

	var info struct {
		Session types.SessionInfo `json:"session"`
	}
	decodeResult(t, call(t, env.server.handleConnect, map[string]interface{}{"vmServiceUri": "ws://127.0.0.1:1/ws"}), &info)

	var out struct {
		Selection *types.Node `json:"selection"`
	}
	decodeResult(t, call(t, env.server.handleSelection, map[string]interface{}{"sessionId": info.Session.SessionID}), &out)
	if out.Selection == nil || out.Selection.Description != "RenderView" {
		t.Errorf("selection = %+v", out.Selection)
	}
	if n := len(vm.ExtensionCalls("getSelectedSummaryWidget")); n != 0 {
		t.Errorf("getSelectedSummaryWidget called %d times", n)
	}
}
