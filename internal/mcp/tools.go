package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the inspector tool set
func (s *Server) registerTools() {
	// Session management
	s.registerConnect()
	s.registerDisconnect()
	s.registerListSessions()
	s.registerLaunchConfigs()

	// Trees
	s.registerTree()
	s.registerChildren()
	s.registerProperties()
	s.registerDetails()
	s.registerParentChain()

	// Selection
	s.registerSelection()
	s.registerSelect()

	// Layout and rendering
	s.registerElementsAtLocation()
	s.registerHitTest()
	s.registerBoundingBoxes()
	s.registerScreenshot()

	// VM objects
	s.registerObjectProperties()
	s.registerEnumValues()
	s.registerPropertyLocation()

	// Housekeeping
	s.registerEvents()
	s.registerDisposeGroup()
	s.registerSetPubRoots()
	s.registerForceRefresh()

	// Mutation (full mode only)
	if s.config.CanMutate() {
		s.registerSetColor()
	}
}

func sessionIDParam() mcp.ToolOption {
	return mcp.WithString("sessionId",
		mcp.Required(),
		mcp.Description("Session ID returned by inspector_connect"),
	)
}

func groupParam() mcp.ToolOption {
	return mcp.WithString("group",
		mcp.Description("Object group holding the returned refs (default: mcp). Refs stay valid until the group is renewed or disposed."),
	)
}

func valueRefParam(desc string) mcp.ToolOption {
	return mcp.WithString("valueRef", mcp.Required(), mcp.Description(desc))
}

func locationParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("file", mcp.Description("Absolute path of the source file")),
		mcp.WithNumber("line", mcp.Description("1-based line of the widget constructor call")),
		mcp.WithNumber("column", mcp.Description("1-based column of the widget constructor call")),
	}
}

func newTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, opts...)
}

// Session Management Tools

func (s *Server) registerConnect() {
	tool := newTool("inspector_connect",
		mcp.WithDescription("Connect to a running Flutter app in debug mode, or launch one through 'flutter debug-adapter'. Returns the sessionId needed by every other tool."),
		mcp.WithString("transport",
			mcp.Description("'vmservice' to connect to a VM service URI directly, 'dap' to go through the Flutter debug adapter. Defaults to the server configuration."),
			mcp.Enum("vmservice", "dap"),
		),
		mcp.WithString("vmServiceUri",
			mcp.Description("ws:// URI of the app's VM service, as printed by 'flutter run'"),
		),
		mcp.WithString("projectDir",
			mcp.Description("Flutter project to launch (dap transport)"),
		),
		mcp.WithString("program",
			mcp.Description("Entry point relative to projectDir (default: lib/main.dart)"),
		),
		mcp.WithString("deviceId",
			mcp.Description("Device to launch on, as listed by 'flutter devices'"),
		),
		mcp.WithArray("toolArgs",
			mcp.Description("Extra arguments for 'flutter run'"),
			mcp.WithStringItems(),
		),
		mcp.WithString("launchConfig",
			mcp.Description("Name of a Dart configuration in .vscode/launch.json to connect with"),
		),
		mcp.WithString("workspace",
			mcp.Description("Directory to discover launch.json from (default: projectDir)"),
		),
		mcp.WithString("inputValues",
			mcp.Description("JSON object with values for ${input:} variables in launch.json"),
		),
	)
	s.addTool(tool, s.handleConnect)
}

func (s *Server) registerDisconnect() {
	tool := newTool("inspector_disconnect",
		mcp.WithDescription("Close a session. Its object groups are disposed; apps launched by the session are stopped."),
		sessionIDParam(),
	)
	s.addTool(tool, s.handleDisconnect)
}

func (s *Server) registerListSessions() {
	tool := newTool("inspector_list_sessions",
		mcp.WithDescription("List open sessions with their status, isolate and inspector capabilities."),
	)
	s.addTool(tool, s.handleListSessions)
}

func (s *Server) registerLaunchConfigs() {
	tool := newTool("inspector_launch_configs",
		mcp.WithDescription("List the Dart configurations of the .vscode/launch.json governing a directory."),
		mcp.WithString("workspace",
			mcp.Required(),
			mcp.Description("Directory to discover launch.json from"),
		),
	)
	s.addTool(tool, s.handleLaunchConfigs)
}

// Tree Tools

func (s *Server) registerTree() {
	tool := newTool("inspector_tree",
		mcp.WithDescription("Fetch the widget or render tree from the root. Renews the object group, so refs from earlier calls in the same group become invalid."),
		sessionIDParam(),
		mcp.WithString("tree",
			mcp.Description("'widget' (default, summary tree of user widgets when supported) or 'render'"),
			mcp.Enum("widget", "render"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Levels of children to expand (default: 3)"),
		),
		groupParam(),
	)
	s.addTool(tool, s.handleTree)
}

func (s *Server) registerChildren() {
	tool := newTool("inspector_children",
		mcp.WithDescription("Fetch the children of a node."),
		sessionIDParam(),
		mcp.WithString("diagnosticRef", mcp.Required(), mcp.Description("diagnosticRef of the parent node")),
		mcp.WithBoolean("summary", mcp.Description("Fetch summary tree children (default: true)")),
		groupParam(),
	)
	s.addTool(tool, s.handleChildren)
}

func (s *Server) registerProperties() {
	tool := newTool("inspector_properties",
		mcp.WithDescription("Fetch the diagnostic properties of a node."),
		sessionIDParam(),
		mcp.WithString("diagnosticRef", mcp.Required(), mcp.Description("diagnosticRef of the node")),
		groupParam(),
	)
	s.addTool(tool, s.handleProperties)
}

func (s *Server) registerDetails() {
	tool := newTool("inspector_details",
		mcp.WithDescription("Fetch a node with its properties and a few levels of children inlined, including the render object of widgets."),
		sessionIDParam(),
		mcp.WithString("diagnosticRef", mcp.Required(), mcp.Description("diagnosticRef of the node")),
		groupParam(),
	)
	s.addTool(tool, s.handleDetails)
}

func (s *Server) registerParentChain() {
	tool := newTool("inspector_parent_chain",
		mcp.WithDescription("Fetch the path from the root to a node, with the siblings at each step."),
		sessionIDParam(),
		valueRefParam("valueRef of the node"),
		groupParam(),
	)
	s.addTool(tool, s.handleParentChain)
}

// Selection Tools

func (s *Server) registerSelection() {
	tool := newTool("inspector_selection",
		mcp.WithDescription("Fetch the widget or render object currently selected in the app."),
		sessionIDParam(),
		mcp.WithString("tree", mcp.Description("'widget' (default) or 'render'"), mcp.Enum("widget", "render")),
		mcp.WithBoolean("localOnly", mcp.Description("Return the nearest widget created by the project when the app supports it (default: true)")),
		groupParam(),
	)
	s.addTool(tool, s.handleSelection)
}

func (s *Server) registerSelect() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Select a widget in the app, by ref or by the source location that created it."),
		sessionIDParam(),
		mcp.WithString("valueRef", mcp.Description("valueRef of the object to select")),
		groupParam(),
	}
	tool := newTool("inspector_select", append(opts, locationParams()...)...)
	s.addTool(tool, s.handleSelect)
}

// Layout Tools

func (s *Server) registerElementsAtLocation() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List the elements created by the widget constructor call at a source location."),
		sessionIDParam(),
		mcp.WithNumber("count", mcp.Description("Maximum number of elements (default: 10)")),
		groupParam(),
	}
	tool := newTool("inspector_elements_at_location", append(opts, locationParams()...)...)
	s.addTool(tool, s.handleElementsAtLocation)
}

func (s *Server) registerHitTest() {
	tool := newTool("inspector_hit_test",
		mcp.WithDescription("List the widgets under a point, in the coordinate space of a root object."),
		sessionIDParam(),
		mcp.WithNumber("dx", mcp.Required(), mcp.Description("Horizontal offset in logical pixels")),
		mcp.WithNumber("dy", mcp.Required(), mcp.Description("Vertical offset in logical pixels")),
		mcp.WithString("rootRef", mcp.Description("valueRef of the root (default: the screenshot element)")),
		mcp.WithString("file", mcp.Description("Only return widgets created in this file")),
		mcp.WithNumber("startLine", mcp.Description("First line of the file range")),
		mcp.WithNumber("endLine", mcp.Description("Last line of the file range")),
		groupParam(),
	)
	s.addTool(tool, s.handleHitTest)
}

func (s *Server) registerBoundingBoxes() {
	tool := newTool("inspector_bounding_boxes",
		mcp.WithDescription("Fetch the bounding boxes of a target relative to a root."),
		sessionIDParam(),
		mcp.WithString("targetRef", mcp.Required(), mcp.Description("valueRef of the target")),
		mcp.WithString("rootRef", mcp.Description("valueRef of the root (default: the screenshot element)")),
		groupParam(),
	)
	s.addTool(tool, s.handleBoundingBoxes)
}

func (s *Server) registerScreenshot() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Render a screenshot of an object, of the whole app, or of the widgets created at a source location together with their bounding boxes."),
		sessionIDParam(),
		mcp.WithString("valueRef", mcp.Description("valueRef of the object to render (default: the whole app)")),
		mcp.WithNumber("width", mcp.Description("Maximum width in pixels")),
		mcp.WithNumber("height", mcp.Description("Maximum height in pixels")),
		mcp.WithNumber("maxPixelRatio", mcp.Description("Maximum device pixel ratio")),
		mcp.WithNumber("count", mcp.Description("Maximum widgets for a location screenshot (default: 10)")),
		groupParam(),
	}
	tool := newTool("inspector_screenshot", append(opts, locationParams()...)...)
	s.addTool(tool, s.handleScreenshot)
}

// Object Tools

func (s *Server) registerObjectProperties() {
	tool := newTool("inspector_object_properties",
		mcp.WithDescription("Evaluate getters on the object behind a ref."),
		sessionIDParam(),
		valueRefParam("valueRef of the object"),
		mcp.WithArray("names", mcp.Required(), mcp.Description("Getter names"), mcp.WithStringItems()),
		groupParam(),
	)
	s.addTool(tool, s.handleObjectProperties)
}

func (s *Server) registerEnumValues() {
	tool := newTool("inspector_enum_values",
		mcp.WithDescription("List the constants of the enum an object belongs to."),
		sessionIDParam(),
		valueRefParam("valueRef of an enum value"),
		groupParam(),
	)
	s.addTool(tool, s.handleEnumValues)
}

func (s *Server) registerPropertyLocation() {
	tool := newTool("inspector_property_location",
		mcp.WithDescription("Find where the getter of a property is declared on the class of an object."),
		sessionIDParam(),
		valueRefParam("valueRef of the object"),
		mcp.WithString("property", mcp.Required(), mcp.Description("Getter name")),
		groupParam(),
	)
	s.addTool(tool, s.handlePropertyLocation)
}

// Housekeeping Tools

func (s *Server) registerEvents() {
	tool := newTool("inspector_events",
		mcp.WithDescription("Return and clear the events recorded since the last call: selection changes, frames, navigation requests and forced refreshes."),
		sessionIDParam(),
	)
	s.addTool(tool, s.handleEvents)
}

func (s *Server) registerDisposeGroup() {
	tool := newTool("inspector_dispose_group",
		mcp.WithDescription("Dispose an object group, releasing every ref fetched into it."),
		sessionIDParam(),
		mcp.WithString("group", mcp.Required(), mcp.Description("Group name")),
	)
	s.addTool(tool, s.handleDisposeGroup)
}

func (s *Server) registerSetPubRoots() {
	tool := newTool("inspector_set_pub_roots",
		mcp.WithDescription("Set the directories holding the project's code, which decide what the summary tree shows."),
		sessionIDParam(),
		mcp.WithArray("roots", mcp.Required(), mcp.Description("Absolute directory paths"), mcp.WithStringItems()),
	)
	s.addTool(tool, s.handleSetPubRoots)
}

func (s *Server) registerForceRefresh() {
	tool := newTool("inspector_force_refresh",
		mcp.WithDescription("Drop every object group of the session, as after a hot reload."),
		sessionIDParam(),
	)
	s.addTool(tool, s.handleForceRefresh)
}

// Mutation Tools

func (s *Server) registerSetColor() {
	tool := newTool("inspector_set_color",
		mcp.WithDescription("Recolor a Text or Container widget in the running app until the next rebuild."),
		sessionIDParam(),
		valueRefParam("valueRef of the element"),
		mcp.WithString("color", mcp.Required(), mcp.Description("#RRGGBB or #AARRGGBB")),
		groupParam(),
	)
	s.addTool(tool, s.handleSetColor)
}
