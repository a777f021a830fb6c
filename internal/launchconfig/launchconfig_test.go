package launchconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctagard/inspector-mcp/pkg/types"
)

const testLaunchJSON = `{
	// Written by the Dart extension.
	"version": "0.2.0",
	"configurations": [
		{
			"name": "app",
			"type": "dart",
			"request": "launch",
			"program": "lib/main.dart",
			"deviceId": "${input:device}",
			"toolArgs": ["--dart-define", "HOME=${env:LAUNCH_TEST_HOME}"],
			"env": {"FLAVOR": "dev"},
			"console": "debugConsole",
		},
		{"name": "attach", "type": "dart", "request": "attach", "vmServiceUri": "ws://127.0.0.1:8181/ws"},
		{"name": "profile", "type": "dart", "request": "launch", "flutterMode": "profile"},
		{"name": "server", "type": "go", "request": "launch", "program": "main.go"},
	],
	"inputs": [
		{"id": "device", "type": "pickString", "options": ["chrome", "linux"], "default": "linux"},
	],
}`

func writeWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	vscode := filepath.Join(dir, VSCodeDirName)
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(vscode, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(vscode, LaunchJSONFileName), []byte(testLaunchJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadAndDiscover(t *testing.T) {
	dir := writeWorkspace(t)

	lj, path, err := LoadAndDiscover(filepath.Join(dir, "lib"))
	if err != nil {
		t.Fatalf("LoadAndDiscover: %v", err)
	}
	if GetWorkspaceFolder(path) != dir {
		t.Errorf("workspace = %q, want %q", GetWorkspaceFolder(path), dir)
	}
	if len(lj.Configurations) != 4 {
		t.Fatalf("configurations = %d", len(lj.Configurations))
	}
	if lj.Configurations[0].Extra["console"] != "debugConsole" {
		t.Errorf("extra = %v", lj.Configurations[0].Extra)
	}

	infos := ListConfigurations(lj)
	if len(infos) != 3 || infos[1].Name != "attach" || infos[1].Request != "attach" {
		t.Errorf("infos = %+v", infos)
	}

	if _, err := FindConfiguration(lj, "server"); err == nil {
		t.Error("non-dart configurations must be rejected")
	}
	if _, err := FindConfiguration(lj, "missing"); err == nil {
		t.Error("expected not found")
	}
}

func TestDiscover_NotFound(t *testing.T) {
	if _, err := Discover(t.TempDir()); err == nil {
		t.Error("expected an error without launch.json")
	}
}

func TestLoad_Launch(t *testing.T) {
	dir := writeWorkspace(t)
	t.Setenv("LAUNCH_TEST_HOME", "/home/test")

	req, err := Load(dir, "app", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if req.Transport != types.TransportDAP || req.ProjectDir != dir || req.Program != "lib/main.dart" {
		t.Errorf("req = %+v", req)
	}
	if req.DeviceID != "linux" {
		t.Errorf("deviceId = %q, want the input default", req.DeviceID)
	}
	if len(req.ToolArgs) != 2 || req.ToolArgs[1] != "HOME=/home/test" {
		t.Errorf("toolArgs = %v", req.ToolArgs)
	}
	if req.Env["FLAVOR"] != "dev" {
		t.Errorf("env = %v", req.Env)
	}

	req, err = Load(dir, "app", map[string]string{"device": "chrome"})
	if err != nil || req.DeviceID != "chrome" {
		t.Errorf("input override: %+v, %v", req, err)
	}
}

func TestLoad_Attach(t *testing.T) {
	dir := writeWorkspace(t)
	req, err := Load(dir, "attach", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if req.Transport != types.TransportVMService || req.VMServiceURI != "ws://127.0.0.1:8181/ws" {
		t.Errorf("req = %+v", req)
	}
}

func TestLoad_ProfileMode(t *testing.T) {
	dir := writeWorkspace(t)
	_, err := Load(dir, "profile", nil)
	if err == nil || !strings.Contains(err.Error(), "debug mode") {
		t.Errorf("err = %v", err)
	}
}

func TestResolveVariables(t *testing.T) {
	ctx := &ResolutionContext{
		WorkspaceFolder: "/work/app",
		EnvOverrides:    map[string]string{"FLAVOR": "prod"},
	}
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"${workspaceFolder}/lib", "/work/app/lib", false},
		{"${workspaceFolderBasename}", "app", false},
		{"--flavor=${env:FLAVOR}", "--flavor=prod", false},
		{"${input:missing}", "${input:missing}", true},
		{"${command:dart.pickDevice}", "${command:dart.pickDevice}", true},
		{"plain", "plain", false},
	}
	for _, tt := range tests {
		got, err := ResolveVariables(tt.in, ctx)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ResolveVariables(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestResolve_RelativeCwd(t *testing.T) {
	cfg := &Configuration{Type: DartType, Request: "launch", Name: "sub", Cwd: "packages/app"}
	req, err := Resolve(cfg, &ResolutionContext{WorkspaceFolder: "/work"})
	if err != nil {
		t.Fatal(err)
	}
	if req.ProjectDir != filepath.Join("/work", "packages/app") {
		t.Errorf("projectDir = %q", req.ProjectDir)
	}
}
