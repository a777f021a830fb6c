package main

import (
	"testing"

	"github.com/ctagard/inspector-mcp/internal/config"
	"github.com/ctagard/inspector-mcp/pkg/types"
)

func TestModeFlag(t *testing.T) {
	var m modeFlag
	if err := m.Set("FULL"); err != nil || m.value != config.ModeFull {
		t.Errorf("Set(FULL) = %v, value %q", err, m.value)
	}
	if err := m.Set("admin"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
	if m.String() != "full" {
		t.Errorf("String() = %q", m.String())
	}
}

func TestRootOptions_Prepare(t *testing.T) {
	opts := &rootOptions{logLevel: "debug"}
	if err := opts.mode.Set("full"); err != nil {
		t.Fatal(err)
	}
	if err := opts.prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if opts.config.Mode != config.ModeFull || opts.logger == nil {
		t.Errorf("config = %+v", opts.config)
	}

	opts = &rootOptions{logLevel: "loud"}
	if err := opts.prepare(); err == nil {
		t.Error("expected an error for an unknown log level")
	}
}

func TestTreeFlags_Request(t *testing.T) {
	f := &treeFlags{}
	if _, err := f.request(); err == nil {
		t.Error("expected an error without a target")
	}

	f = &treeFlags{transport: "dap", project: "/work/app", device: "linux"}
	req, err := f.request()
	if err != nil {
		t.Fatal(err)
	}
	if req.Transport != types.TransportDAP || req.ProjectDir != "/work/app" || req.DeviceID != "linux" {
		t.Errorf("req = %+v", req)
	}
}
