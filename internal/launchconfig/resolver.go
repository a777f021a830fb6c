package launchconfig

import (
	"fmt"
	"path/filepath"

	"github.com/ctagard/inspector-mcp/pkg/types"
)

// Resolve turns a Dart configuration into a connect request. Launch
// configurations start the app through the debug adapter; attach
// configurations connect to the VM service they name.
func Resolve(cfg *Configuration, ctx *ResolutionContext) (types.ConnectRequest, error) {
	if ctx == nil {
		ctx = &ResolutionContext{}
	}
	if !cfg.IsDart() {
		return types.ConnectRequest{}, fmt.Errorf("configuration %q has type %q, not %q", cfg.Name, cfg.Type, DartType)
	}
	switch cfg.FlutterMode {
	case "", "debug":
	default:
		return types.ConnectRequest{}, fmt.Errorf("configuration %q runs in %s mode; the widget inspector needs debug mode", cfg.Name, cfg.FlutterMode)
	}

	cwd, err := ResolveVariables(cfg.Cwd, ctx)
	if err != nil {
		return types.ConnectRequest{}, err
	}
	switch {
	case cwd == "":
		cwd = ctx.WorkspaceFolder
	case !filepath.IsAbs(cwd) && ctx.WorkspaceFolder != "":
		cwd = filepath.Join(ctx.WorkspaceFolder, cwd)
	}

	if cfg.IsAttachRequest() {
		uri, err := ResolveVariables(cfg.VMServiceURI, ctx)
		if err != nil {
			return types.ConnectRequest{}, err
		}
		if uri == "" {
			return types.ConnectRequest{}, fmt.Errorf("attach configuration %q has no vmServiceUri", cfg.Name)
		}
		return types.ConnectRequest{
			Transport:    types.TransportVMService,
			VMServiceURI: uri,
			ProjectDir:   cwd,
		}, nil
	}

	req := types.ConnectRequest{Transport: types.TransportDAP, ProjectDir: cwd}
	if req.Program, err = ResolveVariables(cfg.Program, ctx); err != nil {
		return types.ConnectRequest{}, err
	}
	if req.DeviceID, err = ResolveVariables(cfg.DeviceID, ctx); err != nil {
		return types.ConnectRequest{}, err
	}
	if req.ToolArgs, err = ResolveStringSlice(cfg.ToolArgs, ctx); err != nil {
		return types.ConnectRequest{}, err
	}
	if req.Args, err = ResolveStringSlice(cfg.Args, ctx); err != nil {
		return types.ConnectRequest{}, err
	}
	if len(cfg.Env) > 0 {
		req.Env = make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			if req.Env[k], err = ResolveVariables(v, ctx); err != nil {
				return types.ConnectRequest{}, err
			}
		}
	}
	return req, nil
}

// Load discovers the launch.json governing dir, finds the configuration name
// in it and resolves it against the workspace.
func Load(dir, name string, inputs map[string]string) (types.ConnectRequest, error) {
	lj, path, err := LoadAndDiscover(dir)
	if err != nil {
		return types.ConnectRequest{}, err
	}
	cfg, err := FindConfiguration(lj, name)
	if err != nil {
		return types.ConnectRequest{}, err
	}
	return Resolve(cfg, &ResolutionContext{
		WorkspaceFolder: GetWorkspaceFolder(path),
		InputValues:     inputs,
		Inputs:          lj.Inputs,
	})
}
