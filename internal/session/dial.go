package session

import (
	"context"
	"log/slog"

	"github.com/ctagard/inspector-mcp/internal/config"
	"github.com/ctagard/inspector-mcp/internal/dap"
	"github.com/ctagard/inspector-mcp/internal/errors"
	"github.com/ctagard/inspector-mcp/internal/vmservice"
	"github.com/ctagard/inspector-mcp/pkg/types"
)

const defaultProgram = "lib/main.dart"

// Target is an open connection to an app's VM service.
type Target struct {
	Conn vmservice.Conn
	// Adapter is set when the connection runs through 'flutter debug-adapter'.
	Adapter *dap.Process
	// Launched is true when the adapter started the app, which then ends
	// with the session.
	Launched bool
}

// PID returns the adapter's process id, or 0.
func (t *Target) PID() int {
	if t.Adapter == nil || t.Adapter.Cmd == nil || t.Adapter.Cmd.Process == nil {
		return 0
	}
	return t.Adapter.Cmd.Process.Pid
}

// Close closes the connection and stops the adapter.
func (t *Target) Close(ctx context.Context) error {
	if t.Adapter != nil {
		return t.Adapter.Stop(ctx, t.Launched)
	}
	return t.Conn.Close()
}

// Dialer opens the connection described by req.
type Dialer func(ctx context.Context, req types.ConnectRequest) (*Target, error)

// NewDialer returns the dialer for the configured transports. Adapter
// processes live until their session closes, not until ctx of the connect
// call ends, so they are bound to processCtx.
func NewDialer(processCtx context.Context, cfg *config.Config, logger *slog.Logger) Dialer {
	return func(ctx context.Context, req types.ConnectRequest) (*Target, error) {
		switch req.Transport {
		case types.TransportDAP:
			return dialAdapter(ctx, processCtx, cfg, req, logger)
		default:
			return dialVMService(ctx, req, logger)
		}
	}
}

func dialVMService(ctx context.Context, req types.ConnectRequest, logger *slog.Logger) (*Target, error) {
	if req.VMServiceURI == "" {
		return nil, errors.MissingParameter("vmServiceUri", "the ws:// URI of the app's VM service")
	}
	conn, err := vmservice.DialWebsocket(ctx, req.VMServiceURI, logger)
	if err != nil {
		return nil, errors.ConnectFailed(req.VMServiceURI, err)
	}
	return &Target{Conn: conn}, nil
}

func dialAdapter(ctx, processCtx context.Context, cfg *config.Config, req types.ConnectRequest, logger *slog.Logger) (*Target, error) {
	if !cfg.CanSpawn() {
		return nil, errors.PermissionDenied("spawn", string(cfg.Mode))
	}
	if req.VMServiceURI == "" && req.ProjectDir == "" {
		return nil, errors.MissingParameter("projectDir", "the Flutter project to launch, or vmServiceUri to attach")
	}

	proc, err := dap.Spawn(processCtx, cfg.FlutterPath, req.ProjectDir, logger)
	if err != nil {
		return nil, errors.ConnectFailed(cfg.FlutterPath+" debug-adapter", err)
	}
	target := &Target{Conn: proc.Client, Adapter: proc, Launched: req.VMServiceURI == ""}

	if err := startAdapter(ctx, proc.Client, req); err != nil {
		if stopErr := proc.Stop(context.Background(), target.Launched); stopErr != nil {
			logger.Warn("failed to stop debug adapter", "error", stopErr)
		}
		return nil, errors.ConnectFailed(targetLabel(req), err)
	}
	return target, nil
}

func startAdapter(ctx context.Context, client *dap.Client, req types.ConnectRequest) error {
	if _, err := client.Initialize(ctx, "inspector-mcp"); err != nil {
		return err
	}

	if req.VMServiceURI != "" {
		args := map[string]interface{}{"vmServiceUri": req.VMServiceURI}
		if req.ProjectDir != "" {
			args["cwd"] = req.ProjectDir
		}
		return client.Attach(ctx, args)
	}

	program := req.Program
	if program == "" {
		program = defaultProgram
	}
	var toolArgs []string
	if req.DeviceID != "" {
		toolArgs = append(toolArgs, "-d", req.DeviceID)
	}
	toolArgs = append(toolArgs, req.ToolArgs...)

	args := map[string]interface{}{
		"program": program,
		"cwd":     req.ProjectDir,
	}
	if len(toolArgs) > 0 {
		args["toolArgs"] = toolArgs
	}
	if len(req.Args) > 0 {
		args["args"] = req.Args
	}
	if len(req.Env) > 0 {
		args["env"] = req.Env
	}
	if err := client.Launch(ctx, args); err != nil {
		return err
	}
	_, err := client.WaitVMService(ctx)
	return err
}

// targetLabel names what a request connects to.
func targetLabel(req types.ConnectRequest) string {
	if req.VMServiceURI != "" {
		return req.VMServiceURI
	}
	return req.ProjectDir
}
