package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctagard/inspector-mcp/internal/inspector"
	"github.com/ctagard/inspector-mcp/internal/launchconfig"
	"github.com/ctagard/inspector-mcp/internal/mcp"
	"github.com/ctagard/inspector-mcp/internal/session"
	"github.com/ctagard/inspector-mcp/pkg/types"
)

type treeFlags struct {
	uri          string
	transport    string
	project      string
	program      string
	device       string
	launchConfig string
	tree         string
	depth        int
	timeout      time.Duration
}

func (f *treeFlags) request() (types.ConnectRequest, error) {
	if f.launchConfig != "" {
		req, err := launchconfig.Load(f.project, f.launchConfig, nil)
		if err != nil {
			return types.ConnectRequest{}, err
		}
		if f.device != "" {
			req.DeviceID = f.device
		}
		return req, nil
	}
	if f.uri == "" && f.project == "" {
		return types.ConnectRequest{}, fmt.Errorf("one of --uri, --project or --launch-config is required")
	}
	return types.ConnectRequest{
		Transport:    types.TransportKind(f.transport),
		VMServiceURI: f.uri,
		ProjectDir:   f.project,
		Program:      f.program,
		DeviceID:     f.device,
	}, nil
}

func newTreeCmd(root *rootOptions) *cobra.Command {
	opts := &treeFlags{}
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the widget tree of a running app as JSON",
		Example: `  inspector-mcp tree --uri ws://127.0.0.1:8181/abc=/ws
  inspector-mcp tree --transport dap --project ./my_app --device linux`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			treeType := inspector.WidgetTree
			switch opts.tree {
			case string(types.TreeWidget):
			case string(types.TreeRender):
				treeType = inspector.RenderTree
			default:
				return fmt.Errorf("--tree must be 'widget' or 'render', got %q", opts.tree)
			}
			req, err := opts.request()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			manager := session.NewManager(root.config, session.WithLogger(root.logger))
			defer manager.Close()

			sess, err := manager.Connect(ctx, req)
			if err != nil {
				return err
			}

			if opts.timeout > 0 {
				var cancelTimeout context.CancelFunc
				ctx, cancelTimeout = context.WithTimeout(ctx, opts.timeout)
				defer cancelTimeout()
			}
			node, err := sess.Group("").GetRoot(ctx, treeType)
			if err != nil {
				return err
			}
			if node == nil {
				return fmt.Errorf("the app returned no tree")
			}
			view, err := mcp.TreeView(ctx, node, opts.depth)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
	cmd.Flags().StringVar(&opts.uri, "uri", "", "ws:// URI of the app's VM service")
	cmd.Flags().StringVar(&opts.transport, "transport", "", "'vmservice' or 'dap' (default from config)")
	cmd.Flags().StringVar(&opts.project, "project", "", "Flutter project directory to launch, or to find launch.json in")
	cmd.Flags().StringVar(&opts.program, "program", "", "entry point relative to --project")
	cmd.Flags().StringVarP(&opts.device, "device", "d", "", "device id to launch on")
	cmd.Flags().StringVar(&opts.launchConfig, "launch-config", "", "name of a Dart configuration in .vscode/launch.json")
	cmd.Flags().StringVar(&opts.tree, "tree", string(types.TreeWidget), "'widget' or 'render'")
	cmd.Flags().IntVar(&opts.depth, "depth", 3, "levels of children to expand")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "time limit for fetching the tree once connected")
	return cmd
}

func newConfigsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configs [dir]",
		Short: "List the Dart configurations of the launch.json governing a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			lj, path, err := launchconfig.LoadAndDiscover(dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			for _, c := range launchconfig.ListConfigurations(lj) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %-7s %s\n", c.Name, c.Request, c.Program)
			}
			return nil
		},
	}
}
