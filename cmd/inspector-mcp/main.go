package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ctagard/inspector-mcp/internal/config"
	"github.com/ctagard/inspector-mcp/internal/mcp"
)

type rootOptions struct {
	configPath string
	mode       modeFlag
	logLevel   string

	config *config.Config
	logger *slog.Logger
}

// modeFlag overrides the configured capability mode when set.
type modeFlag struct {
	value config.CapabilityMode
}

var _ pflag.Value = (*modeFlag)(nil)

func (m *modeFlag) String() string { return string(m.value) }

func (m *modeFlag) Set(s string) error {
	switch mode := config.CapabilityMode(strings.ToLower(s)); mode {
	case config.ModeReadOnly, config.ModeFull:
		m.value = mode
		return nil
	default:
		return fmt.Errorf("mode must be 'readonly' or 'full', got %q", s)
	}
}

func (m *modeFlag) Type() string { return "mode" }

func (r *rootOptions) prepare() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(r.logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	// stdout carries the MCP stream, so logs go to stderr.
	r.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(r.logger)

	cfg, err := config.LoadConfig(r.configPath)
	if err != nil {
		return err
	}
	if r.mode.value != "" {
		cfg.Mode = r.mode.value
	}
	r.config = cfg
	return nil
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "inspector-mcp",
		Short:         "MCP server for the Flutter widget inspector",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.prepare()
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("INSPECTOR_MCP_CONFIG"), "path to a JSON or YAML configuration file")
	rootCmd.PersistentFlags().Var(&opts.mode, "mode", "capability mode: 'readonly' or 'full' (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newTreeCmd(opts))
	rootCmd.AddCommand(newConfigsCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "inspector-mcp:", err)
		os.Exit(1)
	}
}

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio",
		Long: `Serve the inspector tools over MCP on stdin and stdout.

Add to your MCP client configuration:

    {
        "mcpServers": {
            "flutter-inspector": {
                "command": "inspector-mcp",
                "args": ["serve", "--mode", "readonly"]
            }
        }
    }`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			server := mcp.NewServer(root.config, root.logger)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				root.logger.Info("shutting down")
				server.Close()
				os.Exit(0)
			}()

			root.logger.Info("inspector-mcp server starting", "mode", root.config.Mode, "transport", root.config.Transport)
			err := server.ServeStdio()
			server.Close()
			return err
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
