package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/inspector-mcp/internal/version"
)

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "inspector-mcp version %s\n", version.GetVersion())
			if !check {
				return nil
			}

			info := version.NewChecker().CheckForUpdates(cmd.Context())
			switch {
			case info.Error != "":
				return fmt.Errorf("update check failed: %s", info.Error)
			case info.UpdateAvailable:
				fmt.Fprintln(out, info.UpdateMessage())
			default:
				fmt.Fprintln(out, "up to date")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}
