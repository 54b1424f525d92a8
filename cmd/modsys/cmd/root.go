// Package cmd implements the modsys command-line interface: analysing module
// manifests, rendering their dependency graphs and running them behind the
// admin API.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, set with -ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("modsys v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewRootCommand creates the root command for the modsys application
func NewRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "modsys",
		Short: "modsys - inspect and run module manifests",
		Long: `modsys loads a manifest describing modules, their priorities, dependencies
and exports. It reports on the dependency graph, renders it, and can bring the
modules up in dependency order behind an admin API.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(withLogger(ctx, newLogger(cmd.ErrOrStderr(), levelFor("info", verbose))))
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	cmd.AddCommand(NewAnalyzeCommand())
	cmd.AddCommand(NewRenderCommand())
	cmd.AddCommand(NewRunCommand(&verbose))
	cmd.AddCommand(NewSampleCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	})

	return cmd
}
