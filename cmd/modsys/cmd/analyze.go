package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modsys"
	"github.com/GoCodeAlone/modsys/feeders"
	"github.com/GoCodeAlone/modsys/graph"
)

// NewAnalyzeCommand creates the analyze command
func NewAnalyzeCommand() *cobra.Command {
	var (
		format string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <manifest>",
		Short: "Analyze the dependency graph of a manifest",
		Long: `Analyze loads a YAML, TOML or JSON manifest and reports the initialization
order, dependency depths, circular and missing dependencies and unused exports.

The command fails when the graph has cycles or missing dependencies, unless
--watch is given, in which case the report is printed again on every change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			err := analyzeManifest(cmd.OutOrStdout(), path, format)
			if !watch {
				return err
			}

			logger := loggerFromContext(cmd.Context())
			if err != nil {
				logger.Warn("Manifest has issues", "error", err)
			}
			logger.Info("Watching manifest", "path", path)
			return feeders.Watch(cmd.Context(), path, 0, func() {
				logger.Info("Manifest changed", "path", path)
				if err := analyzeManifest(cmd.OutOrStdout(), path, format); err != nil {
					logger.Warn("Manifest has issues", "error", err)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "report", "output format: report, json, dot, mermaid")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run the analysis whenever the manifest changes")

	return cmd
}

func analyzeManifest(w io.Writer, path, format string) error {
	m, err := modsys.LoadManifest(path)
	if err != nil {
		return err
	}
	result := m.Analyze()
	out, err := formatResult(result, format)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, out); err != nil {
		return err
	}
	return result.Err()
}

func formatResult(r *graph.Result, format string) (string, error) {
	switch format {
	case "", "report":
		return graph.Report(r), nil
	case "json":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case "dot":
		return graph.ToDOT(r), nil
	case "mermaid":
		return graph.ToMermaid(r), nil
	default:
		return "", fmt.Errorf("%w: %s", modsys.ErrUnsupportedFormatType, format)
	}
}
