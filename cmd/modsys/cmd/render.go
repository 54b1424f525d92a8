package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modsys"
	"github.com/GoCodeAlone/modsys/graph"
)

// NewRenderCommand creates the render command
func NewRenderCommand() *cobra.Command {
	var (
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "render <manifest>",
		Short: "Render the dependency graph of a manifest",
		Long: `Render writes the dependency graph as SVG (laid out with Graphviz), DOT or
Mermaid. The format defaults to the extension of --output, or SVG.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := modsys.LoadManifest(args[0])
			if err != nil {
				return err
			}
			if format == "" {
				format = formatFromPath(output)
			}

			r := m.Analyze()
			var data []byte
			switch format {
			case "svg":
				data, err = graph.RenderSVG(cmd.Context(), graph.ToDOT(r))
				if err != nil {
					return err
				}
			case "dot":
				data = []byte(graph.ToDOT(r))
			case "mermaid":
				data = []byte(graph.ToMermaid(r))
			default:
				return fmt.Errorf("%w: %s", modsys.ErrUnsupportedFormatType, format)
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			loggerFromContext(cmd.Context()).Info("Rendered graph", "path", output, "format", format, "modules", len(r.Nodes))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: svg, dot, mermaid")

	return cmd
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dot", ".gv":
		return "dot"
	case ".mmd", ".mermaid":
		return "mermaid"
	default:
		return "svg"
	}
}
