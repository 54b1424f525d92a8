package graph

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/goccy/go-graphviz"
)

// ToDOT renders the analysis as a Graphviz digraph. Edges point from a module
// to its dependency. Modules on a cycle are filled red, initialized modules
// light blue, and unregistered dependencies appear as dashed grey nodes.
func ToDOT(r *Result) string {
	var buf bytes.Buffer
	buf.WriteString("digraph modules {\n")
	buf.WriteString("  rankdir=BT;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white];\n")
	buf.WriteString("\n")

	circular := toSet(r.CircularDependencies)
	for _, n := range r.Nodes {
		attrs := []string{fmt.Sprintf("label=%q", fmt.Sprintf("%s\n(priority %d)", n.Name, n.Priority))}
		switch {
		case circular[n.Name]:
			attrs = append(attrs, "fillcolor=\"#f4cccc\"", "color=red")
		case n.Initialized:
			attrs = append(attrs, "fillcolor=lightblue")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", n.Name, strings.Join(attrs, ", "))
	}
	for _, name := range missingTargets(r) {
		fmt.Fprintf(&buf, "  %q [style=\"rounded,dashed\", color=grey, fontcolor=grey];\n", name)
	}

	buf.WriteString("\n")
	for _, e := range r.Edges {
		switch {
		case e.Missing:
			fmt.Fprintf(&buf, "  %q -> %q [style=dashed, color=grey];\n", e.From, e.To)
		case circular[e.From] && circular[e.To]:
			fmt.Fprintf(&buf, "  %q -> %q [color=red];\n", e.From, e.To)
		default:
			fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}

// ToMermaid renders the analysis as a Mermaid flowchart.
func ToMermaid(r *Result) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	ids := make(map[string]string)
	id := func(name string) string {
		if v, ok := ids[name]; ok {
			return v
		}
		v := fmt.Sprintf("m%d", len(ids))
		ids[name] = v
		return v
	}

	for _, n := range r.Nodes {
		fmt.Fprintf(&sb, "  %s[%s]\n", id(n.Name), mermaidLabel(n.Name))
	}
	for _, name := range missingTargets(r) {
		fmt.Fprintf(&sb, "  %s([%s])\n", id(name), mermaidLabel(name))
	}
	for _, e := range r.Edges {
		arrow := "-->"
		if e.Missing {
			arrow = "-.->"
		}
		fmt.Fprintf(&sb, "  %s %s %s\n", id(e.From), arrow, id(e.To))
	}

	if len(r.CircularDependencies) > 0 {
		sb.WriteString("  classDef cycle fill:#f4cccc,stroke:#c00\n")
		for _, name := range r.CircularDependencies {
			fmt.Fprintf(&sb, "  class %s cycle\n", id(name))
		}
	}
	if missing := missingTargets(r); len(missing) > 0 {
		sb.WriteString("  classDef missing stroke-dasharray:4 4,color:#888\n")
		for _, name := range missing {
			fmt.Fprintf(&sb, "  class %s missing\n", id(name))
		}
	}
	return sb.String()
}

// Mermaid labels take entity codes, not backslash escapes.
var mermaidEscaper = strings.NewReplacer(
	`#`, "#35;",
	`"`, "#quot;",
	`<`, "#lt;",
	`>`, "#gt;",
)

func mermaidLabel(name string) string {
	return `"` + mermaidEscaper.Replace(name) + `"`
}

// Report renders a human readable summary of the analysis.
func Report(r *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Modules: %d, dependencies: %d\n", len(r.Nodes), len(r.Edges))

	sb.WriteString("\nInitialization order:\n")
	for i, name := range r.InitializationOrder {
		fmt.Fprintf(&sb, "  %2d. %s\n", i+1, name)
	}

	sb.WriteString("\nLevels:\n")
	for depth, names := range r.Levels() {
		fmt.Fprintf(&sb, "  %d: %s\n", depth, strings.Join(names, ", "))
	}

	if !r.HasIssues() && len(r.UnusedExports) == 0 {
		sb.WriteString("\nNo issues found.\n")
		return sb.String()
	}

	if len(r.CircularDependencies) > 0 {
		sb.WriteString("\nCircular dependencies:\n")
		for _, c := range r.Cycles {
			fmt.Fprintf(&sb, "  - %s\n", strings.Join(c, " -> "))
		}
	}
	if len(r.MissingDependencies) > 0 {
		sb.WriteString("\nMissing dependencies:\n")
		for _, name := range slices.Sorted(maps.Keys(r.MissingDependencies)) {
			fmt.Fprintf(&sb, "  - %s requires %s\n", name, strings.Join(r.MissingDependencies[name], ", "))
		}
	}
	if len(r.UnusedExports) > 0 {
		sb.WriteString("\nUnused exports:\n")
		for _, name := range slices.Sorted(maps.Keys(r.UnusedExports)) {
			fmt.Fprintf(&sb, "  - %s: %s\n", name, strings.Join(r.UnusedExports[name], ", "))
		}
	}
	return sb.String()
}

// RenderSVG lays out a DOT graph with Graphviz and returns the SVG bytes.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

func missingTargets(r *Result) []string {
	seen := make(map[string]bool)
	for _, deps := range r.MissingDependencies {
		for _, d := range deps {
			seen[d] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
