// Package graph analyses the dependency graph of a module set: cycle
// detection, missing dependencies, initialization order, depths and unused
// exports. It is a pure function of its input and never mutates modules.
package graph

import (
	"cmp"
	"errors"
	"maps"
	"slices"
)

// Node is one module as seen by the analyzer.
type Node struct {
	Name         string   `json:"name"`
	Priority     int      `json:"priority"`
	Dependencies []string `json:"dependencies,omitempty"`
	Exports      []string `json:"exports,omitempty"`
	Initialized  bool     `json:"initialized"`
}

// Edge points from a dependent module to the module it depends on.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Missing is set when To is not a registered module.
	Missing bool `json:"missing,omitempty"`
}

// Result is the outcome of Analyze. Every slice and map is sorted or keyed
// deterministically so renderings are reproducible.
type Result struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	// InitializationOrder lists every module after all of its dependencies.
	// When cycles exist the order is best effort for the modules involved and
	// must not be trusted until the cycles are removed.
	InitializationOrder  []string            `json:"initializationOrder"`
	CircularDependencies []string            `json:"circularDependencies"`
	Cycles               [][]string          `json:"cycles,omitempty"`
	MissingDependencies  map[string][]string `json:"missingDependencies"`
	UnusedExports        map[string][]string `json:"unusedExports"`
	Depths               map[string]int      `json:"depths"`
}

// HasIssues reports whether the graph contains cycles or missing
// dependencies. Unused exports are informational and do not count.
func (r *Result) HasIssues() bool {
	return len(r.CircularDependencies) > 0 || len(r.MissingDependencies) > 0
}

// Err returns the graph problems as an error, or nil when there are none.
// The error matches ErrCircularDependency and/or ErrMissingDependency.
func (r *Result) Err() error {
	var errs []error
	if len(r.CircularDependencies) > 0 {
		errs = append(errs, &CircularDependencyError{
			Modules: slices.Clone(r.CircularDependencies),
			Cycles:  r.Cycles,
		})
	}
	if len(r.MissingDependencies) > 0 {
		errs = append(errs, &MissingDependencyError{Missing: maps.Clone(r.MissingDependencies)})
	}
	return errors.Join(errs...)
}

// Levels groups module names by depth. Index i holds the modules at depth i.
func (r *Result) Levels() [][]string {
	maxDepth := -1
	for _, d := range r.Depths {
		maxDepth = max(maxDepth, d)
	}
	levels := make([][]string, maxDepth+1)
	for name, d := range r.Depths {
		levels[d] = append(levels[d], name)
	}
	for _, level := range levels {
		slices.Sort(level)
	}
	return levels
}

// Node returns the analysed node with the given name.
func (r *Result) Node(name string) (Node, bool) {
	i, ok := slices.BinarySearchFunc(r.Nodes, name, func(n Node, target string) int {
		return cmp.Compare(n.Name, target)
	})
	if !ok {
		return Node{}, false
	}
	return r.Nodes[i], true
}

// Option configures Analyze.
type Option func(*options)

type options struct {
	usage map[string]map[string]int
}

// WithUsage supplies resolution counters, keyed by module then export. With
// usage data an export only counts as unused when nobody depends on its module
// and it was never resolved.
func WithUsage(usage map[string]map[string]int) Option {
	return func(o *options) {
		o.usage = usage
	}
}

// arena holds nodes by index; adjacency is stored as index lists.
type arena struct {
	nodes      []Node
	index      map[string]int
	deps       [][]int
	dependents [][]int
	missing    map[string][]string
	visitOrder []int
}

func newArena(input []Node) *arena {
	a := &arena{index: make(map[string]int, len(input)), missing: make(map[string][]string)}
	for _, n := range input {
		if n.Name == "" {
			continue
		}
		if _, dup := a.index[n.Name]; dup {
			continue
		}
		a.index[n.Name] = len(a.nodes)
		a.nodes = append(a.nodes, Node{
			Name:         n.Name,
			Priority:     n.Priority,
			Dependencies: uniqueSorted(n.Dependencies),
			Exports:      uniqueSorted(n.Exports),
			Initialized:  n.Initialized,
		})
	}

	a.deps = make([][]int, len(a.nodes))
	a.dependents = make([][]int, len(a.nodes))
	for i, n := range a.nodes {
		for _, dep := range n.Dependencies {
			j, ok := a.index[dep]
			if !ok {
				a.missing[n.Name] = append(a.missing[n.Name], dep)
				continue
			}
			a.deps[i] = append(a.deps[i], j)
			a.dependents[j] = append(a.dependents[j], i)
		}
	}

	a.visitOrder = make([]int, len(a.nodes))
	for i := range a.nodes {
		a.visitOrder[i] = i
	}
	slices.SortFunc(a.visitOrder, a.compare)
	for i := range a.deps {
		slices.SortFunc(a.deps[i], a.compare)
	}
	return a
}

// compare orders higher priority first, then by name.
func (a *arena) compare(i, j int) int {
	if c := cmp.Compare(a.nodes[j].Priority, a.nodes[i].Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.nodes[i].Name, a.nodes[j].Name)
}

const (
	white = iota
	grey
	black
)

type frame struct {
	node int
	next int
}

// walk runs one iterative three-colour DFS over every node. It yields the
// post-order (dependencies first), the set of nodes flagged on back edges and
// the cycle paths.
func (a *arena) walk() (order []int, flagged []bool, cycles [][]int) {
	color := make([]int, len(a.nodes))
	stackPos := make([]int, len(a.nodes))
	flagged = make([]bool, len(a.nodes))
	order = make([]int, 0, len(a.nodes))

	var stack []frame
	for _, root := range a.visitOrder {
		if color[root] != white {
			continue
		}
		color[root] = grey
		stackPos[root] = 0
		stack = append(stack[:0], frame{node: root})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(a.deps[top.node]) {
				v := a.deps[top.node][top.next]
				top.next++
				switch color[v] {
				case white:
					color[v] = grey
					stackPos[v] = len(stack)
					stack = append(stack, frame{node: v})
				case grey:
					// Back edge: every module on the stack from v up to the
					// current node lies on the cycle.
					path := make([]int, 0, len(stack)-stackPos[v]+1)
					for _, f := range stack[stackPos[v]:] {
						flagged[f.node] = true
						path = append(path, f.node)
					}
					cycles = append(cycles, append(path, v))
				}
				continue
			}
			color[top.node] = black
			order = append(order, top.node)
			stack = stack[:len(stack)-1]
		}
	}
	return order, flagged, cycles
}

// depths runs a multi-source BFS from modules without registered
// dependencies along dependent edges. Modules never reached (those only
// reachable through cycles) start a fresh traversal at depth zero.
func (a *arena) depths() []int {
	depth := make([]int, len(a.nodes))
	for i := range depth {
		depth[i] = -1
	}

	var queue []int
	for _, i := range a.visitOrder {
		if len(a.deps[i]) == 0 {
			depth[i] = 0
			queue = append(queue, i)
		}
	}
	a.bfs(queue, depth)

	for _, i := range a.visitOrder {
		if depth[i] < 0 {
			depth[i] = 0
			a.bfs([]int{i}, depth)
		}
	}
	return depth
}

func (a *arena) bfs(queue []int, depth []int) {
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range a.dependents[u] {
			if depth[v] >= 0 {
				continue
			}
			depth[v] = depth[u] + 1
			queue = append(queue, v)
		}
	}
}

func (a *arena) unusedExports(usage map[string]map[string]int) map[string][]string {
	unused := make(map[string][]string)
	for i, n := range a.nodes {
		if len(n.Exports) == 0 {
			continue
		}
		if slices.ContainsFunc(a.dependents[i], func(j int) bool { return j != i }) {
			continue
		}
		for _, export := range n.Exports {
			if usage != nil && usage[n.Name][export] > 0 {
				continue
			}
			unused[n.Name] = append(unused[n.Name], export)
		}
	}
	return unused
}

// Analyze builds the dependency graph of the given nodes and reports on it.
// Nodes with an empty name are ignored; for duplicate names the first wins.
func Analyze(nodes []Node, opts ...Option) *Result {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := newArena(nodes)
	order, flagged, cycles := a.walk()
	depth := a.depths()

	res := &Result{
		Nodes:                slices.Clone(a.nodes),
		Edges:                []Edge{},
		InitializationOrder:  make([]string, len(order)),
		CircularDependencies: []string{},
		MissingDependencies:  a.missing,
		UnusedExports:        a.unusedExports(o.usage),
		Depths:               make(map[string]int, len(a.nodes)),
	}
	slices.SortFunc(res.Nodes, func(x, y Node) int { return cmp.Compare(x.Name, y.Name) })

	for _, n := range res.Nodes {
		for _, dep := range n.Dependencies {
			_, ok := a.index[dep]
			res.Edges = append(res.Edges, Edge{From: n.Name, To: dep, Missing: !ok})
		}
	}
	for i, idx := range order {
		res.InitializationOrder[i] = a.nodes[idx].Name
	}
	for i, f := range flagged {
		if f {
			res.CircularDependencies = append(res.CircularDependencies, a.nodes[i].Name)
		}
	}
	slices.Sort(res.CircularDependencies)
	for _, c := range cycles {
		path := make([]string, len(c))
		for i, idx := range c {
			path[i] = a.nodes[idx].Name
		}
		res.Cycles = append(res.Cycles, path)
	}
	for i, d := range depth {
		res.Depths[a.nodes[i].Name] = d
	}
	return res
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	out = slices.Compact(out)
	if out[0] == "" {
		out = out[1:]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
