package graph

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertBefore(t *testing.T, order []string, first, second string) {
	t.Helper()
	i, j := slices.Index(order, first), slices.Index(order, second)
	require.NotEqual(t, -1, i, "%s missing from order %v", first, order)
	require.NotEqual(t, -1, j, "%s missing from order %v", second, order)
	assert.Less(t, i, j, "%s must come before %s in %v", first, second, order)
}

func TestAnalyze_LinearOrder(t *testing.T) {
	res := Analyze([]Node{
		{Name: "C", Dependencies: []string{"A", "B"}},
		{Name: "B", Dependencies: []string{"A"}},
		{Name: "A"},
	})

	assert.Equal(t, []string{"A", "B", "C"}, res.InitializationOrder)
	assert.False(t, res.HasIssues())
	assert.NoError(t, res.Err())
	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 1}, res.Depths)
	assert.Len(t, res.Edges, 3)
}

func TestAnalyze_TwoNodeCycle(t *testing.T) {
	res := Analyze([]Node{
		{Name: "A", Dependencies: []string{"B"}},
		{Name: "B", Dependencies: []string{"A"}},
	})

	assert.Equal(t, []string{"A", "B"}, res.CircularDependencies)
	assert.True(t, res.HasIssues())
	require.Len(t, res.Cycles, 1)
	assert.Equal(t, []string{"A", "B", "A"}, res.Cycles[0])
	assert.Len(t, res.InitializationOrder, 2, "order stays best effort with cycles")

	err := res.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)
	assert.NotErrorIs(t, err, ErrMissingDependency)
	var cycleErr *CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"A", "B"}, cycleErr.Modules)
	assert.Contains(t, err.Error(), "A -> B -> A")
}

func TestAnalyze_LongCycleFlagsEveryMember(t *testing.T) {
	res := Analyze([]Node{
		{Name: "entry", Priority: 10, Dependencies: []string{"a"}},
		{Name: "a", Dependencies: []string{"b"}},
		{Name: "b", Dependencies: []string{"c"}},
		{Name: "c", Dependencies: []string{"a"}},
		{Name: "leaf"},
	})

	assert.Equal(t, []string{"a", "b", "c"}, res.CircularDependencies)
	assert.NotContains(t, res.CircularDependencies, "entry")
	assert.Equal(t, 0, res.Depths["leaf"])
	// a, b and c are only reachable through the cycle, so they start fresh.
	assert.Equal(t, 0, res.Depths["a"])
}

func TestAnalyze_SelfDependency(t *testing.T) {
	res := Analyze([]Node{{Name: "loop", Dependencies: []string{"loop"}}})
	assert.Equal(t, []string{"loop"}, res.CircularDependencies)
	assert.Equal(t, [][]string{{"loop", "loop"}}, res.Cycles)
}

func TestAnalyze_MissingDependency(t *testing.T) {
	res := Analyze([]Node{
		{Name: "A", Dependencies: []string{"Ghost", "B"}},
		{Name: "B"},
	})

	assert.Equal(t, map[string][]string{"A": {"Ghost"}}, res.MissingDependencies)
	assert.True(t, res.HasIssues())
	assert.Empty(t, res.CircularDependencies)
	assert.Equal(t, []string{"B", "A"}, res.InitializationOrder)
	assert.Contains(t, res.Edges, Edge{From: "A", To: "Ghost", Missing: true})

	err := res.Err()
	assert.ErrorIs(t, err, ErrMissingDependency)
	var missingErr *MissingDependencyError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, []string{"Ghost"}, missingErr.Missing["A"])
	assert.Contains(t, err.Error(), "A requires Ghost")
}

func TestAnalyze_PriorityBreaksTies(t *testing.T) {
	res := Analyze([]Node{
		{Name: "User", Priority: 50, Dependencies: []string{"Network", "Database"}},
		{Name: "Database", Priority: 90},
		{Name: "Network", Priority: 100},
	})

	assert.Equal(t, []string{"Network", "Database", "User"}, res.InitializationOrder)
	assert.Empty(t, res.CircularDependencies)
	assert.Empty(t, res.MissingDependencies)
	assert.Equal(t, [][]string{{"Database", "Network"}, {"User"}}, res.Levels())
}

func TestAnalyze_OrderRespectsDependenciesOnWideGraph(t *testing.T) {
	var nodes []Node
	for i := 0; i < 40; i++ {
		n := Node{Name: fmt.Sprintf("m%02d", i), Priority: i % 7}
		if i > 0 {
			n.Dependencies = append(n.Dependencies, fmt.Sprintf("m%02d", i/2))
		}
		if i > 3 {
			n.Dependencies = append(n.Dependencies, fmt.Sprintf("m%02d", i-3))
		}
		nodes = append(nodes, n)
	}
	res := Analyze(nodes)
	require.False(t, res.HasIssues())
	require.Len(t, res.InitializationOrder, len(nodes))
	for _, n := range nodes {
		for _, dep := range n.Dependencies {
			assertBefore(t, res.InitializationOrder, dep, n.Name)
		}
	}
}

func TestAnalyze_DeepChainDoesNotRecurse(t *testing.T) {
	const depth = 100000
	nodes := make([]Node, depth)
	for i := range nodes {
		nodes[i] = Node{Name: fmt.Sprintf("n%06d", i)}
		if i > 0 {
			nodes[i].Dependencies = []string{nodes[i-1].Name}
		}
	}
	res := Analyze(nodes)
	assert.Equal(t, "n000000", res.InitializationOrder[0])
	assert.Equal(t, depth-1, res.Depths[nodes[depth-1].Name])
}

func TestAnalyze_UnusedExports(t *testing.T) {
	nodes := []Node{
		{Name: "db", Exports: []string{"sql", "migrator"}},
		{Name: "api", Dependencies: []string{"db"}, Exports: []string{"http"}},
		{Name: "metrics", Exports: []string{"prometheus", "statsd"}},
	}

	res := Analyze(nodes)
	assert.NotContains(t, res.UnusedExports, "db", "db has dependents")
	assert.Equal(t, []string{"http"}, res.UnusedExports["api"])
	assert.Equal(t, []string{"prometheus", "statsd"}, res.UnusedExports["metrics"])

	res = Analyze(nodes, WithUsage(map[string]map[string]int{
		"metrics": {"prometheus": 3},
	}))
	assert.Equal(t, []string{"statsd"}, res.UnusedExports["metrics"])
}

func TestAnalyze_IgnoresEmptyAndDuplicateNames(t *testing.T) {
	res := Analyze([]Node{
		{Name: ""},
		{Name: "a", Priority: 1, Dependencies: []string{"b", "b", ""}},
		{Name: "a", Priority: 99},
		{Name: "b"},
	})
	require.Len(t, res.Nodes, 2)
	n, ok := res.Node("a")
	require.True(t, ok)
	assert.Equal(t, 1, n.Priority)
	assert.Equal(t, []string{"b"}, n.Dependencies)
	_, ok = res.Node("zzz")
	assert.False(t, ok)
}

func TestAnalyze_Empty(t *testing.T) {
	res := Analyze(nil)
	assert.False(t, res.HasIssues())
	assert.Empty(t, res.InitializationOrder)
	assert.Empty(t, res.Levels())
	assert.NoError(t, res.Err())
}
