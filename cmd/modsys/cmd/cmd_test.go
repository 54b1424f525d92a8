package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modsys/cmd/modsys/cmd"
	"github.com/GoCodeAlone/modsys/graph"
)

const manifest = `
system:
  logLevel: info
  adminAddr: 127.0.0.1:0
modules:
  - name: network
    priority: 100
    exports: [http]
  - name: database
    priority: 90
    exports: [db]
  - name: users
    priority: 50
    dependencies: [network, database]
`

const cyclicManifest = `
modules:
  - name: a
    dependencies: [b]
  - name: b
    dependencies: [a]
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modsys.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	root := cmd.NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestRootCommand(t *testing.T) {
	out, _, err := execute(t, context.Background(), "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "modsys loads a manifest")

	out, _, err = execute(t, context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, cmd.PrintVersion())
}

func TestAnalyzeCommand(t *testing.T) {
	path := writeManifest(t, manifest)

	out, _, err := execute(t, context.Background(), "analyze", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialization order")

	out, _, err = execute(t, context.Background(), "analyze", "--format", "json", path)
	require.NoError(t, err)
	var result graph.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []string{"network", "database", "users"}, result.InitializationOrder)
	assert.Equal(t, 1, result.Depths["users"])

	out, _, err = execute(t, context.Background(), "analyze", "-f", "mermaid", path)
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")

	_, _, err = execute(t, context.Background(), "analyze", "-f", "xml", path)
	assert.Error(t, err)

	_, _, err = execute(t, context.Background(), "analyze", writeManifest(t, cyclicManifest))
	assert.ErrorIs(t, err, graph.ErrCircularDependency)

	_, _, err = execute(t, context.Background(), "analyze")
	assert.Error(t, err, "manifest argument is required")
}

func TestAnalyzeCommand_Watch(t *testing.T) {
	path := writeManifest(t, cyclicManifest)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, logs, err := execute(t, ctx, "analyze", "--watch", path)
	require.NoError(t, err, "issues are logged while watching")
	assert.Contains(t, logs, "Manifest has issues")
	assert.Contains(t, logs, "Watching manifest")
}

func TestRenderCommand(t *testing.T) {
	path := writeManifest(t, manifest)

	out, _, err := execute(t, context.Background(), "render", "-f", "dot", path)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")

	target := filepath.Join(t.TempDir(), "graph.mmd")
	_, _, err = execute(t, context.Background(), "render", "-o", target, path)
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "graph TD")

	_, _, err = execute(t, context.Background(), "render", "-f", "gif", path)
	assert.Error(t, err)
}

func TestSampleCommand(t *testing.T) {
	out, _, err := execute(t, context.Background(), "sample")
	require.NoError(t, err)
	assert.Contains(t, out, "transitionTimeout")
	assert.Contains(t, out, "@every 30s")

	out, _, err = execute(t, context.Background(), "sample", "-f", "json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))

	_, _, err = execute(t, context.Background(), "sample", "-f", "ini")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	path := writeManifest(t, manifest)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, logs, err := execute(t, ctx, "run", path)
	require.NoError(t, err)
	assert.Contains(t, logs, "Admin server listening")
	assert.Contains(t, logs, "Admin server stopped")

	_, _, err = execute(t, context.Background(), "run", writeManifest(t, cyclicManifest))
	assert.ErrorIs(t, err, graph.ErrCircularDependency)
}
