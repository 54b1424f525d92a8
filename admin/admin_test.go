package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modsys"
	"github.com/GoCodeAlone/modsys/graph"
	"github.com/GoCodeAlone/modsys/health"
	"github.com/GoCodeAlone/modsys/lifecycle"
)

var errProbe = errors.New("probe failed")

type probedModule struct {
	modsys.Module
	sick atomic.Bool
}

func (m *probedModule) CheckHealth(context.Context) error {
	if m.sick.Load() {
		return errProbe
	}
	return nil
}

func newRunningSystem(t *testing.T, opts ...modsys.Option) (*modsys.ModuleSystem, *probedModule) {
	t.Helper()
	sys, err := modsys.New(opts...)
	require.NoError(t, err)

	require.NoError(t, sys.RegisterFunc(modsys.ModuleDescriptor{Name: "network", Priority: 100, Exports: []string{"http"}},
		func(ctx context.Context, mc *modsys.ModuleContext) error {
			return mc.Container.RegisterInstance(ctx, "http", "client")
		}))
	probed := &probedModule{Module: modsys.NewModule(modsys.ModuleDescriptor{
		Name: "users", Priority: 50, Dependencies: []string{"network"},
	}, nil)}
	require.NoError(t, sys.Register(probed))
	require.NoError(t, sys.Initialize(context.Background()))
	return sys, probed
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServer_Modules(t *testing.T) {
	sys, _ := newRunningSystem(t)
	srv := NewServer(sys, nil)

	rec := do(t, srv, http.MethodGet, "/modules")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var views []ModuleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "network", views[0].Name)
	assert.Equal(t, []string{"network"}, views[1].Dependencies)
	require.NotNil(t, views[1].Lifecycle)
	assert.Equal(t, lifecycle.StateActive, views[1].Lifecycle.State)

	rec = do(t, srv, http.MethodGet, "/modules/users")
	require.Equal(t, http.StatusOK, rec.Code)
	var view ModuleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 50, view.Priority)

	rec = do(t, srv, http.MethodGet, "/modules/ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ghost")
}

func TestServer_Transition(t *testing.T) {
	sys, _ := newRunningSystem(t)
	srv := NewServer(sys, nil)

	rec := do(t, srv, http.MethodPost, "/modules/users/pause")
	require.Equal(t, http.StatusOK, rec.Code)
	var view TransitionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "success", view.Outcome)
	assert.Equal(t, lifecycle.StateActive, view.From)
	assert.Equal(t, lifecycle.StatePaused, view.To)

	rec = do(t, srv, http.MethodPost, "/modules/users/pause")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "blocked", view.Outcome)
	assert.NotEmpty(t, view.Reason)

	rec = do(t, srv, http.MethodPost, "/modules/users/explode")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/modules/ghost/start")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/modules/users/pause")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	state, _ := sys.Lifecycle().State("users")
	assert.Equal(t, lifecycle.StatePaused, state)
}

func TestServer_TransitionOutlivesClient(t *testing.T) {
	sys, _ := newRunningSystem(t)
	srv := NewServer(sys, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/modules/users/stop", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	info, ok := sys.Lifecycle().Info("users")
	require.True(t, ok)
	assert.Equal(t, lifecycle.StateStopped, info.State)
	assert.Equal(t, 0, info.FailureCount)
}

func TestServer_Graph(t *testing.T) {
	sys, _ := newRunningSystem(t)
	srv := NewServer(sys, nil)

	rec := do(t, srv, http.MethodGet, "/graph")
	require.Equal(t, http.StatusOK, rec.Code)
	var result graph.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"network", "users"}, result.InitializationOrder)
	assert.Empty(t, result.UnusedExports, "network has a dependent")

	rec = do(t, srv, http.MethodGet, "/graph?format=dot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "digraph"))

	rec = do(t, srv, http.MethodGet, "/graph?format=mermaid")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "graph")

	rec = do(t, srv, http.MethodGet, "/graph?format=report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Initialization order")

	rec = do(t, srv, http.MethodGet, "/graph?format=png")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HealthAndStats(t *testing.T) {
	sys, probed := newRunningSystem(t)
	srv := NewServer(sys, nil)

	rec := do(t, srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.StatusHealthy, report.Status)
	assert.Equal(t, 2, report.Summary.Total)

	probed.sick.Store(true)
	rec = do(t, srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Equal(t, 1, report.Summary.Unhealthy)

	rec = do(t, srv, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats lifecycle.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Tracked)
	assert.Equal(t, 2, stats.ByState[lifecycle.StateActive])
}

func TestServer_ListenAndServe(t *testing.T) {
	sys, _ := newRunningSystem(t)
	srv := NewServer(sys, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestReporter(t *testing.T) {
	var events atomic.Int32
	observer := modsys.NewFunctionalObserver("health-test", func(_ context.Context, e cloudevents.Event) error {
		if e.Type() == modsys.EventTypeSystemHealth {
			events.Add(1)
		}
		return nil
	})
	sys, probed := newRunningSystem(t, modsys.WithObservers(observer))

	_, err := NewReporter(sys, nil, "every now and then")
	require.Error(t, err)

	reporter, err := NewReporter(sys, nil, "@every 1s")
	require.NoError(t, err)

	_, ok := reporter.Last()
	assert.False(t, ok)

	probed.sick.Store(true)
	report := reporter.Report(context.Background())
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	last, ok := reporter.Last()
	require.True(t, ok)
	assert.Equal(t, report.Status, last.Status)
	assert.Equal(t, int32(1), events.Load())

	probed.sick.Store(false)
	reporter.Start()
	require.Eventually(t, func() bool {
		last, _ := reporter.Last()
		return last.Status == health.StatusHealthy
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, reporter.Stop(ctx))
	assert.GreaterOrEqual(t, events.Load(), int32(2))
}
