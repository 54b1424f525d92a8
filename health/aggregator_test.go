package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modsys/lifecycle"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

func TestFromState(t *testing.T) {
	expected := map[lifecycle.State]Status{
		lifecycle.StateUninitialized: StatusUnknown,
		lifecycle.StateInitializing:  StatusDegraded,
		lifecycle.StateInitialized:   StatusDegraded,
		lifecycle.StateStarting:      StatusDegraded,
		lifecycle.StateActive:        StatusHealthy,
		lifecycle.StatePausing:       StatusDegraded,
		lifecycle.StatePaused:        StatusDegraded,
		lifecycle.StateResuming:      StatusDegraded,
		lifecycle.StateStopping:      StatusDegraded,
		lifecycle.StateStopped:       StatusUnknown,
		lifecycle.StateFailed:        StatusUnhealthy,
		lifecycle.StateDestroyed:     StatusUnknown,
	}
	for _, s := range lifecycle.AllStates() {
		assert.Equal(t, expected[s], FromState(s), s.String())
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	active := &lifecycle.Info{Module: "db", State: lifecycle.StateActive, Uptime: time.Minute, FailureCount: 1, LastError: "old failure"}
	mh := Evaluate(ctx, active, nil, now)
	assert.Equal(t, StatusHealthy, mh.Status)
	assert.Equal(t, "active", mh.State)
	assert.Empty(t, mh.Message, "a recovered module does not carry its last error")
	assert.Equal(t, time.Minute, mh.Uptime)
	assert.Equal(t, 1, mh.FailureCount)
	assert.Equal(t, now, mh.CheckedAt)

	failing := checkerFunc(func(context.Context) error { return errors.New("connection refused") })
	mh = Evaluate(ctx, active, failing, now)
	assert.Equal(t, StatusUnhealthy, mh.Status)
	assert.Equal(t, "connection refused", mh.Message)

	called := false
	paused := &lifecycle.Info{Module: "db", State: lifecycle.StatePaused}
	mh = Evaluate(ctx, paused, checkerFunc(func(context.Context) error { called = true; return nil }), now)
	assert.Equal(t, StatusDegraded, mh.Status)
	assert.False(t, called, "checks only run for active modules")

	failed := &lifecycle.Info{Module: "db", State: lifecycle.StateFailed, LastError: "boom"}
	mh = Evaluate(ctx, failed, nil, now)
	assert.Equal(t, StatusUnhealthy, mh.Status)
	assert.Equal(t, "boom", mh.Message)
}

func TestAggregate(t *testing.T) {
	now := time.Now()

	empty := Aggregate(nil, now)
	assert.Equal(t, StatusHealthy, empty.Status)
	assert.NotNil(t, empty.Modules)
	assert.Zero(t, empty.Summary.Total)

	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"unknown beats healthy", []Status{StatusHealthy, StatusUnknown}, StatusUnknown},
		{"degraded beats unknown", []Status{StatusUnknown, StatusDegraded, StatusHealthy}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modules := make([]ModuleHealth, len(tt.statuses))
			for i, s := range tt.statuses {
				modules[i] = ModuleHealth{Module: string(rune('z' - i)), Status: s}
			}
			report := Aggregate(modules, now)
			assert.Equal(t, tt.want, report.Status)
			assert.Equal(t, len(tt.statuses), report.Summary.Total)
		})
	}

	report := Aggregate([]ModuleHealth{
		{Module: "users", Status: StatusUnhealthy},
		{Module: "api", Status: StatusHealthy},
		Untracked("cache", now),
		{Module: "db", Status: StatusDegraded},
	}, now)
	require.Len(t, report.Modules, 4)
	assert.Equal(t, []string{"api", "cache", "db", "users"}, []string{
		report.Modules[0].Module, report.Modules[1].Module, report.Modules[2].Module, report.Modules[3].Module,
	})
	assert.Equal(t, Summary{Total: 4, Healthy: 1, Degraded: 1, Unhealthy: 1, Unknown: 1}, report.Summary)
	assert.Equal(t, "untracked", report.Modules[1].State)
	assert.True(t, StatusHealthy.IsHealthy())
	assert.False(t, report.Status.IsHealthy())
}
