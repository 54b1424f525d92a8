package health

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/GoCodeAlone/modsys/lifecycle"
)

// FromState maps a lifecycle state to a health status. Only active modules
// are healthy; modules on their way up or down are degraded.
func FromState(s lifecycle.State) Status {
	switch s {
	case lifecycle.StateActive:
		return StatusHealthy
	case lifecycle.StateInitializing, lifecycle.StateInitialized, lifecycle.StateStarting,
		lifecycle.StatePausing, lifecycle.StatePaused, lifecycle.StateResuming, lifecycle.StateStopping:
		return StatusDegraded
	case lifecycle.StateFailed:
		return StatusUnhealthy
	default:
		return StatusUnknown
	}
}

// Evaluate builds a module's health from its lifecycle snapshot. When the
// module is active and checker is not nil, a failing check makes it unhealthy.
func Evaluate(ctx context.Context, info *lifecycle.Info, checker Checker, now time.Time) ModuleHealth {
	mh := ModuleHealth{
		Module:       info.Module,
		State:        info.State.String(),
		Status:       FromState(info.State),
		Message:      info.LastError,
		Uptime:       info.Uptime,
		FailureCount: info.FailureCount,
		CheckedAt:    now,
	}
	if info.State == lifecycle.StateActive {
		mh.Message = ""
		if checker != nil {
			if err := checker.CheckHealth(ctx); err != nil {
				mh.Status = StatusUnhealthy
				mh.Message = err.Error()
			}
		}
	}
	return mh
}

// Untracked describes a registered module the lifecycle manager holds no
// record for, typically because it was destroyed.
func Untracked(module string, now time.Time) ModuleHealth {
	return ModuleHealth{
		Module:    module,
		State:     "untracked",
		Status:    StatusUnknown,
		CheckedAt: now,
	}
}

// Aggregate combines module health into a report. The worst module status
// wins; a system with no modules is healthy.
func Aggregate(modules []ModuleHealth, now time.Time) Report {
	report := Report{
		Status:    StatusHealthy,
		Modules:   slices.Clone(modules),
		Timestamp: now,
	}
	if report.Modules == nil {
		report.Modules = []ModuleHealth{}
	}
	slices.SortFunc(report.Modules, func(a, b ModuleHealth) int {
		return cmp.Compare(a.Module, b.Module)
	})

	for _, m := range report.Modules {
		report.Summary.Total++
		switch m.Status {
		case StatusHealthy:
			report.Summary.Healthy++
		case StatusDegraded:
			report.Summary.Degraded++
		case StatusUnhealthy:
			report.Summary.Unhealthy++
		default:
			report.Summary.Unknown++
		}
		if m.Status.severity() > report.Status.severity() {
			report.Status = m.Status
		}
	}
	return report
}
