package admin

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/modsys"
	"github.com/GoCodeAlone/modsys/health"
)

// Reporter evaluates system health on a cron schedule, logs a summary and
// publishes it to the system's observers.
type Reporter struct {
	sys      *modsys.ModuleSystem
	logger   modsys.Logger
	schedule string
	cron     *cron.Cron

	mu     sync.RWMutex
	last   health.Report
	hasRun bool
}

// NewReporter validates the schedule (standard five-field cron or a
// descriptor such as "@every 30s") and returns a stopped reporter.
func NewReporter(sys *modsys.ModuleSystem, logger modsys.Logger, schedule string) (*Reporter, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	r := &Reporter{
		sys:      sys,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.Report(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid report schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins the schedule in the background.
func (r *Reporter) Start() {
	r.logger.Info("Starting health reporter", "schedule", r.schedule)
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish or for
// ctx to end, whichever comes first.
func (r *Reporter) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report evaluates health once, records it as the latest report and
// publishes it.
func (r *Reporter) Report(ctx context.Context) health.Report {
	report := r.sys.Health(ctx)

	r.mu.Lock()
	r.last = report
	r.hasRun = true
	r.mu.Unlock()

	args := []any{
		"status", report.Status,
		"total", report.Summary.Total,
		"healthy", report.Summary.Healthy,
		"degraded", report.Summary.Degraded,
		"unhealthy", report.Summary.Unhealthy,
	}
	if report.Status.IsHealthy() {
		r.logger.Info("Health report", args...)
	} else {
		r.logger.Warn("Health report", args...)
	}

	event := modsys.NewCloudEvent(modsys.EventTypeSystemHealth, "modsys/admin", report, nil)
	if err := r.sys.Observers().Notify(ctx, event); err != nil {
		r.logger.Warn("Observer failed", "event", modsys.EventTypeSystemHealth, "error", err)
	}
	return report
}

// Last returns the most recent report, if one has been produced.
func (r *Reporter) Last() (health.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.hasRun
}
