// Package health derives module health from lifecycle state and folds it
// into a single report.
package health

import (
	"context"
	"time"
)

// Status is the health of one module or of the whole system.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// severity orders statuses for worst-wins aggregation.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusUnknown:
		return 1
	case StatusDegraded:
		return 2
	case StatusUnhealthy:
		return 3
	default:
		return 1
	}
}

// IsHealthy returns true if the status represents a healthy state
func (s Status) IsHealthy() bool {
	return s == StatusHealthy
}

// Checker is implemented by modules that can report on their own health
// beyond their lifecycle state. It is only consulted for active modules.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// ModuleHealth is the health of one module.
type ModuleHealth struct {
	Module       string        `json:"module"`
	State        string        `json:"state"`
	Status       Status        `json:"status"`
	Message      string        `json:"message,omitempty"`
	Uptime       time.Duration `json:"uptime"`
	FailureCount int           `json:"failureCount"`
	CheckedAt    time.Time     `json:"checkedAt"`
}

// Summary counts modules per status.
type Summary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
	Unknown   int `json:"unknown"`
}

// Report is the aggregated health of a module system.
type Report struct {
	Status    Status         `json:"status"`
	Modules   []ModuleHealth `json:"modules"`
	Summary   Summary        `json:"summary"`
	Timestamp time.Time      `json:"timestamp"`
}
