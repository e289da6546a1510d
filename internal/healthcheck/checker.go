// Package healthcheck evaluates the liveness of the service's two hard
// dependencies, Postgres and the Discord gateway, for the health endpoint.
package healthcheck

import (
	"context"
	"log/slog"
	"time"
)

const (
	// StatusOK indicates the dependency responded.
	StatusOK = "ok"
	// StatusError indicates the dependency is unreachable or degraded.
	StatusError = "error"
)

// CheckResult is the outcome of probing one dependency.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Checker probes a single dependency.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// Report aggregates every check. Status is StatusOK only when all checks
// passed.
type Report struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Registry runs the registered checkers with a shared per-report timeout.
type Registry struct {
	logger   *slog.Logger
	checkers []Checker
	timeout  time.Duration
}

// NewRegistry creates a Registry over the given checkers.
func NewRegistry(log *slog.Logger, checkers ...Checker) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		logger:   log.With(slog.String("component", "healthcheck")),
		checkers: checkers,
		timeout:  5 * time.Second,
	}
}

// Report probes every dependency and aggregates the results.
func (r *Registry) Report(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	report := Report{
		Status: StatusOK,
		Checks: make([]CheckResult, 0, len(r.checkers)),
	}
	for _, checker := range r.checkers {
		result := checker.Check(ctx)
		if result.Status != StatusOK {
			report.Status = StatusError
			r.logger.Warn("dependency check failed",
				slog.String("check", result.Name),
				slog.String("detail", result.Detail))
		}
		report.Checks = append(report.Checks, result)
	}
	return report
}
