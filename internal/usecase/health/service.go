package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	ComponentEngine = "engine"
	ComponentEvents = "events"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	engine  Pinger
	events  Pinger
	timeout time.Duration
}

// New creates a Service. events can be nil when no event sink is configured.
func New(engine, events Pinger) *Service {
	return &Service{engine: engine, events: events, timeout: 2 * time.Second}
}

// Check pings the engine and, if configured, the event sink. Each ping is
// bounded by its own timeout.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{ComponentEngine: s.ping(ctx, s.engine)}
	if s.events != nil {
		checks[ComponentEvents] = s.ping(ctx, s.events)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) ping(ctx context.Context, p Pinger) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
