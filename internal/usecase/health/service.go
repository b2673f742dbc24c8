package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the vector store is down; nothing works without it.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Deps are the checked components. Everything but DB may be nil.
type Deps struct {
	DB         Pinger
	Lists      Pinger
	Embedding  ProviderChecker
	Generation ProviderChecker
}

// Service coordinates health checks.
type Service struct {
	deps Deps
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{deps: deps}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["database"] = result(s.deps.DB.Ping(ctx))
	if s.deps.Lists != nil {
		checks["lists"] = result(s.deps.Lists.Ping(ctx))
	}
	if s.deps.Embedding != nil {
		checks["embedding"] = result(s.deps.Embedding.HealthCheck(ctx))
	}
	if s.deps.Generation != nil {
		checks["generation"] = result(s.deps.Generation.HealthCheck(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks["database"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
