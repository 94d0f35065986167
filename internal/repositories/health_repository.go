package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/food-hunger/api/internal/domain"
)

const defaultCheckTimeout = 1500 * time.Millisecond

// ReadinessCheck verifies one backing dependency of the ordering API, such as
// the order store, the event topic, or the secret resolver.
type ReadinessCheck struct {
	Name    string
	Timeout time.Duration
	Run     func(context.Context) error
}

// ReadinessOption customises the readiness repository.
type ReadinessOption func(*readinessRepository)

// WithCheckTimeout overrides the timeout applied when a check omits its own.
func WithCheckTimeout(timeout time.Duration) ReadinessOption {
	return func(repo *readinessRepository) {
		if timeout > 0 {
			repo.defaultTimeout = timeout
		}
	}
}

// WithReadinessClock injects a clock, primarily for tests.
func WithReadinessClock(clock func() time.Time) ReadinessOption {
	return func(repo *readinessRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

type readinessRepository struct {
	checks         []ReadinessCheck
	defaultTimeout time.Duration
	now            func() time.Time
}

var _ HealthRepository = (*readinessRepository)(nil)

// NewReadinessRepository validates the check set and returns a
// HealthRepository that runs every check concurrently on Collect.
func NewReadinessRepository(checks []ReadinessCheck, opts ...ReadinessOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one readiness check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" {
			return nil, errors.New("health repository: readiness check missing name")
		}
		if check.Run == nil {
			return nil, fmt.Errorf("health repository: check %s missing run function", check.Name)
		}
	}

	repo := &readinessRepository{
		checks:         append([]ReadinessCheck(nil), checks...),
		defaultTimeout: defaultCheckTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

func (r *readinessRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	results := make(map[string]domain.SystemHealthCheck, len(r.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	wg.Add(len(r.checks))
	for _, check := range r.checks {
		check := check
		go func() {
			defer wg.Done()
			result := r.runCheck(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	return domain.SystemHealthReport{
		Status:      overallStatus(results),
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}

func (r *readinessRepository) runCheck(ctx context.Context, check ReadinessCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Run(checkCtx)
	end := r.now()

	result := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}

	switch {
	case err == nil && checkCtx.Err() != nil:
		// Deadline hit even though the check returned nil.
		result.Status = domain.HealthStatusError
		result.Detail = checkCtx.Err().Error()
		result.Error = checkCtx.Err().Error()
	case errors.Is(err, context.Canceled):
		result.Status = domain.HealthStatusError
		result.Detail = "cancelled"
		result.Error = err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = domain.HealthStatusError
		result.Detail = "timeout"
		result.Error = err.Error()
	case err != nil:
		result.Status = domain.HealthStatusDegraded
		result.Detail = err.Error()
		result.Error = err.Error()
	}

	return result
}

func overallStatus(checks map[string]domain.SystemHealthCheck) domain.HealthStatus {
	overall := domain.HealthStatusOK
	for _, check := range checks {
		if check.Status == domain.HealthStatusError {
			return domain.HealthStatusError
		}
		if check.Status != domain.HealthStatusOK {
			overall = domain.HealthStatusDegraded
		}
	}
	return overall
}
