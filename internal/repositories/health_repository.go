package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
)

// DependencyCheck probes one backing service. A zero Timeout uses 1.5s.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

type DependencyHealthOption func(*probeSet)

func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(p *probeSet) {
		if clock != nil {
			p.now = clock
		}
	}
}

type probeSet struct {
	checks []DependencyCheck
	now    func() time.Time
}

var _ HealthRepository = (*probeSet)(nil)

// NewDependencyHealthRepository returns a HealthRepository that runs checks
// on every Collect.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: no dependency checks")
	}
	for i, check := range checks {
		switch {
		case strings.TrimSpace(check.Name) == "":
			return nil, fmt.Errorf("health repository: check %d has no name", i)
		case check.Check == nil:
			return nil, fmt.Errorf("health repository: check %q has no probe", check.Name)
		}
	}
	p := &probeSet{checks: append([]DependencyCheck(nil), checks...), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Collect probes all dependencies in parallel. A failing probe shows up in
// the report; Collect itself does not fail.
func (p *probeSet) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	outcomes := make([]domain.SystemHealthCheck, len(p.checks))
	var g errgroup.Group
	for i, check := range p.checks {
		g.Go(func() error {
			outcomes[i] = p.run(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]domain.SystemHealthCheck, len(p.checks))
	for i, check := range p.checks {
		checks[check.Name] = outcomes[i]
	}
	return domain.SystemHealthReport{
		Status:      domain.WorstHealth(checks),
		Checks:      checks,
		GeneratedAt: p.now(),
	}, nil
}

func (p *probeSet) run(ctx context.Context, check DependencyCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := p.now()
	err := check.Check(ctx)
	finished := p.now()

	out := domain.SystemHealthCheck{Latency: finished.Sub(started), CheckedAt: finished}
	if err == nil {
		err = ctx.Err()
	}
	switch {
	case err == nil:
		out.Status, out.Detail = domain.HealthStatusOK, "ok"
	case errors.Is(err, context.DeadlineExceeded):
		out.Status, out.Detail = domain.HealthStatusError, "timeout"
	case errors.Is(err, context.Canceled):
		out.Status, out.Detail = domain.HealthStatusError, "cancelled"
	default:
		out.Status, out.Detail = domain.HealthStatusDegraded, err.Error()
	}
	return out
}
