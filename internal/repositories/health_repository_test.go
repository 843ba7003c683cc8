package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
)

func healthy(context.Context) error { return nil }

func TestDependencyHealthRepositoryCollect(t *testing.T) {
	blocked := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	cases := []struct {
		name    string
		checks  []DependencyCheck
		status  domain.HealthStatus
		details map[string]string
	}{
		{
			name:    "all healthy",
			checks:  []DependencyCheck{{Name: "firestore", Check: healthy}, {Name: "redis", Check: healthy}},
			status:  domain.HealthStatusOK,
			details: map[string]string{"firestore": "ok", "redis": "ok"},
		},
		{
			name: "failing probe degrades",
			checks: []DependencyCheck{
				{Name: "firestore", Check: healthy},
				{Name: "secretManager", Check: func(context.Context) error { return errors.New("permission denied") }},
			},
			status:  domain.HealthStatusDegraded,
			details: map[string]string{"firestore": "ok", "secretManager": "permission denied"},
		},
		{
			name: "timeout is an error",
			checks: []DependencyCheck{
				{Name: "redis", Timeout: 5 * time.Millisecond, Check: blocked},
				{Name: "secretManager", Check: func(context.Context) error { return errors.New("unavailable") }},
			},
			status:  domain.HealthStatusError,
			details: map[string]string{"redis": "timeout", "secretManager": "unavailable"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := NewDependencyHealthRepository(tc.checks)
			if err != nil {
				t.Fatalf("NewDependencyHealthRepository: %v", err)
			}
			report, err := repo.Collect(context.Background())
			if err != nil {
				t.Fatalf("Collect returned error: %v", err)
			}
			if report.Status != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, report.Status)
			}
			for name, detail := range tc.details {
				if got := report.Checks[name].Detail; got != detail {
					t.Fatalf("%s: expected detail %q, got %q", name, detail, got)
				}
			}
		})
	}
}

func TestDependencyHealthRepositoryUsesClock(t *testing.T) {
	at := time.Date(2025, time.May, 20, 8, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository(
		[]DependencyCheck{{Name: "firestore", Check: healthy}},
		WithDependencyClock(func() time.Time { return at }),
	)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	report, _ := repo.Collect(context.Background())
	if !report.GeneratedAt.Equal(at) || !report.Checks["firestore"].CheckedAt.Equal(at) {
		t.Fatalf("expected timestamps from the injected clock, got %+v", report)
	}
}

func TestNewDependencyHealthRepositoryRejectsBadChecks(t *testing.T) {
	for name, checks := range map[string][]DependencyCheck{
		"none":     nil,
		"no name":  {{Check: healthy}},
		"no probe": {{Name: "redis"}},
	} {
		if _, err := NewDependencyHealthRepository(checks); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
