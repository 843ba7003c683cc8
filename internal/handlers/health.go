package handlers

import (
	"maps"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/httpx"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/requestctx"
	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	now    func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) { h.system = system }
}

func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = build }
}

func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

type healthzResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

// Healthz reports liveness. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.now().UTC()
	httpx.WriteJSON(w, http.StatusOK, healthzResponse{
		Status:      string(domain.HealthStatusOK),
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

type readyzCheck struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Detail    string `json:"detail,omitempty"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readyzResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version,omitempty"`
	CommitSHA   string                 `json:"commitSha,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	Uptime      string                 `json:"uptime,omitempty"`
	GeneratedAt string                 `json:"generatedAt"`
	Checks      map[string]readyzCheck `json:"checks"`
	Details     []string               `json:"details,omitempty"`
}

// Readyz answers 503 unless the system service reports every dependency ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		writeUnavailable(ctx, w, "system service")
		return
	}
	report, err := h.system.HealthReport(ctx)
	if err != nil {
		requestctx.Logger(ctx).Warn("health: readiness report failed", zap.Error(err))
		writeUnavailable(ctx, w, "readiness report")
		return
	}

	status := http.StatusServiceUnavailable
	if report.Status == domain.HealthStatusOK {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, h.readyzBody(report))
}

func (h *HealthHandlers) readyzBody(report services.SystemHealthReport) readyzResponse {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = h.now()
	}
	body := readyzResponse{
		Status:      string(report.Status),
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		GeneratedAt: formatTime(report.GeneratedAt),
		Checks:      make(map[string]readyzCheck, len(report.Checks)),
	}
	if report.Uptime > 0 {
		body.Uptime = report.Uptime.Truncate(time.Second).String()
	}
	for _, name := range slices.Sorted(maps.Keys(report.Checks)) {
		c := report.Checks[name]
		body.Checks[name] = readyzCheck{
			Status:    string(c.Status),
			LatencyMS: c.Latency.Milliseconds(),
			Detail:    c.Detail,
			CheckedAt: formatTime(c.CheckedAt),
		}
		if c.Status != domain.HealthStatusOK && c.Detail != "" {
			body.Details = append(body.Details, name+": "+c.Detail)
		}
	}
	return body
}
