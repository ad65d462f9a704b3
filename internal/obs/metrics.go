package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rate limit decision outcomes.
const (
	OutcomeAllowed   = "allowed"
	OutcomeThrottled = "throttled"
	OutcomeBlocked   = "blocked"
	OutcomeError     = "error"
)

// Session protocol outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRotated  = "rotated"
	OutcomeReuse    = "reuse"
	OutcomeExpired  = "expired"
	OutcomeRejected = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	RateLimitDecisions *prometheus.CounterVec
	ViolationBlocks    prometheus.Counter
	AuthAttempts       *prometheus.CounterVec
	RefreshOutcomes    *prometheus.CounterVec
	FamiliesRevoked    prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// NewMetrics registers every collector on a private registry so that several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "botgate_ratelimit_decisions_total", Help: "Rate limit gate decisions",
		}, []string{"tier", "outcome"}),
		ViolationBlocks: f.NewCounter(prometheus.CounterOpts{
			Name: "botgate_violation_blocks_total", Help: "Identifiers placed under a temporary block",
		}),
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "botgate_auth_attempts_total", Help: "Register and login attempts",
		}, []string{"operation", "outcome"}),
		RefreshOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "botgate_refresh_outcomes_total", Help: "Refresh token rotation outcomes",
		}, []string{"outcome"}),
		FamiliesRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "botgate_session_families_revoked_total", Help: "Session families revoked after reuse",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "botgate_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
