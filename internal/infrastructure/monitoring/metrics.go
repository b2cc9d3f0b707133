package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus collectors.
type Metrics struct {
	TokensMinted        *prometheus.CounterVec
	TokenValidations    *prometheus.CounterVec
	ValidationDuration  prometheus.Histogram
	RateLimitRejections *prometheus.CounterVec
	SweepRuns           prometheus.Counter
	SweepExpiredTokens  prometheus.Counter
	DispatchEvents      *prometheus.CounterVec
}

// NewMetrics registers the collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TokensMinted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_access",
			Name:      "tokens_minted_total",
			Help:      "Tokens minted, labelled by the trigger.",
		}, []string{"reason"}),

		TokenValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_access",
			Name:      "token_validations_total",
			Help:      "Validation attempts by outcome.",
		}, []string{"outcome"}),

		ValidationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chat_access",
			Name:      "validation_duration_seconds",
			Help:      "End-to-end latency of validate-and-consume.",
			Buckets:   prometheus.DefBuckets,
		}),

		RateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_access",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter, by scope.",
		}, []string{"scope"}),

		SweepRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_access",
			Name:      "sweep_runs_total",
			Help:      "Cleanup sweep executions.",
		}),

		SweepExpiredTokens: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_access",
			Name:      "sweep_expired_tokens_total",
			Help:      "Tokens moved to expired by the sweep.",
		}),

		DispatchEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_access",
			Name:      "dispatch_events_total",
			Help:      "Dispatch events published, by result.",
		}, []string{"result"}),
	}
}
