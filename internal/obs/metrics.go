package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by outcome and reason.",
		},
		[]string{"outcome", "reason"},
	)

	loginOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	tokenFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validation_failures_total",
			Help: "Token validation failures by kind.",
		},
		[]string{"kind"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_cache_lookups_total",
			Help: "Permission cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Init registers the auth metrics in the default registry.
func Init() {
	prometheus.MustRegister(authzDecisions, loginOutcomes, tokenFailures, cacheLookups)
}

// Handler exposes the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision records one authorization decision.
func ObserveDecision(outcome, reason string) {
	authzDecisions.WithLabelValues(outcome, reason).Inc()
}

// ObserveLogin records one login attempt outcome.
func ObserveLogin(outcome string) {
	loginOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveTokenFailure records one token validation failure by kind.
func ObserveTokenFailure(kind string) {
	tokenFailures.WithLabelValues(kind).Inc()
}

// ObserveCacheLookup records one permission cache lookup result
// (hit, miss or error).
func ObserveCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}
