// Package metrics exposes Prometheus metrics for device flows and web sessions
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Provider token polls keyed by result: an OAuth error code, success or transport_error
	ProviderPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devicetoken_provider_polls_total",
		Help: "Total number of token endpoint polls grouped by result",
	}, []string{"result"})
	FlowOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devicetoken_flow_outcomes_total",
		Help: "Total number of device flows finished grouped by terminal outcome",
	}, []string{"outcome"})

	// Session lifecycle metrics
	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devicetoken_sessions_created_total",
		Help: "Total number of web sessions created",
	})
	SessionsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devicetoken_sessions_evicted_total",
		Help: "Total number of web sessions removed after going idle",
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "devicetoken_sessions_active",
		Help: "Number of web sessions currently held by the registry",
	})

	// HTTP
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devicetoken_rate_limited_total",
		Help: "Total number of device code requests rejected by the per client rate limit",
	})
)

func init() {
	prometheus.MustRegister(ProviderPolls)
	prometheus.MustRegister(FlowOutcomes)
	prometheus.MustRegister(SessionsCreated)
	prometheus.MustRegister(SessionsEvicted)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(RateLimited)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Recorder feeds engine and registry events into the package metrics.
// The zero value is ready to use.
type Recorder struct{}

// ObservePoll counts one provider poll
func (Recorder) ObservePoll(result string) {
	ProviderPolls.WithLabelValues(result).Inc()
}

// ObserveOutcome counts one finished flow
func (Recorder) ObserveOutcome(kind string) {
	FlowOutcomes.WithLabelValues(kind).Inc()
}

// SessionCreated counts one new session
func (Recorder) SessionCreated() {
	SessionsCreated.Inc()
}

// EvictedSessions counts sessions removed for idleness
func (Recorder) EvictedSessions(n int) {
	SessionsEvicted.Add(float64(n))
}

// ActiveSessions records the current registry size
func (Recorder) ActiveSessions(n int) {
	SessionsActive.Set(float64(n))
}
