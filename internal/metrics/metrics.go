package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total scheduler ticks per order kind.",
		},
		[]string{"kind"},
	)
	CandidatesSeen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_candidates_total",
			Help: "Candidates fetched for evaluation per order kind.",
		},
		[]string{"kind"},
	)
	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_claims_total",
			Help: "Claim attempts by outcome (won/lost).",
		},
		[]string{"kind", "outcome"},
	)
	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_dispatches_total",
			Help: "Dispatch outcomes (filled/partial/transient/permanent).",
		},
		[]string{"kind", "outcome"},
	)
	ExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_expired_orders_total",
			Help: "Limit orders swept to expired.",
		},
	)
)

func Register(registry *prometheus.Registry) {
	registry.MustRegister(TicksTotal, CandidatesSeen, ClaimsTotal, DispatchesTotal, ExpiredTotal)
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
