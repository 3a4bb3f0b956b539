package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MatchesScored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matches_scored_total",
		Help: "Vehicle matches scored and persisted",
	})
	BaseScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "match_base_score",
		Help:    "Distribution of deterministic base scores",
		Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})
	BoostApplied = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "match_personalization_boost",
		Help:    "Distribution of personalization boosts",
		Buckets: []float64{-25, -15, -5, 0, 5, 15, 25},
	})
	InteractionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "interactions_total",
		Help: "Interactions accepted at the boundary",
	}, []string{"type"})
	InteractionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interactions_rejected_total",
		Help: "Interactions rejected for an unknown type",
	})
	InteractionsJournaled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interactions_journaled_total",
		Help: "Interactions diverted to the local journal after a storage failure",
	})
	QuotaDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_denied_total",
		Help: "View requests denied by the daily plan limit",
	}, []string{"plan"})
	DigestsBuilt = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "digests_built_total",
		Help: "Daily digests built and dispatched",
	})
)

// Register adds all engine collectors to the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		MatchesScored,
		BaseScore,
		BoostApplied,
		InteractionsTotal,
		InteractionsRejected,
		InteractionsJournaled,
		QuotaDenied,
		DigestsBuilt,
	)
}
