package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decision metrics
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antigravity_decisions_total",
			Help: "Total number of cognitive decisions produced",
		},
		[]string{"archetype", "recommendation"},
	)

	DecisionScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "antigravity_decision_score",
			Help:    "Weighted decision score distribution",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	OutcomesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antigravity_outcomes_recorded_total",
			Help: "Execution outcomes correlated to a prior decision",
		},
		[]string{"archetype", "status"},
	)

	OutcomesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antigravity_outcomes_dropped_total",
			Help: "Outcomes dropped because the task was not found in short-term history",
		},
	)

	ThresholdValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "antigravity_decision_threshold",
			Help: "Current value of each decision threshold",
		},
		[]string{"threshold"},
	)

	ThresholdRecalibrations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antigravity_threshold_recalibrations_total",
			Help: "Total number of threshold optimizer runs",
		},
	)

	// Meta-learning metrics
	ExperienceReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antigravity_experience_reports_total",
			Help: "Skill experience reports recorded",
		},
		[]string{"status"},
	)

	ConfidenceCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antigravity_confidence_cache_hits_total",
			Help: "Confidence matrix lookups served from the local cache",
		},
	)

	ConfidenceCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antigravity_confidence_cache_misses_total",
			Help: "Confidence matrix lookups that required a storage fetch",
		},
	)

	ConfidenceFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antigravity_confidence_fallbacks_total",
			Help: "Confidence lookups served from the in-memory fallback scores",
		},
	)

	QuarantinedSkills = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "antigravity_quarantined_skills",
			Help: "Number of skills currently quarantined",
		},
	)

	MatrixVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "antigravity_matrix_version",
			Help: "Version of the global confidence matrix held by this instance",
		},
	)

	MatrixRecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "antigravity_matrix_recompute_duration_seconds",
			Help:    "Duration of global confidence matrix recomputation",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Healing metrics
	HealingAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antigravity_healing_attempts_total",
			Help: "Healing orchestrations by resulting strategy",
		},
		[]string{"strategy"},
	)

	HealingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antigravity_healing_cache_hits_total",
			Help: "Healing lookups satisfied by a cached solution",
		},
	)

	HealingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antigravity_healing_cache_misses_total",
			Help: "Healing lookups with no cached solution above the confidence cutoff",
		},
	)

	HealingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antigravity_healing_events_total",
			Help: "Healing events recorded by outcome",
		},
		[]string{"outcome"},
	)

	HealingEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antigravity_healing_events_dropped_total",
			Help: "Healing events recorded against an unknown error signature",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "antigravity_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antigravity_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips to open",
		},
		[]string{"name"},
	)
)
