// Package metrics defines the engine's Prometheus collectors. Counters are
// registered on the default registry and exposed via the ops endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SpendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_spends_total",
		Help: "Point spend attempts by result",
	}, []string{"result"})

	CreditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_credits_total",
		Help: "Point credits by reason",
	}, []string{"reason"})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_payments_total",
		Help: "Payment charges by validation outcome",
	}, []string{"outcome"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_deliveries_total",
		Help: "Live alert deliveries by result",
	}, []string{"result"})

	SupersedeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_supersede_failures_total",
		Help: "Prior-message retire attempts that failed",
	})

	RateLimitDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_rate_limit_denials_total",
		Help: "Rate limited actions by class",
	}, []string{"class"})

	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_jobs_total",
		Help: "Trigger queue jobs by outcome",
	}, []string{"outcome"})

	RegistryRowsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_registry_rows_swept_total",
		Help: "Notification registry rows dropped past the retention window",
	})
)
