// Package metrics holds the Prometheus collectors for the order engine.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cafe_order_transitions_total",
			Help: "Order status transitions committed",
		},
		[]string{"from", "to"},
	)

	Merges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cafe_order_merges_total",
			Help: "Merge commits by result",
		},
		[]string{"result"},
	)

	StatsDeltas = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cafe_stats_deltas_total",
			Help: "Stats cache delta applications by bucket",
		},
		[]string{"bucket"},
	)

	StatsRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cafe_stats_repairs_total",
			Help: "Stats cache rows rewritten by reconciliation",
		},
	)

	WriteConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cafe_write_conflicts_total",
			Help: "Optimistic version conflicts by operation",
		},
		[]string{"operation"},
	)
)

// Register adds every collector to reg. Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{OrderTransitions, Merges, StatsDeltas, StatsRepairs, WriteConflicts} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}
