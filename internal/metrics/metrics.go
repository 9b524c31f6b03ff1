// Package metrics holds the Prometheus collectors for the token ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tokenledger"

// Outcome labels for Settlements.
const (
	OutcomeOK               = "ok"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeRejected         = "rejected"
	OutcomeError            = "error"
)

// Settlements counts settlement operations and withdrawal transitions by outcome.
var Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "settlements_total",
	Help:      "Settlement operations by operation and outcome.",
}, []string{"operation", "outcome"})

// SettlementDuration tracks how long each settlement transaction takes.
var SettlementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "settlement_duration_seconds",
	Help:      "Settlement transaction latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation"})

// TokensMoved sums token amounts appended to the ledger.
var TokensMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "tokens_moved_total",
	Help:      "Tokens appended to the ledger by reason and direction.",
}, []string{"reason", "direction"})

var WithdrawalTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "withdrawal",
	Name:      "transitions_total",
	Help:      "Withdrawal state transitions applied.",
}, []string{"from", "to"})

// InvariantViolations should stay at zero. Any increment is a bug.
var InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "invariant_violations_total",
	Help:      "Ledger invariant violations detected and aborted.",
})

var NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "notify",
	Name:      "dropped_total",
	Help:      "Post-commit notifications dropped because the queue was full or delivery failed.",
})
