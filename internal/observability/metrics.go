package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the clearing engine.
type Metrics struct {
	// --- Operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	BlockHeight prometheus.Gauge
	EventSeq    prometheus.Gauge

	// --- Solvency ---
	BadDebtRealized *prometheus.CounterVec
	PrepaidBadDebt  *prometheus.GaugeVec
	Liquidations    *prometheus.CounterVec
	LiquidationFees *prometheus.CounterVec
	RestrictionMode *prometheus.CounterVec

	// --- Funding ---
	FundingSettled    *prometheus.CounterVec
	PositionsAdjusted *prometheus.CounterVec

	// --- Outbox ---
	EventsPersisted prometheus.Counter
	PublishDrops    prometheus.Counter
	PersistErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clearing_ops_applied_total",
			Help: "Operations successfully applied by the engine",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clearing_ops_rejected_total",
			Help: "Operations rejected by the engine",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clearing_op_duration_seconds",
			Help:    "Engine operation latency",
			Buckets: opBuckets,
		}, []string{"op"}),

		BlockHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "clearing_block_height",
			Help: "Current ordering-unit (block) height",
		}),

		EventSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "clearing_event_sequence",
			Help: "Last assigned audit event sequence",
		}),

		BadDebtRealized: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clearing_bad_debt_realized_total",
			Help: "Bad debt realized against the reserve, in quote units",
		}, []string{"token"}),

		PrepaidBadDebt: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clearing_prepaid_bad_debt",
			Help: "Prepaid bad-debt balance per token, in quote units",
		}, []string{"token"}),

		Liquidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clearing_liquidations_total",
			Help: "Positions liquidated",
		}, []string{"market"}),

		LiquidationFees: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clearing_liquidation_fees_total",
			Help: "Fees paid to liquidators, in quote units",
		}, []string{"market"}),

		RestrictionMode: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clearing_restriction_mode_entered_total",
			Help: "Restriction-mode entries per market",
		}, []string{"market"}),

		FundingSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clearing_funding_settled_total",
			Help: "Funding periods settled per market",
		}, []string{"market"}),

		PositionsAdjusted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clearing_positions_adjusted_total",
			Help: "Liquidity-rebasing adjustments applied",
		}, []string{"market"}),

		EventsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clearing_events_persisted_total",
			Help: "Audit events written to the event log",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clearing_publish_drops_total",
			Help: "Audit events dropped by the non-blocking publish channel",
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clearing_persist_errors_total",
			Help: "Event-log write failures",
		}, []string{"kind"}),
	}
}
