package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics. Components
// treat a nil *Metrics as "metrics disabled".
type Metrics struct {
	// RPC metrics
	rpcAttemptsTotal  *prometheus.CounterVec
	rpcCallDuration   *prometheus.HistogramVec
	rpcRetriesTotal   *prometheus.CounterVec
	rpcRateLimitHits  *prometheus.CounterVec
	rpcExhaustedTotal *prometheus.CounterVec

	// Orchestrator metrics
	orchestratorOpsTotal   *prometheus.CounterVec
	orchestratorOpDuration *prometheus.HistogramVec
	consistencyPollsTotal  *prometheus.CounterVec
	blockhashRetriesTotal  *prometheus.CounterVec

	// Monitor metrics
	monitorTicksTotal   *prometheus.CounterVec
	monitorTickDuration prometheus.Histogram
	walletPollErrors    *prometheus.CounterVec
	incomingTransfers   *prometheus.CounterVec
	balanceUpdatesTotal *prometheus.CounterVec

	// Ledger metrics
	ledgerWritesTotal *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		rpcAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_attempts_total",
				Help: "Total number of RPC attempts by network and status",
			},
			[]string{"network", "status"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpc_call_duration_seconds",
				Help:    "Duration of individual RPC attempts in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"network"},
		),
		rpcRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_retries_total",
				Help: "Total number of RPC retry attempts by network and reason",
			},
			[]string{"network", "reason"},
		),
		rpcRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_rate_limit_hits_total",
				Help: "Total number of RPC rate limit hits (429-class errors)",
			},
			[]string{"endpoint"},
		),
		rpcExhaustedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_exhausted_total",
				Help: "Total number of RPC calls that consumed all retry attempts",
			},
			[]string{"network"},
		),

		orchestratorOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_operations_total",
				Help: "Total number of orchestrated operations by type and status",
			},
			[]string{"operation", "status"},
		),
		orchestratorOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_operation_duration_seconds",
				Help:    "Duration of orchestrated operations in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"operation"},
		),
		consistencyPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consistency_polls_total",
				Help: "Total number of private-balance consistency polls by outcome",
			},
			[]string{"outcome"},
		),
		blockhashRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockhash_retries_total",
				Help: "Total number of retries caused by blockhash expiry",
			},
			[]string{"operation"},
		),

		monitorTicksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_ticks_total",
				Help: "Total number of balance monitor ticks by status",
			},
			[]string{"status"},
		),
		monitorTickDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "monitor_tick_duration_seconds",
				Help:    "Duration of balance monitor ticks in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		walletPollErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_poll_errors_total",
				Help: "Total number of per-wallet polling errors",
			},
			[]string{"network"},
		),
		incomingTransfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "incoming_transfers_total",
				Help: "Total number of inferred incoming transfers by network",
			},
			[]string{"network"},
		),
		balanceUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_balance_updates_total",
				Help: "Total number of persisted wallet balance updates",
			},
			[]string{"network"},
		),

		ledgerWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_writes_total",
				Help: "Total number of ledger entry writes by type and status",
			},
			[]string{"type", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// RPC metric helpers

// RecordRPCAttempt records a single RPC attempt with duration.
func (m *Metrics) RecordRPCAttempt(network, status string, duration float64) {
	m.rpcAttemptsTotal.WithLabelValues(network, status).Inc()
	m.rpcCallDuration.WithLabelValues(network).Observe(duration)
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(network, reason string) {
	m.rpcRetriesTotal.WithLabelValues(network, reason).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.rpcRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCExhausted records a call that consumed all retry attempts.
func (m *Metrics) RecordRPCExhausted(network string) {
	m.rpcExhaustedTotal.WithLabelValues(network).Inc()
}

// Orchestrator metric helpers

// RecordOperation records an orchestrated operation with duration.
func (m *Metrics) RecordOperation(operation, status string, duration float64) {
	m.orchestratorOpsTotal.WithLabelValues(operation, status).Inc()
	m.orchestratorOpDuration.WithLabelValues(operation).Observe(duration)
}

// RecordConsistencyPoll records one private-balance poll by outcome.
func (m *Metrics) RecordConsistencyPoll(outcome string) {
	m.consistencyPollsTotal.WithLabelValues(outcome).Inc()
}

// RecordBlockhashRetry records a retry caused by blockhash expiry.
func (m *Metrics) RecordBlockhashRetry(operation string) {
	m.blockhashRetriesTotal.WithLabelValues(operation).Inc()
}

// Monitor metric helpers

// RecordTick records a monitor tick with duration.
func (m *Metrics) RecordTick(status string, duration float64) {
	m.monitorTicksTotal.WithLabelValues(status).Inc()
	m.monitorTickDuration.Observe(duration)
}

// RecordWalletPollError records a per-wallet polling error.
func (m *Metrics) RecordWalletPollError(network string) {
	m.walletPollErrors.WithLabelValues(network).Inc()
}

// RecordIncomingTransfer records an inferred incoming transfer.
func (m *Metrics) RecordIncomingTransfer(network string) {
	m.incomingTransfers.WithLabelValues(network).Inc()
}

// RecordBalanceUpdate records a persisted wallet balance update.
func (m *Metrics) RecordBalanceUpdate(network string) {
	m.balanceUpdatesTotal.WithLabelValues(network).Inc()
}

// Ledger metric helpers

// RecordLedgerWrite records a ledger entry write.
func (m *Metrics) RecordLedgerWrite(entryType, status string) {
	m.ledgerWritesTotal.WithLabelValues(entryType, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}
