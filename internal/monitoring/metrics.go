// Package monitoring exposes operational Prometheus metrics for the
// council daemon.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorumtrade_cycles_total",
		Help: "Council cycles run, by outcome",
	}, []string{"status"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quorumtrade_cycle_duration_seconds",
		Help:    "Wall-clock duration of one council cycle",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	ActiveCouncils = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quorumtrade_active_councils",
		Help: "Council control loops currently running",
	})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorumtrade_consensus_decisions_total",
		Help: "Consensus decisions emitted, by kind",
	}, []string{"decision"})

	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorumtrade_trades_total",
		Help: "Trade executions, by outcome reason",
	}, []string{"reason"})

	AgentFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quorumtrade_agent_failures_total",
		Help: "Agent invocations that defaulted to a hold signal",
	})

	LLMTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quorumtrade_llm_tokens_total",
		Help: "LLM tokens consumed, by direction",
	}, []string{"direction"})
)
