package bot

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики для движка фандинг-арбитража
// ============================================================
//
// Используются для Grafana-дашбордов и алертов: латентность обработки
// событий, размеры очередей, состояние позиций и обнаруженные возможности.

// ============ Латентность ============

var EventToActionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "fundingarb",
		Subsystem: "engine",
		Name:      "event_to_action_latency_ms",
		Help:      "Latency from normalized event to downstream action in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	},
	[]string{"symbol", "stage"},
)

var FundingRateUpdateLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "fundingarb",
		Subsystem: "engine",
		Name:      "funding_rate_update_latency_ms",
		Help:      "Time to process a funding rate update in milliseconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
	[]string{"symbol"},
)

var PairEvaluationLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "fundingarb",
		Subsystem: "engine",
		Name:      "pair_evaluation_latency_ms",
		Help:      "Time to evaluate the best funding pair for a symbol in milliseconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2},
	},
)

var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "fundingarb",
		Subsystem: "execution",
		Name:      "order_execution_latency_ms",
		Help:      "Time to execute order on exchange in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"exchange", "side"},
)

// ============ Счётчики событий ============

var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fundingarb",
		Subsystem: "engine",
		Name:      "events_processed_total",
		Help:      "Total number of normalized events processed, by type",
	},
	[]string{"type"}, // funding_rate_received, order_status_changed, balance_changed
)

var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fundingarb",
		Subsystem: "execution",
		Name:      "trades_total",
		Help:      "Total number of completed trades",
	},
	[]string{"symbol", "result"}, // result: closed, compensating_unwind
)

var PnlTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "fundingarb",
		Subsystem: "execution",
		Name:      "pnl_total_usdt",
		Help:      "Total realized PnL in USDT",
	},
)

// ============ Состояние ============

var OpenPositions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "fundingarb",
		Subsystem: "execution",
		Name:      "open_positions",
		Help:      "Number of positions by status",
	},
	[]string{"status"}, // pending, open, partial, closing
)

var ActiveOpportunities = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "fundingarb",
		Subsystem: "engine",
		Name:      "active_opportunities",
		Help:      "Current number of ACTIVE arbitrage opportunities",
	},
)

var ExchangeConnections = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "fundingarb",
		Subsystem: "exchange",
		Name:      "connection_status",
		Help:      "Exchange connection status (1=connected, 0=disconnected)",
	},
	[]string{"exchange"},
)

var ExchangeBalance = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "fundingarb",
		Subsystem: "exchange",
		Name:      "balance_usdt",
		Help:      "Exchange balance in USDT",
	},
	[]string{"exchange"},
)

// ============ Производительность ============

var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fundingarb",
		Subsystem: "engine",
		Name:      "buffer_overflows_total",
		Help:      "Number of channel buffer overflows (events dropped)",
	},
	[]string{"buffer"},
)

var BufferBacklog = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "fundingarb",
		Subsystem: "engine",
		Name:      "buffer_backlog",
		Help:      "Current occupancy of a channel buffer relative to its capacity",
	},
	[]string{"buffer", "capacity"},
)

// ============ Арбитраж ============

var SpreadObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "fundingarb",
		Subsystem: "engine",
		Name:      "spread_observed_percent",
		Help:      "Observed funding rate spreads in percent",
		Buckets:   []float64{-1, -0.5, 0, 0.1, 0.2, 0.3, 0.5, 1, 2, 5},
	},
	[]string{"symbol"},
)

var OpportunitiesDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fundingarb",
		Subsystem: "engine",
		Name:      "opportunities_detected_total",
		Help:      "Number of arbitrage opportunities detected",
	},
	[]string{"symbol", "triggered"}, // triggered: yes, no (below threshold or wrong price direction)
)

var ConditionalOrderTriggers = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fundingarb",
		Subsystem: "risk",
		Name:      "conditional_order_triggers_total",
		Help:      "Number of conditional order (SL/TP) triggers detected by the monitor",
	},
	[]string{"exchange", "symbol", "kind"}, // kind: CloseReason срабатывания (LONG_SL_TRIGGERED, ..., BOTH_TRIGGERED)
)

// ============ Вспомогательные функции ============

func RecordFundingRateLatency(symbol string, latencyMs float64) {
	FundingRateUpdateLatency.WithLabelValues(symbol).Observe(latencyMs)
	EventsProcessed.WithLabelValues("funding_rate_received").Inc()
}

func RecordTrade(symbol, result string, pnl float64) {
	TradesTotal.WithLabelValues(symbol, result).Inc()
	if result == "closed" && pnl != 0 {
		PnlTotal.Add(pnl)
	}
}

func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}

func RecordBufferBacklog(bufferName string, capacity, length int) {
	BufferBacklog.WithLabelValues(bufferName, itoaCapacity(capacity)).Set(float64(length))
}

func itoaCapacity(capacity int) string {
	if capacity <= 0 {
		return "unbounded"
	}
	return strconv.Itoa(capacity)
}

func UpdateExchangeStatus(exchange string, connected bool, balance float64) {
	if connected {
		ExchangeConnections.WithLabelValues(exchange).Set(1)
	} else {
		ExchangeConnections.WithLabelValues(exchange).Set(0)
	}
	ExchangeBalance.WithLabelValues(exchange).Set(balance)
}

func RecordOpportunity(symbol string, triggered bool) {
	triggeredStr := "no"
	if triggered {
		triggeredStr = "yes"
	}
	OpportunitiesDetected.WithLabelValues(symbol, triggeredStr).Inc()
}

func RecordSpread(symbol string, spreadPercent float64) {
	SpreadObserved.WithLabelValues(symbol).Observe(spreadPercent)
}

func RecordConditionalOrderTrigger(exchange, symbol, kind string) {
	ConditionalOrderTriggers.WithLabelValues(exchange, symbol, kind).Inc()
}
