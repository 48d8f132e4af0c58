package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики sync worker'а
// ============================================================
//
// Использование:
// - Grafana дашборд: сколько счетов в цикле, сколько сделок пишется
// - Alertmanager: рост accounts_synced_total{status="error"}

// CyclesTotal - количество завершенных циклов синхронизации
var CyclesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradejournal",
		Subsystem: "sync",
		Name:      "cycles_total",
		Help:      "Total number of completed sync cycles",
	},
)

// DueAccounts - количество счетов, полученных в последнем цикле
var DueAccounts = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradejournal",
		Subsystem: "sync",
		Name:      "due_accounts",
		Help:      "Number of due accounts returned by the gateway in the last cycle",
	},
)

// AccountsSynced - счетчик обработанных счетов по исходу
var AccountsSynced = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradejournal",
		Subsystem: "sync",
		Name:      "accounts_synced_total",
		Help:      "Total number of processed accounts by outcome",
	},
	[]string{"status"},
)

// TradesInserted - количество новых закрытых сделок
var TradesInserted = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradejournal",
		Subsystem: "sync",
		Name:      "trades_inserted_total",
		Help:      "Total number of newly inserted closed trades",
	},
)

// OpenPositionsUpserted - количество переписанных открытых позиций
var OpenPositionsUpserted = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradejournal",
		Subsystem: "sync",
		Name:      "open_positions_upserted_total",
		Help:      "Total number of upserted provisional open trades",
	},
)

// AccountSyncDuration - длительность обработки одного счета
var AccountSyncDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradejournal",
		Subsystem: "sync",
		Name:      "account_sync_duration_seconds",
		Help:      "Time to fully process one account",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	},
)

// TerminalConnectDuration - длительность логина в терминал
var TerminalConnectDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradejournal",
		Subsystem: "sync",
		Name:      "terminal_connect_duration_seconds",
		Help:      "Time to acquire a terminal session",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	},
)

// WorkerState - текущее состояние цикла (1 у активного, 0 у остальных)
var WorkerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradejournal",
		Subsystem: "sync",
		Name:      "worker_state",
		Help:      "Current engine state (1 for the active state, 0 otherwise)",
	},
	[]string{"state"},
)

// ReconciliationAnomalies - пропущенные из-за аномалий тикеты
var ReconciliationAnomalies = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradejournal",
		Subsystem: "sync",
		Name:      "reconciliation_anomalies_total",
		Help:      "Total number of tickets skipped due to malformed deal groups",
	},
)
