package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "gasledger_"

	resultSuccess = "success"
	resultError   = "error"

	rechargeAbsorbed  = "absorbed"
	rechargeDuplicate = "duplicate"
	rechargeMalformed = "malformed"

	fetchOutcomeOK      = "ok"
	fetchOutcomeAuth    = "auth_expired"
	fetchOutcomeNetwork = "network_error"
	fetchOutcomeNoData  = "no_data"
)

var (
	registerOnce sync.Once

	cycleTotal   *prometheus.CounterVec
	cycleLatency *prometheus.HistogramVec

	rechargeEvents *prometheus.CounterVec

	upstreamFetches *prometheus.CounterVec

	storeSaveTotal   *prometheus.CounterVec
	storeSaveLatency *prometheus.HistogramVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec

	entryBalance    *prometheus.GaugeVec
	entryMonthUsage *prometheus.GaugeVec
)

// Init registers reconciliation metrics and, when a database handle is
// supplied, its pool gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		cycleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycles_total",
				Help: "Total reconciliation cycles by result",
			},
			[]string{"result"},
		)
		cycleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cycle_latency_seconds",
				Help:    "Reconciliation cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		rechargeEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "recharge_events_total",
				Help: "Recharge events seen by disposition",
			},
			[]string{"disposition"},
		)

		upstreamFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upstream_fetches_total",
				Help: "Upstream snapshot fetches by outcome",
			},
			[]string{"outcome"},
		)

		storeSaveTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_saves_total",
				Help: "History store saves by backend and result",
			},
			[]string{"backend", "result"},
		)
		storeSaveLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "store_save_latency_seconds",
				Help:    "History store save latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "result"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Usage report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Usage report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		entryBalance = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "entry_balance",
				Help: "Last reconciled account balance per entry",
			},
			[]string{"entry"},
		)
		entryMonthUsage = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "entry_month_usage",
				Help: "Reconciled billing-month usage per entry",
			},
			[]string{"entry"},
		)

		prometheus.MustRegister(
			cycleTotal,
			cycleLatency,
			rechargeEvents,
			upstreamFetches,
			storeSaveTotal,
			storeSaveLatency,
			reportExportTotal,
			reportExportLatency,
			entryBalance,
			entryMonthUsage,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveCycle records one reconciliation cycle.
func ObserveCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if cycleTotal != nil {
		cycleTotal.WithLabelValues(result).Inc()
	}
	if cycleLatency != nil {
		cycleLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddRechargeEvents increments the recharge disposition counter by count.
func AddRechargeEvents(disposition string, count int) {
	if count <= 0 {
		return
	}
	if disposition == "" {
		disposition = "unknown"
	}
	if rechargeEvents != nil {
		rechargeEvents.WithLabelValues(disposition).Add(float64(count))
	}
}

// IncUpstreamFetch increments the snapshot fetch counter.
func IncUpstreamFetch(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if upstreamFetches != nil {
		upstreamFetches.WithLabelValues(outcome).Inc()
	}
}

// ObserveStoreSave records one history store save.
func ObserveStoreSave(backend, result string, duration time.Duration) {
	if backend == "" {
		backend = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if storeSaveTotal != nil {
		storeSaveTotal.WithLabelValues(backend, result).Inc()
	}
	if storeSaveLatency != nil {
		storeSaveLatency.WithLabelValues(backend, result).Observe(duration.Seconds())
	}
}

// ObserveReportExport records one report export.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// SetEntryBalance publishes the last reconciled balance for an entry.
func SetEntryBalance(entryID string, balance float64) {
	if entryID == "" {
		return
	}
	if entryBalance != nil {
		entryBalance.WithLabelValues(entryID).Set(balance)
	}
}

// SetEntryMonthUsage publishes the reconciled month usage for an entry.
func SetEntryMonthUsage(entryID string, usage float64) {
	if entryID == "" {
		return
	}
	if entryMonthUsage != nil {
		entryMonthUsage.WithLabelValues(entryID).Set(usage)
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	RechargeAbsorbed  = rechargeAbsorbed
	RechargeDuplicate = rechargeDuplicate
	RechargeMalformed = rechargeMalformed

	FetchOutcomeOK      = fetchOutcomeOK
	FetchOutcomeAuth    = fetchOutcomeAuth
	FetchOutcomeNetwork = fetchOutcomeNetwork
	FetchOutcomeNoData  = fetchOutcomeNoData
)
