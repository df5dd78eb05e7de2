package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	ledgerDriftCounter    *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
	transactionCounter    *prometheus.CounterVec
	fxQuoteCounter        *prometheus.CounterVec
	notificationCounter   *prometheus.CounterVec
	notificationQueue     prometheus.Gauge

	// StoreRetries counts ledger units retried after a serialization failure
	// or deadlock. It is usable before Init.
	StoreRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_store_retries_total",
		Help: "Ledger transactions retried after serialization failure or deadlock",
	})
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerDriftCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_wallet_drift_total",
			Help: "Wallets whose balance diverged from the ledger during reconciliation",
		}, []string{"currency"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		transactionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_transactions_total",
			Help: "Exchange, transfer and credit outcomes",
		}, []string{"type", "result"})

		fxQuoteCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_quotes_total",
			Help: "Resolved exchange rates by source",
		}, []string{"source"})

		notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by sink and result",
		}, []string{"sink", "result"})

		notificationQueue = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_outbox_size",
			Help: "Notifications waiting in the outbox",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerDriftCounter,
			idempotencyCounter,
			workerRunCounter,
			transactionCounter,
			fxQuoteCounter,
			notificationCounter,
			notificationQueue,
			StoreRetries,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerDrift(currency string) {
	if ledgerDriftCounter == nil {
		return
	}
	ledgerDriftCounter.WithLabelValues(currency).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

// IncrementTransaction records one engine outcome. result is "ok" or an
// error code.
func IncrementTransaction(txType, result string) {
	if transactionCounter == nil {
		return
	}
	transactionCounter.WithLabelValues(txType, result).Inc()
}

func IncrementFXQuote(source string) {
	if fxQuoteCounter == nil {
		return
	}
	fxQuoteCounter.WithLabelValues(source).Inc()
}

func IncrementNotification(sink, result string) {
	if notificationCounter == nil {
		return
	}
	notificationCounter.WithLabelValues(sink, result).Inc()
}

func SetNotificationQueueSize(size int) {
	if notificationQueue == nil {
		return
	}
	notificationQueue.Set(float64(size))
}
