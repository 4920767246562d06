// Package metrics provides Prometheus metrics for the upstream access layer.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mindbody"

var (
	// UpstreamRequestsTotal counts physical HTTP attempts against the upstream API.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream HTTP attempts",
		},
		[]string{"endpoint", "status"},
	)

	// UpstreamRequestDuration measures upstream attempt latency.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of upstream HTTP attempts in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// QuotaCallsUsed tracks today's recorded call count.
	QuotaCallsUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_calls_used",
			Help:      "Upstream calls recorded for the current UTC day",
		},
	)

	// QuotaRejectionsTotal counts calls refused by the daily ceiling.
	QuotaRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejections_total",
			Help:      "Total number of calls refused because the daily limit was reached",
		},
	)

	// CacheLookupsTotal counts cache lookups by cache and result.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"cache", "result"},
	)

	// SyncRecordsTotal counts records upserted by bulk sync.
	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Total number of records upserted by bulk sync",
		},
		[]string{"operation"},
	)

	// TokenIssuanceTotal counts staff token issuance attempts.
	TokenIssuanceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_issuance_total",
			Help:      "Total number of staff token issuance attempts",
		},
		[]string{"result"},
	)
)

// RecordUpstreamRequest records one HTTP attempt.
func RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	UpstreamRequestsTotal.WithLabelValues(endpoint, status).Inc()
	UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetQuotaUsed publishes today's call count.
func SetQuotaUsed(calls int) {
	QuotaCallsUsed.Set(float64(calls))
}

// RecordQuotaRejection records a refused call.
func RecordQuotaRejection() {
	QuotaRejectionsTotal.Inc()
}

// RecordCacheLookup records a hit, miss or expired lookup.
func RecordCacheLookup(cache, result string) {
	CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// RecordSyncRecords adds upserted records for an operation.
func RecordSyncRecords(operation string, n int) {
	if n > 0 {
		SyncRecordsTotal.WithLabelValues(operation).Add(float64(n))
	}
}

// RecordTokenIssuance records a token issuance outcome.
func RecordTokenIssuance(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	TokenIssuanceTotal.WithLabelValues(result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr disables the listener.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
