// internal/utils/metrics/collector.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricType представляет тип метрики
type MetricType string

const (
	RPCCallsType        MetricType = "rpc_calls"
	RPCLatencyType      MetricType = "rpc_latency"
	LimiterQueueType    MetricType = "limiter_queue"
	PoolProbeType       MetricType = "pool_probe"
	PriceSamplesType    MetricType = "price_samples"
	AlertsType          MetricType = "alerts"
	RefreshDurationType MetricType = "refresh_duration"
	TokenFailuresType   MetricType = "token_failures"
	DeadTokensType      MetricType = "dead_tokens"
)

var registerOnce sync.Once

// Register регистрирует все метрики в переданном реестре. Повторные вызовы игнорируются.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		metricsMap := map[MetricType]prometheus.Collector{
			RPCCallsType:        rpcCalls,
			RPCLatencyType:      rpcLatency,
			LimiterQueueType:    limiterQueueDepth,
			PoolProbeType:       poolProbes,
			PriceSamplesType:    priceSamples,
			AlertsType:          alertsEmitted,
			RefreshDurationType: refreshDuration,
			TokenFailuresType:   tokenFailures,
			DeadTokensType:      deadTokens,
		}
		for _, metric := range metricsMap {
			reg.MustRegister(metric)
		}
	})
}

// Reset сбрасывает все векторы (полезно для тестирования)
func Reset() {
	rpcCalls.Reset()
	rpcLatency.Reset()
	poolProbes.Reset()
	priceSamples.Reset()
	alertsEmitted.Reset()
	tokenFailures.Reset()
	limiterQueueDepth.Set(0)
	deadTokens.Set(0)
}

var (
	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletwatch",
			Name:      "rpc_calls_total",
			Help:      "Total number of upstream RPC calls",
		},
		[]string{"method", "status"},
	)

	rpcLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "walletwatch",
			Name:      "rpc_latency_seconds",
			Help:      "RPC request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"method"},
	)

	limiterQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "walletwatch",
			Name:      "limiter_queue_depth",
			Help:      "Tasks waiting for dispatch in the rate limiter",
		},
	)

	poolProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletwatch",
			Name:      "pool_probes_total",
			Help:      "Pool probes by protocol and outcome",
		},
		[]string{"protocol", "outcome"},
	)

	priceSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletwatch",
			Name:      "price_samples_total",
			Help:      "Price samples appended per pool variant",
		},
		[]string{"pool"},
	)

	alertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletwatch",
			Name:      "alerts_total",
			Help:      "Alerts emitted by type and window",
		},
		[]string{"type", "window"},
	)

	refreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "walletwatch",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a refresh cycle stage",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"stage"},
	)

	tokenFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletwatch",
			Name:      "token_failures_total",
			Help:      "Per-token permanent failures by kind",
		},
		[]string{"kind"},
	)

	deadTokens = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "walletwatch",
			Name:      "dead_tokens_marked",
			Help:      "Tokens marked dead during the last refresh cycle",
		},
	)
)
