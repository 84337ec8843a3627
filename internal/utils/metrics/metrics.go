// internal/utils/metrics/metrics.go
package metrics

import (
	"strconv"
	"time"
)

// RecordRPC записывает результат и длительность RPC-запроса
func RecordRPC(method string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	rpcCalls.WithLabelValues(method, status).Inc()
	rpcLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// SetQueueDepth обновляет глубину очереди лимитера
func SetQueueDepth(n int) {
	limiterQueueDepth.Set(float64(n))
}

// RecordProbe записывает исход проверки одного протокола
func RecordProbe(protocol, outcome string) {
	poolProbes.WithLabelValues(protocol, outcome).Inc()
}

// RecordPriceSample увеличивает счётчик сохранённых цен
func RecordPriceSample(pool string) {
	priceSamples.WithLabelValues(pool).Inc()
}

// RecordAlert увеличивает счётчик отправленных алертов
func RecordAlert(alertType string, windowMinutes int) {
	alertsEmitted.WithLabelValues(alertType, strconv.Itoa(windowMinutes)).Inc()
}

// ObserveStage записывает длительность стадии цикла обновления
func ObserveStage(stage string, duration time.Duration) {
	refreshDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordTokenFailure увеличивает счётчик ошибок токена указанного типа
func RecordTokenFailure(kind string) {
	tokenFailures.WithLabelValues(kind).Inc()
}

// SetDeadTokens обновляет число токенов, помеченных мёртвыми за цикл
func SetDeadTokens(n int) {
	deadTokens.Set(float64(n))
}
