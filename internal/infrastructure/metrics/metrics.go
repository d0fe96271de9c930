package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SwapMetrics содержит метрики движка обмена. Методы безопасны для nil.
type SwapMetrics struct {
	// Переходы статусов заявок
	TransitionsTotal *prometheus.CounterVec
	// Отклонённые переходы по коду ошибки
	RejectedTotal *prometheus.CounterVec
	// Повторы после конфликта версий
	ConflictRetriesTotal *prometheus.CounterVec

	// Многосторонние обмены
	MultiSwapStatusTotal *prometheus.CounterVec
	ChainsFound          prometheus.Histogram
	ChainSearchDuration  prometheus.Histogram

	// Фоновые задачи
	SweepProcessedTotal *prometheus.CounterVec
	SweepErrorsTotal    *prometheus.CounterVec
}

// NewSwapMetrics регистрирует метрики в reg. nil - регистрация в prometheus.DefaultRegisterer.
func NewSwapMetrics(reg prometheus.Registerer) *SwapMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &SwapMetrics{
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swap_transitions_total",
				Help: "Количество переходов статусов заявок на обмен",
			},
			[]string{"from", "to", "delivery_type"},
		),
		RejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swap_operations_rejected_total",
				Help: "Количество отклонённых операций над заявками",
			},
			[]string{"operation", "code"},
		),
		ConflictRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swap_conflict_retries_total",
				Help: "Повторы записи после конфликта версий",
			},
			[]string{"aggregate"},
		),
		MultiSwapStatusTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multiswap_status_total",
				Help: "Переходы статусов многосторонних обменов",
			},
			[]string{"status"},
		),
		ChainsFound: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chain_search_results",
				Help:    "Количество цепочек, найденных за один поиск",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		ChainSearchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chain_search_duration_seconds",
				Help:    "Время поиска цепочек в секундах",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		SweepProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_processed_total",
				Help: "Записи, обработанные фоновыми задачами",
			},
			[]string{"task"},
		),
		SweepErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_errors_total",
				Help: "Ошибки фоновых задач",
			},
			[]string{"task"},
		),
	}
}

func (m *SwapMetrics) RecordTransition(from, to, deliveryType string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to, deliveryType).Inc()
}

func (m *SwapMetrics) RecordRejected(operation, code string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(operation, code).Inc()
}

func (m *SwapMetrics) RecordConflictRetry(aggregate string) {
	if m == nil {
		return
	}
	m.ConflictRetriesTotal.WithLabelValues(aggregate).Inc()
}

func (m *SwapMetrics) RecordMultiSwapStatus(status string) {
	if m == nil {
		return
	}
	m.MultiSwapStatusTotal.WithLabelValues(status).Inc()
}

func (m *SwapMetrics) RecordChainSearch(found int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ChainsFound.Observe(float64(found))
	m.ChainSearchDuration.Observe(durationSeconds)
}

func (m *SwapMetrics) RecordSweep(task string, processed int, err error) {
	if m == nil {
		return
	}
	if processed > 0 {
		m.SweepProcessedTotal.WithLabelValues(task).Add(float64(processed))
	}
	if err != nil {
		m.SweepErrorsTotal.WithLabelValues(task).Inc()
	}
}
