package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 抑制原因
const (
	suppressNoChanges = "no_changes"
	suppressDuplicate = "duplicate"
)

// Metrics 审计管线的 Prometheus 指标；nil 接收者上的方法均为空操作
type Metrics struct {
	RefreshTotal              prometheus.Counter
	OperationsWrittenTotal    *prometheus.CounterVec
	OperationsSuppressedTotal *prometheus.CounterVec
	ErrorsTotal               *prometheus.CounterVec
	FlushDuration             *prometheus.HistogramVec
}

// NewMetrics 创建指标并注册到 registerer（为 nil 时不注册）
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_refresh_total",
				Help: "Total number of change set inspections",
			},
		),
		OperationsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_operations_written_total",
				Help: "Total number of operation history rows added to the unit of work",
			},
			[]string{"operation_type"},
		),
		OperationsSuppressedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_operations_suppressed_total",
				Help: "Total number of operation history rows skipped",
			},
			[]string{"reason"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_errors_total",
				Help: "Total number of audit pipeline errors",
			},
			[]string{"kind"},
		),
		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audit_flush_duration_seconds",
				Help:    "Audit flush duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RefreshTotal,
			m.OperationsWrittenTotal,
			m.OperationsSuppressedTotal,
			m.ErrorsTotal,
			m.FlushDuration,
		)
	}
	return m
}

func (m *Metrics) refreshed() {
	if m != nil {
		m.RefreshTotal.Inc()
	}
}

func (m *Metrics) written(operationType string) {
	if m != nil {
		m.OperationsWrittenTotal.WithLabelValues(operationType).Inc()
	}
}

func (m *Metrics) suppressed(reason string) {
	if m != nil {
		m.OperationsSuppressedTotal.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) failed(kind string) {
	if m != nil {
		m.ErrorsTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) observeFlush(phase string, start time.Time) {
	if m != nil {
		m.FlushDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}
