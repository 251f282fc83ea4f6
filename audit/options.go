package audit

import (
	"context"

	"audittrail/logging"
)

// Notifier 接收已提交的审计分组
type Notifier interface {
	Notify(ctx context.Context, committed Committed) error
}

// Committed 一次提交产生的锚点及其审计行
type Committed struct {
	ServiceHistory *ServiceHistory
	Operations     []*OperationHistory
}

// Option 处理器选项
type Option func(*Handler)

// WithLogger 指定日志器
func WithLogger(l logging.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithPrincipal 指定操作人来源；上下文中的 WithOperator 优先
func WithPrincipal(p PrincipalProvider) Option {
	return func(h *Handler) { h.principal = p }
}

// WithClock 指定时间来源
func WithClock(c Clock) Option {
	return func(h *Handler) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithMetrics 指定指标
func WithMetrics(m *Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithNotifier 提交后通知
func WithNotifier(n Notifier) Option {
	return func(h *Handler) { h.notifier = n }
}
