// Package memory 提供进程内的消息传输实现
// 适用于单机部署、开发环境和测试场景
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"audittrail/logging"
	"audittrail/messaging"
)

// Transport 进程内消息传输
//
// 特性:
//   - 发布时在调用方协程内同步分发
//   - 支持通配符 "*" 订阅全部消息
//   - 处理器错误只记录，不影响发布方和其他处理器
//   - 并发安全
type Transport struct {
	handlers map[string][]messaging.IMessageHandler
	logger   logging.Logger
	running  bool
	mutex    sync.RWMutex

	published atomic.Int64
	failed    atomic.Int64
}

// Option 传输选项
type Option func(*Transport)

// WithLogger 指定日志器
func WithLogger(l logging.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTransport 创建内存传输实例
func NewTransport(opts ...Option) *Transport {
	t := &Transport{
		handlers: make(map[string][]messaging.IMessageHandler),
		logger:   logging.ComponentLogger("transport.memory"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Publish 把消息分发给精确匹配与通配符处理器
//
// 返回:
//   - error: 传输未启动或上下文已取消时返回错误
func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mutex.RLock()
	if !t.running {
		t.mutex.RUnlock()
		return fmt.Errorf("memory transport is not running")
	}
	// 拷贝到新的切片，避免在读锁释放后被并发修改
	exact := t.handlers[message.GetType()]
	wildcard := t.handlers[messaging.WildcardType]
	handlers := make([]messaging.IMessageHandler, 0, len(exact)+len(wildcard))
	handlers = append(handlers, exact...)
	handlers = append(handlers, wildcard...)
	t.mutex.RUnlock()

	t.published.Add(1)
	for _, handler := range handlers {
		if err := handler.Handle(ctx, message); err != nil {
			t.failed.Add(1)
			t.logger.Warn(ctx, "message handler failed",
				logging.String("handler", handler.Type()),
				logging.String("message_type", message.GetType()),
				logging.String("message_id", message.GetID()),
				logging.Error(err))
		}
	}
	return nil
}

// Subscribe 订阅消息处理器，同一类型可有多个处理器
func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	if handler == nil {
		return fmt.Errorf("handler is nil")
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	return nil
}

// Start 启动传输
func (t *Transport) Start(context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.running {
		return fmt.Errorf("memory transport already running")
	}
	t.running = true
	return nil
}

// Close 停止传输；已注册的处理器保留，可再次 Start
func (t *Transport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.running = false
	return nil
}

// Stats 获取统计信息
func (t *Transport) Stats() messaging.TransportStats {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	handlerCount := 0
	messageTypes := make([]string, 0, len(t.handlers))
	for messageType, handlers := range t.handlers {
		messageTypes = append(messageTypes, messageType)
		handlerCount += len(handlers)
	}

	return messaging.TransportStats{
		Running:      t.running,
		HandlerCount: handlerCount,
		MessageTypes: messageTypes,
		Published:    t.published.Load(),
		Failed:       t.failed.Load(),
	}
}

var _ messaging.Transport = (*Transport)(nil)
