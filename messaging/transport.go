package messaging

import "context"

// WildcardType 订阅全部消息类型
const WildcardType = "*"

// IPublisher 发布端；notify 只依赖这一层
type IPublisher interface {
	Publish(ctx context.Context, message IMessage) error
}

// IMessageHandler 订阅方回调；Type 只用于日志
type IMessageHandler interface {
	Handle(ctx context.Context, message IMessage) error
	Type() string
}

// HandlerFunc 把函数包装为具名处理器
func HandlerFunc(name string, fn func(ctx context.Context, message IMessage) error) IMessageHandler {
	return handlerFunc{name: name, fn: fn}
}

type handlerFunc struct {
	name string
	fn   func(ctx context.Context, message IMessage) error
}

func (h handlerFunc) Handle(ctx context.Context, m IMessage) error { return h.fn(ctx, m) }
func (h handlerFunc) Type() string                                { return h.name }

// Transport 可订阅的传输，目前只有进程内实现
type Transport interface {
	IPublisher
	Subscribe(messageType string, handler IMessageHandler) error
	Start(ctx context.Context) error
	Close() error
	Stats() TransportStats
}

// TransportStats 发布计数；Failed 对进程内传输统计处理器错误，对外部传输统计发布错误
type TransportStats struct {
	Running      bool     `json:"running"`
	HandlerCount int      `json:"handler_count"`
	MessageTypes []string `json:"message_types"`
	Published    int64    `json:"published"`
	Failed       int64    `json:"failed"`
}
