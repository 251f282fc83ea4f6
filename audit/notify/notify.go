// Package notify 在事务提交后把审计分组发布到消息传输
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"audittrail/audit"
	"audittrail/errors"
	"audittrail/logging"
	"audittrail/messaging"
	"audittrail/patterns/retry"
)

// MessageType 已提交审计分组的消息类型
const MessageType = "audit.service_history.committed"

// Operation 通知中的单条审计行摘要
type Operation struct {
	EntityID      *int64 `json:"entity_id"`
	EntityName    string `json:"entity_name"`
	TableName     string `json:"table_name"`
	OperationType string `json:"operation_type"`
}

// Event 消息负载
type Event struct {
	ServiceHistoryID int64       `json:"service_history_id"`
	CorrelationID    string      `json:"correlation_id"`
	Name             string      `json:"name"`
	ChangedBy        string      `json:"changed_by"`
	ChangedOn        time.Time   `json:"changed_on"`
	Operations       []Operation `json:"operations"`
}

// NewEvent 由已提交分组构造负载
func NewEvent(c audit.Committed) Event {
	sh := c.ServiceHistory
	ev := Event{
		ServiceHistoryID: sh.ID,
		CorrelationID:    sh.CorrelationID,
		Name:             sh.Name,
		ChangedBy:        sh.ChangedBy,
		ChangedOn:        sh.ChangedOn,
		Operations:       make([]Operation, 0, len(c.Operations)),
	}
	for _, oh := range c.Operations {
		ev.Operations = append(ev.Operations, Operation{
			EntityID:      oh.EntityID,
			EntityName:    oh.EntityName,
			TableName:     oh.TableName,
			OperationType: oh.OperationType,
		})
	}
	return ev
}

// DecodeEvent 解析消费端收到的消息
func DecodeEvent(message messaging.IMessage) (Event, error) {
	var ev Event
	if message.GetType() != MessageType {
		return ev, errors.NewError(errors.ErrCodeInvalidInput, "unexpected message type").
			WithContext("type", message.GetType())
	}
	if err := messaging.DecodePayload(message, &ev); err != nil {
		return ev, errors.WrapError(err, errors.ErrCodeMessaging, "decode audit event")
	}
	return ev, nil
}

// Option 通知器选项
type Option func(*Notifier)

// WithLogger 指定日志器
func WithLogger(l logging.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithSource 写入消息元数据的来源标识
func WithSource(source string) Option {
	return func(n *Notifier) { n.source = source }
}

// WithRetry 发布失败时的重试策略；重试沿用同一消息 ID
func WithRetry(cfg retry.Config) Option {
	return func(n *Notifier) { n.retry = cfg }
}

// Notifier 实现 audit.Notifier
type Notifier struct {
	publisher messaging.IPublisher
	logger    logging.Logger
	source    string
	retry     retry.Config
}

// New 创建通知器
func New(publisher messaging.IPublisher, opts ...Option) *Notifier {
	n := &Notifier{
		publisher: publisher,
		logger:    logging.ComponentLogger("audit.notify"),
		source:    "audittrail",
		retry:     retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify 发布一条消息；消息 ID 为新的 UUID
func (n *Notifier) Notify(ctx context.Context, c audit.Committed) error {
	if c.ServiceHistory == nil {
		return nil
	}
	ev := NewEvent(c)
	msg := messaging.NewMessage(uuid.NewString(), MessageType, ev)
	msg.SetMetadata("correlation_id", ev.CorrelationID)
	msg.SetMetadata("source", n.source)

	err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
		err := n.publisher.Publish(ctx, msg)
		if err != nil {
			n.logger.Warn(ctx, "发布审计事件失败",
				logging.Int("attempt", attempt),
				logging.Int64("service_history_id", ev.ServiceHistoryID),
				logging.Error(err))
		}
		return err
	}, n.retry)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeMessaging, "publish audit event").
			WithContext("service_history_id", ev.ServiceHistoryID)
	}
	n.logger.Debug(ctx, "审计分组已发布",
		logging.Int64("service_history_id", ev.ServiceHistoryID),
		logging.Int("operations", len(ev.Operations)))
	return nil
}

var _ audit.Notifier = (*Notifier)(nil)
