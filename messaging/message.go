// Package messaging 审计通知的消息模型与传输接口
package messaging

import (
	"time"

	"github.com/google/uuid"
)

// IMessage 传输层看到的消息
type IMessage interface {
	GetID() string
	GetType() string
	GetTimestamp() time.Time
	// GetPayload 进程内为原始对象，反序列化后为 json.RawMessage
	GetPayload() any
	GetMetadata() map[string]any
}

// Message IMessage 的默认实现
type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   any            `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage 创建消息；id 为空时生成随机 UUID。
// 需要幂等投递的调用方应传入稳定的 id，传输层以它去重。
func NewMessage(id, messageType string, payload any) *Message {
	if id == "" {
		id = uuid.NewString()
	}
	return &Message{
		ID:        id,
		Type:      messageType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  map[string]any{},
	}
}

func (m *Message) GetID() string           { return m.ID }
func (m *Message) GetType() string         { return m.Type }
func (m *Message) GetTimestamp() time.Time { return m.Timestamp }
func (m *Message) GetPayload() any         { return m.Payload }

func (m *Message) GetMetadata() map[string]any {
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	return m.Metadata
}

// SetMetadata 空值不写入
func (m *Message) SetMetadata(key string, value any) {
	if value == nil || value == "" {
		return
	}
	m.GetMetadata()[key] = value
}
