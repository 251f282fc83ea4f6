package messaging

import (
	"encoding/json"
	"time"
)

// Envelope 跨进程传输的消息格式；时间戳为 Unix 纳秒
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  map[string]any  `json:"metadata"`
}

// Encode 序列化消息；零时间戳使用当前时间
func Encode(message IMessage) ([]byte, error) {
	env, err := ToEnvelope(message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// ToEnvelope 把消息转换为 Envelope，负载预先编码为 JSON
func ToEnvelope(message IMessage) (Envelope, error) {
	payload, err := json.Marshal(message.GetPayload())
	if err != nil {
		return Envelope{}, err
	}
	metadata := message.GetMetadata()
	if metadata == nil {
		metadata = make(map[string]any)
	}
	ts := message.GetTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	return Envelope{
		ID:        message.GetID(),
		Type:      message.GetType(),
		Timestamp: ts.UnixNano(),
		Payload:   payload,
		Metadata:  metadata,
	}, nil
}

// Decode 反序列化消息；负载保留为 json.RawMessage，由消费方解析为具体类型
func Decode(data []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.Message(), nil
}

// Message 把 Envelope 还原为消息
func (e Envelope) Message() *Message {
	metadata := e.Metadata
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Message{
		ID:        e.ID,
		Type:      e.Type,
		Timestamp: time.Unix(0, e.Timestamp).UTC(),
		Payload:   e.Payload,
		Metadata:  metadata,
	}
}

// DecodePayload 把消息负载解析到 dest：进程内消息先编码再解析，序列化后的负载直接解析
func DecodePayload(message IMessage, dest any) error {
	switch p := message.GetPayload().(type) {
	case json.RawMessage:
		return json.Unmarshal(p, dest)
	case []byte:
		return json.Unmarshal(p, dest)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, dest)
	}
}
