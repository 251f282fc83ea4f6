// Package redisstreams 把消息追加到 Redis Stream，每种消息类型一个 Stream
package redisstreams

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"audittrail/logging"
	"audittrail/messaging"
)

// client go-redis 命令的子集，便于替换
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
	Close() error
}

// Config Redis Streams 发布端配置
type Config struct {
	Client       redis.UniversalClient
	Addr         string
	Username     string
	Password     string
	DB           int
	StreamPrefix string
	// MaxLen 每个 Stream 保留的最大条数，0 表示不裁剪
	MaxLen int64
	Logger logging.Logger
}

// Publisher 基于 XADD 的发布端
type Publisher struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// NewPublisher 创建发布端；未提供 Client 时按 Addr 建立连接
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "audit:"
	}

	var cl client
	own := false
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("redis address not configured")
		}
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		own = true
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.redisstreams")
	}
	return &Publisher{cfg: cfg, client: cl, ownClient: own, logger: cfg.Logger}, nil
}

// Publish 追加到 StreamPrefix+消息类型
func (p *Publisher) Publish(ctx context.Context, message messaging.IMessage) error {
	values, err := encodeMessage(message)
	if err != nil {
		p.failed.Add(1)
		return err
	}

	args := &redis.XAddArgs{
		Stream: p.streamName(message.GetType()),
		Values: values,
	}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn(ctx, "redis XADD failed",
			logging.String("stream", args.Stream),
			logging.String("message_id", message.GetID()),
			logging.Error(err))
		return err
	}
	p.published.Add(1)
	p.logger.Debug(ctx, "message appended",
		logging.String("stream", args.Stream),
		logging.String("entry_id", id))
	return nil
}

// Read 按写入顺序读取某类消息，从 start（"-" 表示最早）开始最多 count 条
func (p *Publisher) Read(ctx context.Context, messageType, start string, count int64) ([]*messaging.Message, error) {
	if start == "" {
		start = "-"
	}
	entries, err := p.client.XRangeN(ctx, p.streamName(messageType), start, "+", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*messaging.Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := decodeMessage(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// Stats 发布计数
func (p *Publisher) Stats() messaging.TransportStats {
	return messaging.TransportStats{
		Running:   true,
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
	}
}

// Close 关闭自行创建的连接
func (p *Publisher) Close() error {
	if p.ownClient {
		return p.client.Close()
	}
	return nil
}

func (p *Publisher) streamName(messageType string) string {
	return p.cfg.StreamPrefix + messageType
}

func encodeMessage(msg messaging.IMessage) (map[string]any, error) {
	env, err := messaging.ToEnvelope(msg)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(env.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        env.ID,
		"type":      env.Type,
		"timestamp": env.Timestamp,
		"payload":   string(env.Payload),
		"metadata":  string(metadata),
	}, nil
}

func decodeMessage(entry redis.XMessage) (*messaging.Message, error) {
	env := messaging.Envelope{}
	env.ID, _ = entry.Values["id"].(string)
	env.Type, _ = entry.Values["type"].(string)

	if raw, _ := entry.Values["payload"].(string); raw != "" {
		env.Payload = json.RawMessage(raw)
	}
	if raw, _ := entry.Values["metadata"].(string); raw != "" {
		if err := json.Unmarshal([]byte(raw), &env.Metadata); err != nil {
			return nil, err
		}
	}

	env.Timestamp = time.Now().UnixNano()
	switch v := entry.Values["timestamp"].(type) {
	case int64:
		env.Timestamp = v
	case string:
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			env.Timestamp = ns
		}
	}

	if env.ID == "" {
		env.ID = entry.ID
	}
	return env.Message(), nil
}

var _ messaging.IPublisher = (*Publisher)(nil)
