// Package natsjetstream 把消息发布到 NATS JetStream，主题为 SubjectPrefix+消息类型
package natsjetstream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"audittrail/logging"
	"audittrail/messaging"
)

// Config JetStream 发布端配置
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	Conn          *nats.Conn
	Logger        logging.Logger

	// 可选：流参数
	Retention string        // limits|interest|workqueue（默认 limits）
	MaxAge    time.Duration // 0 表示不限制
	Replicas  int           // 0 表示默认
	// DuplicateWindow 按消息 ID 去重的时间窗口，0 使用服务端默认
	DuplicateWindow time.Duration
}

// Publisher JetStream 发布端
type Publisher struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       nats.JetStreamContext
	ownsConn bool

	mu      sync.RWMutex
	running bool

	published atomic.Int64
	failed    atomic.Int64
}

// NewPublisher 创建发布端；Start 之后才能发布
func NewPublisher(cfg Config) *Publisher {
	if cfg.Stream == "" {
		cfg.Stream = "AUDIT"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "audit."
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.nats")
	}
	return &Publisher{cfg: cfg, logger: cfg.Logger}
}

// Start 建立连接并确保流存在
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("nats publisher already running")
	}
	if err := p.ensureConnection(); err != nil {
		return err
	}
	if err := p.ensureStream(); err != nil {
		return err
	}
	p.running = true
	p.logger.Info(ctx, "nats publisher started",
		logging.String("stream", p.cfg.Stream),
		logging.String("subjects", p.cfg.SubjectPrefix+">"))
	return nil
}

// Publish 发布消息；消息 ID 作为 JetStream 去重 ID
func (p *Publisher) Publish(ctx context.Context, message messaging.IMessage) error {
	p.mu.RLock()
	js := p.js
	running := p.running
	p.mu.RUnlock()
	if !running || js == nil {
		return errors.New("nats publisher not running")
	}

	data, err := messaging.Encode(message)
	if err != nil {
		p.failed.Add(1)
		return err
	}
	subject := p.subjectName(message.GetType())
	opts := []nats.PubOpt{nats.Context(ctx)}
	if id := message.GetID(); id != "" {
		opts = append(opts, nats.MsgId(id))
	}
	if _, err := js.Publish(subject, data, opts...); err != nil {
		p.failed.Add(1)
		p.logger.Warn(ctx, "nats publish failed",
			logging.String("subject", subject),
			logging.String("message_id", message.GetID()),
			logging.Error(err))
		return err
	}
	p.published.Add(1)
	return nil
}

// Close 关闭自行创建的连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	if p.ownsConn && p.conn != nil {
		p.conn.Close()
	}
	p.conn = nil
	p.js = nil
	return nil
}

// Stats 发布计数
func (p *Publisher) Stats() messaging.TransportStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return messaging.TransportStats{
		Running:   p.running,
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Publisher) ensureConnection() error {
	if p.conn != nil && p.js != nil {
		return nil
	}
	if p.cfg.Conn != nil {
		p.conn = p.cfg.Conn
	} else {
		url := p.cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url, nats.Name("audittrail"))
		if err != nil {
			return err
		}
		p.conn = conn
		p.ownsConn = true
	}
	js, err := p.conn.JetStream()
	if err != nil {
		return err
	}
	p.js = js
	return nil
}

func (p *Publisher) ensureStream() error {
	_, err := p.js.StreamInfo(p.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	_, err = p.js.AddStream(p.streamConfig())
	return err
}

func (p *Publisher) streamConfig() *nats.StreamConfig {
	sc := &nats.StreamConfig{
		Name:      p.cfg.Stream,
		Subjects:  []string{p.cfg.SubjectPrefix + ">"},
		Retention: retentionPolicy(p.cfg.Retention),
	}
	if p.cfg.MaxAge > 0 {
		sc.MaxAge = p.cfg.MaxAge
	}
	if p.cfg.Replicas > 0 {
		sc.Replicas = p.cfg.Replicas
	}
	if p.cfg.DuplicateWindow > 0 {
		sc.Duplicates = p.cfg.DuplicateWindow
	}
	return sc
}

// 审计通知默认保留，供多个下游各自消费
func retentionPolicy(name string) nats.RetentionPolicy {
	switch strings.ToLower(name) {
	case "interest":
		return nats.InterestPolicy
	case "workqueue":
		return nats.WorkQueuePolicy
	default:
		return nats.LimitsPolicy
	}
}

func (p *Publisher) subjectName(messageType string) string {
	return p.cfg.SubjectPrefix + messageType
}

var _ messaging.IPublisher = (*Publisher)(nil)
