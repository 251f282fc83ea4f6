package cli

import (
	"context"
	"fmt"
	"io"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"audittrail/audit"
	"audittrail/audit/notify"
	"audittrail/codegen/snowflake"
	"audittrail/config"
	dbbasic "audittrail/data/db/basic"
	"audittrail/data/orm"
	ormbasic "audittrail/data/orm/basic"
	"audittrail/data/session"
	"audittrail/errors"
	"audittrail/logging"
	"audittrail/messaging"
	"audittrail/messaging/transport/memory"
	"audittrail/messaging/transport/natsjetstream"
	"audittrail/messaging/transport/redisstreams"
	"audittrail/patterns/retry"
)

// publisher 可关闭的通知发布端
type publisher interface {
	messaging.IPublisher
	Close() error
}

// Runtime 一次命令执行所需的依赖
type Runtime struct {
	Config   *config.Config
	Logger   logging.Logger
	DB       *dbbasic.DB
	Schema   *orm.Schema
	Registry *prometheus.Registry

	metrics  *audit.Metrics
	keys     *snowflake.Generator
	notifier audit.Notifier
	closers  []func() error
}

// NewLogger 按配置构造 logrus 日志器
func NewLogger(cfg config.LoggingConfig, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfig, "无效的日志级别")
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logging.ToLogrusLevel(level))
	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logging.NewLogrusLogger(l), nil
}

// Open 连接数据库、建表并装配审计依赖
func Open(ctx context.Context, cfg *config.Config, logOut io.Writer) (*Runtime, error) {
	logger, err := NewLogger(cfg.Logging, logOut)
	if err != nil {
		return nil, err
	}
	logging.SetLogger(logger)

	rt := &Runtime{
		Config: cfg,
		Logger: logging.ComponentLogger("cli"),
		Schema: orm.NewSchema(),
	}

	if err := audit.Register(rt.Schema); err != nil {
		return nil, err
	}
	if err := registerModels(rt.Schema); err != nil {
		return nil, err
	}

	rt.keys, err = snowflake.NewGenerator(cfg.Audit.SnowflakeDatacenter, cfg.Audit.SnowflakeWorker)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfig, "雪花节点配置无效")
	}

	rt.DB, err = dbbasic.New(cfg.Database)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "连接数据库")
	}
	rt.closers = append(rt.closers, rt.DB.Close)

	x := ormbasic.New(rt.DB)
	for _, meta := range rt.Schema.Models() {
		if err := x.EnsureTable(ctx, meta); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	if cfg.Metrics.Enabled {
		rt.Registry = prometheus.NewRegistry()
		rt.metrics = audit.NewMetrics(rt.Registry)
	}

	if err := rt.openNotifier(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) openNotifier(ctx context.Context) error {
	cfg := rt.Config.Notify
	logger := logging.ComponentLogger("notify")

	var pub publisher
	switch cfg.Transport {
	case "":
		return nil
	case "memory":
		t := memory.NewTransport(memory.WithLogger(logger))
		if err := t.Start(ctx); err != nil {
			return err
		}
		if err := t.Subscribe(notify.MessageType, messaging.HandlerFunc("log", func(ctx context.Context, m messaging.IMessage) error {
			ev, err := notify.DecodeEvent(m)
			if err != nil {
				return err
			}
			logger.Info(ctx, "审计分组已提交",
				logging.Int64("service_history_id", ev.ServiceHistoryID),
				logging.String("name", ev.Name),
				logging.Int("operations", len(ev.Operations)))
			return nil
		})); err != nil {
			return err
		}
		pub = t
	case "redis":
		p, err := redisstreams.NewPublisher(redisstreams.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			StreamPrefix: cfg.Redis.StreamPrefix,
			MaxLen:       cfg.Redis.MaxLen,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		pub = p
	case "nats":
		p := natsjetstream.NewPublisher(natsjetstream.Config{
			URL:           cfg.NATS.URL,
			Stream:        cfg.NATS.Stream,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxAge:        cfg.NATS.MaxAge,
			Logger:        logger,
		})
		if err := p.Start(ctx); err != nil {
			return errors.WrapError(err, errors.ErrCodeMessaging, "连接 NATS 失败")
		}
		pub = p
	default:
		return errors.NewError(errors.ErrCodeConfig, fmt.Sprintf("未知通知传输 %q", cfg.Transport))
	}

	rt.closers = append(rt.closers, pub.Close)
	policy := retry.DefaultConfig()
	policy.MaxAttempts = cfg.RetryAttempts
	policy.InitialDelay = cfg.RetryDelay
	rt.notifier = notify.New(pub,
		notify.WithLogger(logger),
		notify.WithSource(cfg.Source),
		notify.WithRetry(policy),
	)
	return nil
}

// NewSession 创建挂载审计处理器的工作单元
func (rt *Runtime) NewSession() *session.Session {
	opts := []audit.Option{
		audit.WithLogger(logging.ComponentLogger("audit")),
		audit.WithPrincipal(audit.StaticPrincipal(rt.Config.Audit.Principal)),
		audit.WithMetrics(rt.metrics),
	}
	if rt.notifier != nil {
		opts = append(opts, audit.WithNotifier(rt.notifier))
	}
	h := audit.NewHandler(rt.Schema, opts...)
	return session.New(rt.DB, rt.Schema,
		session.WithSaveHook(h),
		session.WithKeyGenerator(rt.keys),
		session.WithLogger(logging.ComponentLogger("session")),
	)
}

// ReadSession 不挂审计钩子的会话，用于查询
func (rt *Runtime) ReadSession() *session.Session {
	return session.New(rt.DB, rt.Schema, session.WithLogger(logging.ComponentLogger("session")))
}

// Close 逆序释放资源
func (rt *Runtime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}
