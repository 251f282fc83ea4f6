// Package config 加载审计服务配置：默认值 → YAML 文件 → AUDIT_* 环境变量 → 校验
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	dbcore "audittrail/data/db"
	"audittrail/errors"
	"audittrail/logging"
)

// Config 顶层配置
type Config struct {
	Database dbcore.DBConfig `yaml:"database"`
	Audit    AuditConfig     `yaml:"audit"`
	Logging  LoggingConfig   `yaml:"logging"`
	Notify   NotifyConfig    `yaml:"notify"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

// AuditConfig 审计处理器配置
type AuditConfig struct {
	// Principal 没有上下文操作人时使用的操作人
	Principal string `yaml:"principal"`
	// 雪花主键的数据中心与节点编号
	SnowflakeDatacenter int64 `yaml:"snowflake_datacenter"`
	SnowflakeWorker     int64 `yaml:"snowflake_worker"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// NotifyConfig 提交通知配置
type NotifyConfig struct {
	// Transport 为空时不发送通知：memory|redis|nats
	Transport string      `yaml:"transport"`
	Source    string      `yaml:"source"`
	Redis     RedisConfig `yaml:"redis"`
	NATS      NATSConfig  `yaml:"nats"`

	// 发布失败的重试：尝试次数（含首次）与首次退避
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// RedisConfig Redis Streams 发布端
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	StreamPrefix string `yaml:"stream_prefix"`
	MaxLen       int64  `yaml:"max_len"`
}

// NATSConfig JetStream 发布端
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxAge        time.Duration `yaml:"max_age"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default 默认配置：本地 sqlite 文件，不发送通知
func Default() *Config {
	return &Config{
		Database: dbcore.DBConfig{Driver: "sqlite", DSN: "audit.db"},
		Audit:    AuditConfig{Principal: "system"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Notify: NotifyConfig{
			Source:        "audittrail",
			Redis:         RedisConfig{Addr: "localhost:6379", StreamPrefix: "audit:"},
			NATS:          NATSConfig{Stream: "AUDIT", SubjectPrefix: "audit."},
			RetryAttempts: 3,
			RetryDelay:    10 * time.Millisecond,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load 加载配置；path 为空或文件不存在时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.WrapError(err, errors.ErrCodeConfig, "解析配置文件失败").WithContext("path", path)
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.WrapError(err, errors.ErrCodeConfig, "读取配置文件失败").WithContext("path", path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Driver = getEnv("AUDIT_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("AUDIT_DB_DSN", c.Database.DSN)
	c.Database.MaxOpenConns = getEnvInt("AUDIT_DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)

	c.Audit.Principal = getEnv("AUDIT_PRINCIPAL", c.Audit.Principal)
	c.Audit.SnowflakeDatacenter = int64(getEnvInt("AUDIT_SNOWFLAKE_DATACENTER", int(c.Audit.SnowflakeDatacenter)))
	c.Audit.SnowflakeWorker = int64(getEnvInt("AUDIT_SNOWFLAKE_WORKER", int(c.Audit.SnowflakeWorker)))

	c.Logging.Level = getEnv("AUDIT_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("AUDIT_LOG_FORMAT", c.Logging.Format)

	c.Notify.Transport = getEnv("AUDIT_NOTIFY_TRANSPORT", c.Notify.Transport)
	c.Notify.Redis.Addr = getEnv("AUDIT_REDIS_ADDR", c.Notify.Redis.Addr)
	c.Notify.Redis.Password = getEnv("AUDIT_REDIS_PASSWORD", c.Notify.Redis.Password)
	c.Notify.NATS.URL = getEnv("AUDIT_NATS_URL", c.Notify.NATS.URL)

	c.Metrics.Enabled = getEnvBool("AUDIT_METRICS_ENABLED", c.Metrics.Enabled)
}

// Validate 校验配置
func (c *Config) Validate() error {
	invalid := func(field, reason string) error {
		return errors.NewError(errors.ErrCodeConfig, reason).WithContext("field", field)
	}

	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		return invalid("database.driver", "数据库驱动必须为 sqlite 或 pgx")
	}
	if c.Database.DSN == "" {
		return invalid("database.dsn", "数据库连接串不能为空")
	}
	if strings.TrimSpace(c.Audit.Principal) == "" {
		return invalid("audit.principal", "默认操作人不能为空")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level", "无效的日志级别")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return invalid("logging.format", "日志格式必须为 text 或 json")
	}

	switch c.Notify.Transport {
	case "", "memory":
	case "redis":
		if c.Notify.Redis.Addr == "" {
			return invalid("notify.redis.addr", "使用 redis 通知时必须配置地址")
		}
	case "nats":
	default:
		return invalid("notify.transport", "通知传输必须为 memory、redis 或 nats")
	}
	if c.Notify.RetryAttempts < 1 {
		return invalid("notify.retry_attempts", "重试次数至少为 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
