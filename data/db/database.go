// Package db 定义会话与执行器依赖的最小数据库抽象。
//
// 连接池与事务实现同一个 IDatabase，会话在事务进行中把事务本身交给执行器，
// 审计行与业务行因此总在同一事务内写入。
package db

import (
	"context"
	"database/sql"
	"time"
)

// IDatabase 可执行语句的句柄：连接池或事务
type IDatabase interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	// Begin 开启事务；在事务上调用返回错误，嵌套由会话层协调
	Begin(ctx context.Context) (ITransaction, error)
}

// IDialectNameProvider 可选接口，dialect.FromDatabase 据此推断方言
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 由 Begin 返回；Commit 与 Rollback 之后不可再用
type ITransaction interface {
	IDatabase

	Commit() error
	Rollback() error
}

// IRows 多行结果，按列名扫描时需要 Columns
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// IRow 单行结果
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 数据库连接配置
type DBConfig struct {
	// Driver 为 database/sql 注册名：sqlite（modernc）或 pgx（jackc/pgx stdlib）
	Driver string `yaml:"driver"`
	// DSN sqlite 可用 ":memory:" 或文件路径
	DSN string `yaml:"dsn"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// PingTimeout 打开连接后的探活超时，0 取 3s
	PingTimeout time.Duration `yaml:"ping_timeout"`
}
