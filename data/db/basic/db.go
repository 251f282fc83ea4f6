// Package basic 基于 database/sql 实现 db.IDatabase。
//
// 驱动需由调用方空导入注册：
//   - sqlite:  _ "modernc.org/sqlite"
//   - pgx:     _ "github.com/jackc/pgx/v5/stdlib"
package basic

import (
	"context"
	"database/sql"
	"strings"
	"time"

	core "audittrail/data/db"
	"audittrail/data/db/dialect"
)

// DB 连接池，所有语句在执行前按方言重写占位符
type DB struct {
	db      *sql.DB
	driver  string
	dialect dialect.Dialect
}

const defaultPingTimeout = 3 * time.Second

// New 打开连接池并探活；sqlite 内存库固定单连接
func New(config core.DBConfig) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = "sqlite"
	}

	db, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, err
	}

	// 内存库每个连接各是一个库
	maxOpen := config.MaxOpenConns
	if dialect.New(driver).Name() == dialect.NameSQLite && isMemoryDSN(config.DSN) {
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	timeout := config.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return Wrap(db, driver), nil
}

// Wrap 包装已打开的 *sql.DB（例如 sqlmock 创建的连接）
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{db: db, driver: driver, dialect: dialect.New(driver)}
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:")
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: d.db.QueryRowContext(ctx, d.dialect.Rebind(query), args...)}
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, dialect: d.dialect}, nil
}

// Close 关闭连接池
func (d *DB) Close() error { return d.db.Close() }

func (d *DB) GetDialectName() string { return d.driver }
