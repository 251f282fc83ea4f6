package basic

import (
	"context"
	"database/sql"
	stdErrors "errors"

	core "audittrail/data/db"
	"audittrail/data/db/dialect"
)

// ErrNestedTransaction 在事务上再次 Begin
var ErrNestedTransaction = stdErrors.New("basic.Tx: nested transactions are not supported")

// Tx 单个事务；实现 core.ITransaction，可直接交给执行器
type Tx struct {
	tx      *sql.Tx
	dialect dialect.Dialect
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)}
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) Begin(context.Context) (core.ITransaction, error) {
	return nil, ErrNestedTransaction
}

func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback 事务已结束时视为成功
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !stdErrors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (t *Tx) GetDialectName() string { return string(t.dialect.Name()) }
