// Package sql 构建并执行单表 SQL 语句。
//
// 表名与列名在拼接前校验并按方言加引号，非法标识符让 Build/Exec/Query
// 返回 INVALID_INPUT 错误。值一律以 ? 占位，由 IDatabase 按方言重写。
package sql

import (
	"context"
	"database/sql"

	core "audittrail/data/db"
	"audittrail/data/db/dialect"
)

// ISql 语句构建入口
type ISql interface {
	Select(columns ...string) ISelectBuilder
	InsertInto(table string) IInsertBuilder
	Update(table string) IUpdateBuilder
	DeleteFrom(table string) IDeleteBuilder

	Dialect() dialect.Dialect
}

// ISelectBuilder SELECT；多个 Where 以 AND 连接，空 OrderBy 忽略
type ISelectBuilder interface {
	From(table string) ISelectBuilder
	Where(cond string, args ...any) ISelectBuilder
	OrderBy(expr string) ISelectBuilder
	Limit(n int) ISelectBuilder
	Build() (query string, args []any, err error)
	Query(ctx context.Context) (core.IRows, error)
	QueryRow(ctx context.Context) core.IRow
}

// IInsertBuilder 单行 INSERT
type IInsertBuilder interface {
	Columns(cols ...string) IInsertBuilder
	Values(vals ...any) IInsertBuilder
	// Returning 仅在方言支持时生效
	Returning(cols ...string) IInsertBuilder
	Build() (query string, args []any, err error)
	Exec(ctx context.Context) (sql.Result, error)
	QueryRow(ctx context.Context) core.IRow
}

// IUpdateBuilder UPDATE
type IUpdateBuilder interface {
	Set(column string, val any) IUpdateBuilder
	Where(cond string, args ...any) IUpdateBuilder
	Build() (query string, args []any, err error)
	Exec(ctx context.Context) (sql.Result, error)
}

// IDeleteBuilder DELETE
type IDeleteBuilder interface {
	Where(cond string, args ...any) IDeleteBuilder
	Build() (query string, args []any, err error)
	Exec(ctx context.Context) (sql.Result, error)
}

type sqlImpl struct {
	db      core.IDatabase
	dialect dialect.Dialect
}

// New 基于 IDatabase 创建 ISql，方言由 IDialectNameProvider 推断
func New(db core.IDatabase) ISql {
	return &sqlImpl{db: db, dialect: dialect.FromDatabase(db)}
}

func (s *sqlImpl) base(table string) statement {
	return statement{db: s.db, dialect: s.dialect, table: table}
}

func (s *sqlImpl) Select(columns ...string) ISelectBuilder {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	return &selectBuilder{statement: s.base(""), cols: columns}
}

func (s *sqlImpl) InsertInto(table string) IInsertBuilder {
	return &insertBuilder{statement: s.base(table)}
}

func (s *sqlImpl) Update(table string) IUpdateBuilder {
	return &updateBuilder{statement: s.base(table)}
}

func (s *sqlImpl) DeleteFrom(table string) IDeleteBuilder {
	return &deleteBuilder{statement: s.base(table)}
}

func (s *sqlImpl) Dialect() dialect.Dialect { return s.dialect }
