package sql

import (
	"context"
	"database/sql"
	"strings"

	core "audittrail/data/db"
	"audittrail/data/db/dialect"
	"audittrail/errors"
)

// statement 各构建器共享的表、WHERE 条件与首个构建错误
type statement struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table string
	where []string
	args  []any
	err   error
}

func (s *statement) addWhere(cond string, args []any) {
	if cond == "" {
		return
	}
	s.where = append(s.where, cond)
	s.args = append(s.args, args...)
}

// quote 校验并引用标识符；失败时记录错误，之后的 Build 返回它
func (s *statement) quote(name string) string {
	if !safeIdentifier(name) {
		if s.err == nil {
			s.err = errors.NewError(errors.ErrCodeInvalidInput, "unsafe identifier").WithContext("identifier", name)
		}
		return name
	}
	return s.dialect.QuoteIdentifier(name)
}

func (s *statement) writeWhere(sb *strings.Builder) {
	if len(s.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(s.where, " AND "))
	}
}

func (s *statement) exec(ctx context.Context, q string, args []any, err error) (sql.Result, error) {
	if err != nil {
		return nil, err
	}
	return s.db.Exec(ctx, q, args...)
}

// safeIdentifier 允许 foo、foo_1 与 schema.table 形式
func safeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i, ch := range part {
			letter := ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
			digit := ch >= '0' && ch <= '9'
			if !letter && (i == 0 || !digit) {
				return false
			}
		}
	}
	return true
}

// errRow 构建失败时代替 IRow 返回错误
type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
func (r errRow) Err() error         { return r.err }
