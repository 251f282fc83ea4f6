package sql

import (
	"context"
	"database/sql"
	"strings"

	core "audittrail/data/db"
	"audittrail/errors"
)

type insertBuilder struct {
	statement

	columns   []string
	values    []any
	returning []string
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = cols
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	b.values = vals
	return b
}

func (b *insertBuilder) Returning(cols ...string) IInsertBuilder {
	b.returning = append(b.returning, cols...)
	return b
}

func (b *insertBuilder) Build() (string, []any, error) {
	if len(b.columns) == 0 || len(b.columns) != len(b.values) {
		return "", nil, errors.NewError(errors.ErrCodeInvalidInput, "insert columns and values do not match").
			WithContext("table", b.table)
	}

	quoted := make([]string, len(b.columns))
	for i, col := range b.columns {
		quoted[i] = b.quote(col)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.quote(b.table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(b.columns)), ", "))
	sb.WriteString(")")

	if len(b.returning) > 0 && b.dialect.SupportsReturning() {
		ret := make([]string, len(b.returning))
		for i, col := range b.returning {
			ret[i] = b.quote(col)
		}
		sb.WriteString(" RETURNING ")
		sb.WriteString(strings.Join(ret, ", "))
	}
	return sb.String(), append([]any(nil), b.values...), b.err
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	return b.exec(ctx, q, args, err)
}

// QueryRow 执行带 RETURNING 的插入
func (b *insertBuilder) QueryRow(ctx context.Context) core.IRow {
	q, args, err := b.Build()
	if err != nil {
		return errRow{err: err}
	}
	return b.db.QueryRow(ctx, q, args...)
}
