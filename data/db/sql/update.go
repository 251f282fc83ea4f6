package sql

import (
	"context"
	"database/sql"
	"strings"

	"audittrail/errors"
)

type updateBuilder struct {
	statement

	setCols []string
	setArgs []any
}

func (b *updateBuilder) Set(col string, val any) IUpdateBuilder {
	b.setCols = append(b.setCols, col)
	b.setArgs = append(b.setArgs, val)
	return b
}

func (b *updateBuilder) Where(cond string, args ...any) IUpdateBuilder {
	b.addWhere(cond, args)
	return b
}

func (b *updateBuilder) Build() (string, []any, error) {
	if len(b.setCols) == 0 {
		return "", nil, errors.NewError(errors.ErrCodeInvalidInput, "update without columns").
			WithContext("table", b.table)
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.quote(b.table))
	sb.WriteString(" SET ")
	for i, col := range b.setCols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.quote(col))
		sb.WriteString(" = ?")
	}
	b.writeWhere(&sb)

	args := make([]any, 0, len(b.setArgs)+len(b.args))
	args = append(args, b.setArgs...)
	args = append(args, b.args...)
	return sb.String(), args, b.err
}

func (b *updateBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	return b.exec(ctx, q, args, err)
}
