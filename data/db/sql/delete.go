package sql

import (
	"context"
	"database/sql"
	"strings"
)

type deleteBuilder struct {
	statement
}

func (b *deleteBuilder) Where(cond string, args ...any) IDeleteBuilder {
	b.addWhere(cond, args)
	return b
}

func (b *deleteBuilder) Build() (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.quote(b.table))
	b.writeWhere(&sb)
	return sb.String(), append([]any(nil), b.args...), b.err
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	return b.exec(ctx, q, args, err)
}
