package orm

import "strings"

// Condition WHERE 片段，Expr 使用 ? 占位
type Condition struct {
	Expr string
	Args []any
}

// OrderBy 排序列
type OrderBy struct {
	Column string
	Desc   bool
}

// Query 未跟踪查询的条件与排序；多个条件以 AND 连接
type Query struct {
	Where []Condition
	Order []OrderBy
}

// QueryOption 配置 Query
type QueryOption func(*Query)

// WithWhere 追加条件，空表达式忽略
func WithWhere(expr string, args ...any) QueryOption {
	return func(q *Query) {
		if expr != "" {
			q.Where = append(q.Where, Condition{Expr: expr, Args: args})
		}
	}
}

// WithOrderBy 追加排序列
func WithOrderBy(column string, desc bool) QueryOption {
	return func(q *Query) {
		if column != "" {
			q.Order = append(q.Order, OrderBy{Column: column, Desc: desc})
		}
	}
}

// NewQuery 应用选项
func NewQuery(opts ...QueryOption) Query {
	var q Query
	for _, opt := range opts {
		if opt != nil {
			opt(&q)
		}
	}
	return q
}

// OrderClause ORDER BY 之后的部分，没有排序时为空
func (q Query) OrderClause() string {
	parts := make([]string, len(q.Order))
	for i, o := range q.Order {
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		parts[i] = o.Column + dir
	}
	return strings.Join(parts, ", ")
}
