package audit

import (
	"context"
	"time"
)

// DefaultPrincipal 既没有上下文操作人也没有配置 PrincipalProvider 时使用
const DefaultPrincipal = "system"

type operatorKey struct{}

// WithOperator 在上下文中附加操作人标识
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// OperatorFrom 读取上下文中的操作人标识
func OperatorFrom(ctx context.Context) (string, bool) {
	op, ok := ctx.Value(operatorKey{}).(string)
	return op, ok && op != ""
}

// PrincipalProvider 提供当前操作人
type PrincipalProvider interface {
	CurrentPrincipal(ctx context.Context) string
}

// PrincipalFunc 函数适配器
type PrincipalFunc func(ctx context.Context) string

func (f PrincipalFunc) CurrentPrincipal(ctx context.Context) string { return f(ctx) }

// StaticPrincipal 固定操作人（命令行、后台任务）
type StaticPrincipal string

func (p StaticPrincipal) CurrentPrincipal(context.Context) string { return string(p) }

// Clock 时间来源
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
