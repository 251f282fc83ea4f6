package session

import "context"

// SaveHook 保存管线的两个扩展点。
//
// BeforeSave 在写入前调用，可继续向会话添加/修改实体，这些变更参与本次写入；
// AfterSave 在写入与接受变更之后、提交之前调用，临时键已被替换为数据库生成的键，
// 可在同一事务内再次调用 SaveChanges。任一钩子返回错误都会中止保存并回滚。
type SaveHook interface {
	BeforeSave(ctx context.Context, s *Session) error
	AfterSave(ctx context.Context, s *Session) error
}

// CommitHook 事务结束通知，均在事务关闭之后调用
type CommitHook interface {
	AfterCommit(ctx context.Context, s *Session)
	AfterRollback(ctx context.Context, s *Session)
}
