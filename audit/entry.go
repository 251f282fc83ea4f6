package audit

import (
	"audittrail/data/session"
)

// AuditEntry 一条待审计的变更。
//
// 变更类型与属性快照在分类时捕获：主保存之后会话会接受变更并重置原始值，
// 后续计算差异仍以捕获时的状态为准。
type AuditEntry struct {
	entry    *session.Entry
	kind     session.EntityState
	related  bool
	captured []session.PropertyEntry
}

func newAuditEntry(e *session.Entry, related bool) *AuditEntry {
	return &AuditEntry{
		entry:    e,
		kind:     e.State(),
		related:  related,
		captured: e.Properties(),
	}
}

// Entry 返回会话中的跟踪记录
func (a *AuditEntry) Entry() *session.Entry { return a.entry }

// Kind 分类时的变更类型
func (a *AuditEntry) Kind() session.EntityState { return a.kind }

// IsRelated 是否仅因被标记的关联而参与审计
func (a *AuditEntry) IsRelated() bool { return a.related }

// ReadyToFlush 主键与关联外键均已是永久值
func (a *AuditEntry) ReadyToFlush() bool {
	return !a.entry.HasTemporaryValues()
}
