package audit

import (
	"audittrail/data/orm"
	"audittrail/data/session"
)

// newOperationHistory 为条目构造审计行；锚点主键可能仍是临时键，插入时由会话修正
func newOperationHistory(a *AuditEntry, anchor *ServiceHistory, oldValues, newValues map[string]any) (*OperationHistory, error) {
	meta := a.entry.Meta()
	oh := &OperationHistory{
		EntityName:       meta.Name,
		TableName:        meta.Table,
		OperationType:    a.kind.String(),
		ServiceHistoryID: anchor.ID,
		ServiceHistory:   anchor,
	}
	if meta.Has(orm.CapabilityRecord) {
		if id, ok := orm.NormalizeKey(a.entry.Key()).(int64); ok {
			oh.EntityID = &id
		}
	}

	var err error
	if oh.OldValues, err = EncodeValues(oldValues); err != nil {
		return nil, err
	}
	if oh.NewValues, err = EncodeValues(newValues); err != nil {
		return nil, err
	}
	return oh, nil
}

// sameSubject 两条审计行是否针对同一 (表, 实体名, 实体 ID)
func (oh *OperationHistory) sameSubject(other *OperationHistory) bool {
	if oh.TableName != other.TableName || oh.EntityName != other.EntityName {
		return false
	}
	if oh.EntityID == nil || other.EntityID == nil {
		return oh.EntityID == nil && other.EntityID == nil
	}
	return *oh.EntityID == *other.EntityID
}

// isQueued 会话中是否已有待插入的同主体审计行（作用域为整个会话，而非单次刷新）
func isQueued(s *session.Session, oh *OperationHistory) bool {
	for _, e := range s.Entries() {
		if e.State() != session.Added {
			continue
		}
		if queued, ok := e.Entity().(*OperationHistory); ok && queued.sameSubject(oh) {
			return true
		}
	}
	return false
}
