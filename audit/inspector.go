package audit

import (
	"context"

	"github.com/google/uuid"

	"audittrail/data/orm"
	"audittrail/data/session"
	"audittrail/domain/entity"
)

// Inspector 扫描工作单元的变更集，把每条变更分类为：
// 关联锚点、直接审计条目、仅因关联参与审计的条目，或无关变更。
type Inspector struct {
	cascader  *Cascader
	principal func(ctx context.Context) string
	clock     Clock
}

// Classification 一次扫描的结果
type Classification struct {
	Anchor  *session.Entry
	Direct  []*AuditEntry
	Related []*AuditEntry
}

// Inspect 扫描变更集。prior 为此前保存周期遗留的锚点，会被沿用；
// 变更集中再出现 ServiceHistory 时返回 ErrDuplicateServiceHistory。
func (i *Inspector) Inspect(ctx context.Context, s *session.Session, prior *session.Entry) (Classification, error) {
	result := Classification{Anchor: prior}
	s.DetectChanges()

	index := make(map[any]int)
	for _, e := range s.Entries() {
		state := e.State()
		if state == session.Unchanged || state == session.Detached {
			continue
		}

		meta := e.Meta()
		if meta.Has(orm.CapabilityServiceHistory) {
			if result.Anchor != nil {
				return Classification{}, ErrDuplicateServiceHistory.WithContext("model", meta.Name)
			}
			if err := i.generateServiceHistoryValues(ctx, e); err != nil {
				return Classification{}, err
			}
			result.Anchor = e
			continue
		}

		auditable := meta.Has(orm.CapabilityAuditable)
		if !auditable && !i.cascader.HasAuditedRelations(meta) {
			continue
		}

		if auditable {
			if err := i.generateAuditableValues(ctx, e); err != nil {
				return Classification{}, err
			}
			ae := newAuditEntry(e, false)
			// 直接条目优先于此前以级联方式加入的同一记录
			if pos, ok := index[e.Entity()]; ok && pos >= 0 {
				result.Direct[pos] = ae
			} else {
				index[e.Entity()] = len(result.Direct)
				result.Direct = append(result.Direct, ae)
			}
		} else {
			index[e.Entity()] = -1
			result.Related = append(result.Related, newAuditEntry(e, true))
		}

		targets, err := i.cascader.RelatedTargets(ctx, s, e)
		if err != nil {
			return Classification{}, err
		}
		for _, t := range targets {
			if _, ok := index[t.Entity()]; ok {
				continue
			}
			index[t.Entity()] = len(result.Direct)
			result.Direct = append(result.Direct, newAuditEntry(t, false))
		}
	}
	return result, nil
}

// generateAuditableValues 新增的可审计记录补齐创建/修改信息
func (i *Inspector) generateAuditableValues(ctx context.Context, e *session.Entry) error {
	if e.State() != session.Added {
		return nil
	}
	a, ok := e.Entity().(entity.IAuditable)
	if !ok || !a.GetCreatedOn().IsZero() {
		return nil
	}
	by, now := i.principal(ctx), i.clock()
	return setValues(e, map[string]any{
		"CreatedBy":     by,
		"CreatedOn":     now,
		"LastChangedBy": by,
		"LastChangedOn": now,
	})
}

// generateServiceHistoryValues 新增的锚点补齐操作人、时间与关联 ID
func (i *Inspector) generateServiceHistoryValues(ctx context.Context, e *session.Entry) error {
	sh, ok := e.Entity().(*ServiceHistory)
	if !ok || e.State() != session.Added {
		return nil
	}
	values := make(map[string]any, 3)
	if sh.ChangedBy == "" {
		values["ChangedBy"] = i.principal(ctx)
	}
	if sh.ChangedOn.IsZero() {
		values["ChangedOn"] = i.clock()
	}
	if sh.CorrelationID == "" {
		values["CorrelationID"] = uuid.NewString()
	}
	return setValues(e, values)
}

// setValues 经由会话写入，事务回滚时一并撤销
func setValues(e *session.Entry, values map[string]any) error {
	for name, v := range values {
		if err := e.SetCurrentValue(name, v); err != nil {
			return err
		}
	}
	return nil
}
