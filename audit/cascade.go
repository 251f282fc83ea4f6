package audit

import (
	"context"

	"audittrail/data/orm"
	"audittrail/data/session"
	"audittrail/errors"
)

// Cascader 沿被标记为需审计的关联解析级联目标
type Cascader struct {
	schema *orm.Schema
}

// NewCascader 创建级联解析器
func NewCascader(schema *orm.Schema) *Cascader {
	return &Cascader{schema: schema}
}

// RelatedTargets 返回 e 通过需审计关联引用的记录。
//
// 外键为空的关联跳过；目标通过会话解析（身份映射优先，否则加载并附加）。
// 目标不存在时跳过，其余错误返回。
func (c *Cascader) RelatedTargets(ctx context.Context, s *session.Session, e *session.Entry) ([]*session.Entry, error) {
	var targets []*session.Entry
	seen := make(map[any]bool)

	for _, rel := range e.Meta().Relations {
		if !c.schema.IsAuditedRelation(rel) {
			continue
		}
		fk, ok := e.Property(rel.ForeignKey)
		if !ok || orm.IsNullKey(fk.CurrentValue) {
			continue
		}

		target, err := s.Find(ctx, rel.Target, fk.CurrentValue)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if seen[target] {
			continue
		}
		seen[target] = true
		if te, ok := s.Entry(target); ok {
			targets = append(targets, te)
		}
	}
	return targets, nil
}

// HasAuditedRelations 模型是否声明了指向可审计模型的需审计关联
func (c *Cascader) HasAuditedRelations(meta *orm.ModelMeta) bool {
	for _, rel := range meta.Relations {
		if !c.schema.IsAuditedRelation(rel) {
			continue
		}
		if target, ok := c.schema.MetaFor(rel.Target); ok && target.Has(orm.CapabilityAuditable) {
			return true
		}
	}
	return false
}
