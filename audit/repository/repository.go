// Package repository 提供审计记录的查询
package repository

import (
	"context"
	"fmt"
	"reflect"

	"audittrail/audit"
	"audittrail/data/orm"
	"audittrail/data/session"
	"audittrail/errors"
)

// OperationsRepository 审计行仓储
type OperationsRepository struct {
	s *session.Session
}

// NewOperationsRepository 创建仓储
func NewOperationsRepository(s *session.Session) *OperationsRepository {
	return &OperationsRepository{s: s}
}

// Add 把审计行加入工作单元，随下一次 SaveChanges 写入
func (r *OperationsRepository) Add(oh *audit.OperationHistory) error {
	return r.s.Add(oh)
}

// ListOperations 按服务历史 ID 查询审计行，按写入顺序返回
func (r *OperationsRepository) ListOperations(ctx context.Context, serviceHistoryID int64) ([]*audit.OperationHistory, error) {
	meta, err := metaOf[audit.OperationHistory](r.s)
	if err != nil {
		return nil, err
	}
	fk, _ := meta.Field("ServiceHistoryID")
	pk := meta.PrimaryKey()

	var rows []*audit.OperationHistory
	err = r.s.Query(ctx, &rows,
		orm.WithWhere(fk.Column+" = ?", serviceHistoryID),
		orm.WithOrderBy(pk.Column, false),
	)
	return rows, err
}

// ServicesRepository 服务历史仓储
type ServicesRepository struct {
	s *session.Session
}

// NewServicesRepository 创建仓储
func NewServicesRepository(s *session.Session) *ServicesRepository {
	return &ServicesRepository{s: s}
}

// Add 把服务历史加入工作单元
func (r *ServicesRepository) Add(sh *audit.ServiceHistory) error {
	return r.s.Add(sh)
}

// ListServices 查询涉及指定记录的服务历史，按 ChangedOn 倒序。
//
// 记录必须存在，否则返回 NOT_FOUND；审计行按表名（LIKE）与实体 ID 匹配。
func (r *ServicesRepository) ListServices(ctx context.Context, modelType reflect.Type, entityID int64) ([]*audit.ServiceHistory, error) {
	target, ok := r.s.Schema().MetaFor(modelType)
	if !ok {
		return nil, session.ErrUnmappedModel.WithContext("type", fmt.Sprint(modelType))
	}
	if _, err := r.s.Find(ctx, target.Type, entityID); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewError(errors.ErrCodeNotFound, "记录不存在").
				WithContext("model", target.Name).
				WithContext("id", entityID)
		}
		return nil, err
	}

	ops, err := metaOf[audit.OperationHistory](r.s)
	if err != nil {
		return nil, err
	}
	services, err := metaOf[audit.ServiceHistory](r.s)
	if err != nil {
		return nil, err
	}
	column := func(m *orm.ModelMeta, name string) string {
		f, _ := m.Field(name)
		return f.Column
	}

	where := fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s LIKE ? AND %s = ?)",
		services.PrimaryKey().Column,
		column(ops, "ServiceHistoryID"),
		ops.Table,
		column(ops, "TableName"),
		column(ops, "EntityID"),
	)

	var rows []*audit.ServiceHistory
	err = r.s.Query(ctx, &rows,
		orm.WithWhere(where, target.Table, entityID),
		orm.WithOrderBy(column(services, "ChangedOn"), true),
	)
	return rows, err
}

// ListServicesFor 类型化的 ListServices
func ListServicesFor[T any](ctx context.Context, r *ServicesRepository, entityID int64) ([]*audit.ServiceHistory, error) {
	return r.ListServices(ctx, orm.TypeOf[T](), entityID)
}

func metaOf[T any](s *session.Session) (*orm.ModelMeta, error) {
	meta, ok := s.Schema().MetaFor(orm.TypeOf[T]())
	if !ok {
		return nil, session.ErrUnmappedModel.WithContext("type", orm.TypeOf[T]().String())
	}
	return meta, nil
}
