package session

import (
	"audittrail/data/orm"
	"audittrail/errors"
)

var (
	// ErrUnmappedModel 实体类型未在 Schema 中注册
	ErrUnmappedModel = errors.WrapError(orm.ErrUnmappedModel, errors.ErrCodeInvalidInput, "模型未注册")
	// ErrConcurrency 按并发令牌更新/删除时未命中任何行
	ErrConcurrency = errors.NewError(errors.ErrCodeConcurrency, "记录已被其他事务修改或删除")
	// ErrDanglingTemporaryKey 外键引用的临时键没有对应的待插入实体
	ErrDanglingTemporaryKey = errors.NewError(errors.ErrCodeDependency, "外键引用了无法解析的临时键")
	// ErrTransactionState 事务状态不允许该操作
	ErrTransactionState = errors.NewError(errors.ErrCodeConflict, "事务状态不允许该操作")
	// ErrUnknownProperty 模型没有该属性
	ErrUnknownProperty = errors.NewError(errors.ErrCodeInvalidInput, "模型没有该属性")
	// ErrSaveDepth 保存钩子递归调用 SaveChanges 过深
	ErrSaveDepth = errors.NewError(errors.ErrCodeInternal, "SaveChanges 嵌套层数超出上限")
)
