package orm

import "errors"

var (
	// ErrNotFound 按主键或条件未找到记录
	ErrNotFound = errors.New("orm: record not found")
	// ErrUnsupported 执行器不支持的操作（例如复合主键的 Find）
	ErrUnsupported = errors.New("orm: operation not supported")
	// ErrUnmappedModel 类型未在 Schema 中注册
	ErrUnmappedModel = errors.New("orm: model is not registered")
)
