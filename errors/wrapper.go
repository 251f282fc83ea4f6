package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"runtime"

	"audittrail/data/orm"
	"audittrail/logging"
)

// 基础设施错误到错误码的映射，按顺序匹配
var normalizations = []struct {
	target  error
	code    ErrorCode
	message string
}{
	{context.Canceled, ErrCodeCanceled, "操作已取消"},
	{context.DeadlineExceeded, ErrCodeTimeout, "操作超时"},
	{orm.ErrNotFound, ErrCodeNotFound, "记录未找到"},
	{sql.ErrNoRows, ErrCodeNotFound, "记录未找到"},
	{orm.ErrUnsupported, ErrCodeUnsupported, "不支持的操作"},
}

// Normalize 把可识别的基础设施错误转为 AppError；IError 与未识别的错误原样返回
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(IError); ok {
		return err
	}
	for _, n := range normalizations {
		if stdErrors.Is(err, n.target) {
			return WrapError(err, n.code, n.message)
		}
	}
	return err
}

// Wrap 包装错误，并以 Debug 级别记录调用位置
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	logging.GetLogger().Debug(ctx, "错误包装: "+msg, logging.String("location", caller()))
	return WrapError(err, code, msg)
}

// WrapDatabaseError 包装会话与执行器返回的错误。
//
// 已是 AppError 的错误（并发冲突、主键冲突等）原样返回，可识别的错误经 Normalize 归一，
// 其余归为 DATABASE_ERROR 并记录警告。
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	if normalized := Normalize(err); normalized != err {
		return normalized
	}
	if _, ok := err.(IError); ok {
		return err
	}

	msg := fmt.Sprintf("数据库操作失败: %s", operation)
	logging.GetLogger().Warn(ctx, msg,
		logging.Error(err),
		logging.String("error_code", string(ErrCodeDatabase)),
		logging.String("operation", operation),
		logging.String("location", caller()),
	)
	return WrapError(err, ErrCodeDatabase, msg)
}

// caller 返回包装函数调用方的位置
func caller() string {
	_, file, line, _ := runtime.Caller(2)
	return fmt.Sprintf("%s:%d", file, line)
}
