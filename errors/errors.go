// Package errors 审计轨迹模块的错误代码体系。
//
// 对外返回的错误都是 *AppError：Code 供程序判断，Cause 保留驱动或上下文错误，
// 上下文键值（表名、实体名、主键）随 Error() 输出。
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorCode 错误代码
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeCanceled     ErrorCode = "CANCELED"
	ErrCodeUnsupported  ErrorCode = "UNSUPPORTED"

	// 工作单元
	ErrCodeDependency  ErrorCode = "DEPENDENCY_ERROR"
	ErrCodeConcurrency ErrorCode = "CONCURRENCY_ERROR"

	// 审计
	ErrCodeDuplicateServiceHistory ErrorCode = "DUPLICATE_SERVICE_HISTORY"
	ErrCodeMissingServiceHistory   ErrorCode = "MISSING_SERVICE_HISTORY"

	// 基础设施
	ErrCodeDatabase  ErrorCode = "DATABASE_ERROR"
	ErrCodeMessaging ErrorCode = "MESSAGING_ERROR"
	ErrCodeConfig    ErrorCode = "CONFIG_ERROR"
)

// IError 带代码的错误
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	// Context 返回附加键值的副本
	Context() map[string]any
	// Stack 创建处的调用栈，按需格式化
	Stack() string

	WithContext(key string, value any) IError
}

// AppError IError 的唯一实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	context map[string]any
	pcs     []uintptr
}

// NewError 创建错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{code: code, message: message, pcs: callers()}
}

// WrapError 包装 err；err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, cause: err, pcs: callers()}
}

func (e *AppError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.code, e.message)
	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.context[k])
		}
		sb.WriteString(")")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Unwrap() error   { return e.cause }

func (e *AppError) Context() map[string]any {
	out := make(map[string]any, len(e.context))
	for k, v := range e.context {
		out[k] = v
	}
	return out
}

func (e *AppError) Stack() string {
	var sb strings.Builder
	frames := runtime.CallersFrames(e.pcs)
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			fmt.Fprintf(&sb, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// Is 同代码的 *AppError 视为相等，其余交给 cause
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.code == t.code
	}
	return false
}

// WithContext 返回附加了键值的副本，包级哨兵错误因此可以安全复用
func (e *AppError) WithContext(key string, value any) IError {
	ctx := e.Context()
	ctx[key] = value
	return &AppError{code: e.code, message: e.message, cause: e.cause, context: ctx, pcs: e.pcs}
}

// IsNotFound 错误链上是否有 NOT_FOUND
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsErrorCode 沿 cause 链查找指定代码
func IsErrorCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stdErrors.As(err, &appErr) {
			return false
		}
		if appErr.code == code {
			return true
		}
		err = appErr.cause
	}
	return false
}

// GetErrorCode 最外层 *AppError 的代码；非应用错误返回 INTERNAL_ERROR
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

func callers() []uintptr {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}
