package audit

import (
	"audittrail/errors"
)

var (
	// ErrDuplicateServiceHistory 同一工作单元出现了第二条 ServiceHistory
	ErrDuplicateServiceHistory = errors.NewError(errors.ErrCodeDuplicateServiceHistory, "工作单元中只能存在一条服务历史记录")
	// ErrMissingServiceHistory 存在待审计的变更但没有 ServiceHistory
	ErrMissingServiceHistory = errors.NewError(errors.ErrCodeMissingServiceHistory, "存在需要审计的变更但缺少服务历史记录")
)
