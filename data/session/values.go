package session

import (
	"bytes"
	"reflect"
	"time"
)

// ValuesEqual 空值感知的相等比较：
// 两者皆为 nil 视为相等；仅一方为 nil 视为不等；否则按结构比较（时间按时刻比较）。
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	}
	return reflect.DeepEqual(a, b)
}
