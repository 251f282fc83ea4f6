package audit

import (
	"bytes"
	"encoding/json"

	"audittrail/data/session"
)

// Diff 按分类时的变更类型计算旧值与新值：
//
//	Added    {}                   全部属性当前值
//	Modified 变更属性的原始值     变更属性的当前值
//	Deleted  全部属性原始值       {}
//	其他     {}                   {}
//
// 属性视为变更：被标记为已修改，且原始值与当前值在空值感知比较下不相等。
func Diff(a *AuditEntry) (oldValues, newValues map[string]any) {
	oldValues = make(map[string]any)
	newValues = make(map[string]any)

	switch a.kind {
	case session.Added:
		for _, p := range a.entry.Properties() {
			newValues[p.Name] = p.CurrentValue
		}
	case session.Modified:
		current := a.entry.Properties()
		for i, p := range a.captured {
			cur := current[i]
			if !p.IsModified && !cur.IsModified {
				continue
			}
			if session.ValuesEqual(p.OriginalValue, cur.CurrentValue) {
				continue
			}
			oldValues[p.Name] = p.OriginalValue
			newValues[p.Name] = cur.CurrentValue
		}
	case session.Deleted:
		for _, p := range a.captured {
			oldValues[p.Name] = p.OriginalValue
		}
	}
	return oldValues, newValues
}

// EncodeValues 将属性映射编码为 JSON 对象；nil 编码为 "{}"
func EncodeValues(values map[string]any) (string, error) {
	if values == nil {
		values = map[string]any{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeValues 解析 EncodeValues 的输出；数字保留为 json.Number 以免丢失 int64 精度
func DecodeValues(data string) (map[string]any, error) {
	values := make(map[string]any)
	if data == "" {
		return values, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return nil, err
	}
	return values, nil
}
