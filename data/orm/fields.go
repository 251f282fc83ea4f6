package orm

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

// Indirect 返回实体指向的结构体值；实体必须是非 nil 的结构体指针。
func Indirect(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("orm: entity must be a non-nil pointer to struct, got %T", entity)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("orm: entity must be a non-nil pointer to struct, got %T", entity)
	}
	return v, nil
}

// Value 读取字段值；指针字段解引用，nil 指针返回 nil。
func (f *FieldMeta) Value(v reflect.Value) any {
	fv := fieldByIndexSafe(v, f.Index)
	if !fv.IsValid() {
		return nil
	}
	for fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return nil
		}
		fv = fv.Elem()
	}
	return fv.Interface()
}

// Addr 返回字段地址，供 Scan 使用。
func (f *FieldMeta) Addr(v reflect.Value) any {
	fv := fieldByIndexSafe(v, f.Index)
	if !fv.IsValid() || !fv.CanAddr() {
		var discard any
		return &discard
	}
	return fv.Addr().Interface()
}

// Set 写入字段值；整数之间自动转换，nil 置零（指针字段置 nil）。
func (f *FieldMeta) Set(v reflect.Value, value any) error {
	fv := fieldByIndexSafe(v, f.Index)
	if !fv.IsValid() || !fv.CanSet() {
		return fmt.Errorf("orm: field %s is not settable", f.Name)
	}
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	targetType := fv.Type()
	isPtr := targetType.Kind() == reflect.Ptr
	if isPtr {
		targetType = targetType.Elem()
	}

	rv := reflect.ValueOf(value)
	switch {
	case rv.Type() == targetType:
	case isInteger(rv.Kind()) && isInteger(targetType.Kind()):
		rv = rv.Convert(targetType)
	case rv.Type().AssignableTo(targetType):
	default:
		return fmt.Errorf("orm: cannot assign %T to field %s (%s)", value, f.Name, fv.Type())
	}

	if isPtr {
		p := reflect.New(targetType)
		p.Elem().Set(rv)
		fv.Set(p)
		return nil
	}
	fv.Set(rv)
	return nil
}

// NormalizeKey 将整数键统一为 int64，其余原样返回。
func NormalizeKey(value any) any {
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	default:
		return rv.Interface()
	}
}

// IsNullKey 外键/主键是否为空：nil、0 或空字符串。
func IsNullKey(value any) bool {
	switch k := NormalizeKey(value).(type) {
	case nil:
		return true
	case int64:
		return k == 0
	case string:
		return k == ""
	default:
		return false
	}
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func fieldByIndexSafe(v reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct || i < 0 || i >= v.NumField() {
			return reflect.Value{}
		}
		v = v.Field(i)
	}
	return v
}

// collectFields 展开内嵌结构体，收集标量字段。
func collectFields(t reflect.Type) []FieldMeta {
	var fields []FieldMeta
	seen := make(map[string]int)

	var walk func(reflect.Type, []int)
	walk = func(cur reflect.Type, prefix []int) {
		for i := 0; i < cur.NumField(); i++ {
			f := cur.Field(i)
			index := append(append([]int(nil), prefix...), i)

			// 内嵌结构体（例如 entity.Record）递归展开，即使类型未导出
			if f.Anonymous && f.Type.Kind() == reflect.Struct && !isTimeType(f.Type) {
				walk(f.Type, index)
				continue
			}
			if f.PkgPath != "" {
				continue
			}
			if !isScalarField(f.Type) {
				continue
			}

			fm, skip := parseFieldTag(f)
			if skip {
				continue
			}
			fm.Index = index
			// 外层同名字段覆盖内嵌定义
			if pos, ok := seen[fm.Name]; ok {
				fields[pos] = fm
				continue
			}
			seen[fm.Name] = len(fields)
			fields = append(fields, fm)
		}
	}

	walk(t, nil)
	return fields
}

func isScalarField(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if isTimeType(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func isTimeType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t == reflect.TypeOf(time.Time{})
}

// parseFieldTag 解析 gorm 风格标签：
//
//	column:xxx / primaryKey / autoIncrement / concurrencyToken / <-:create / -
//
// 列名优先级：gorm column > db 标签 > 蛇形字段名。
func parseFieldTag(f reflect.StructField) (fm FieldMeta, skip bool) {
	fm = FieldMeta{
		Name:     f.Name,
		Type:     f.Type,
		Nullable: f.Type.Kind() == reflect.Ptr,
	}

	if gormTag := f.Tag.Get("gorm"); gormTag != "" {
		for _, part := range strings.Split(gormTag, ";") {
			part = strings.TrimSpace(part)
			switch {
			case part == "-":
				return fm, true
			case strings.HasPrefix(part, "column:"):
				fm.Column = strings.TrimPrefix(part, "column:")
			case strings.EqualFold(part, "primaryKey"), strings.EqualFold(part, "primary_key"):
				fm.PrimaryKey = true
			case strings.EqualFold(part, "autoIncrement"):
				fm.AutoIncrement = true
			case strings.EqualFold(part, "concurrencyToken"):
				fm.ConcurrencyToken = true
			case part == "<-:create":
				fm.WriteOnce = true
			}
		}
	}

	if fm.Column == "" {
		switch dbTag := f.Tag.Get("db"); dbTag {
		case "-":
			return fm, true
		case "":
			fm.Column = toSnakeCase(f.Name)
		default:
			fm.Column = dbTag
		}
	}
	return fm, false
}

// toSnakeCase 驼峰转蛇形，连续大写视为缩写：ServiceHistoryID -> service_history_id
func toSnakeCase(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
