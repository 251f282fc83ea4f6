package orm

import (
	"reflect"
)

// AssociationKind 表示关联类型。
type AssociationKind string

const (
	AssociationBelongsTo  AssociationKind = "belongs_to"
	AssociationManyToMany AssociationKind = "many_to_many"
)

// KeyStrategy 主键取值方式
type KeyStrategy int

const (
	// KeyAssigned 由调用方赋值（自然键、复合键）
	KeyAssigned KeyStrategy = iota
	// KeyAutoIncrement 数据库生成；插入前会话使用临时键占位
	KeyAutoIncrement
	// KeySnowflake 会话在 Add 时生成永久键
	KeySnowflake
)

// FieldMeta 描述字段元信息。
type FieldMeta struct {
	Name          string
	Column        string
	Type          reflect.Type
	Index         []int
	PrimaryKey    bool
	AutoIncrement bool
	Nullable      bool
	// ConcurrencyToken 更新时校验并自增（乐观锁）
	ConcurrencyToken bool
	// WriteOnce 仅在插入时写入，后续更新忽略
	WriteOnce bool
}

// RelationDescriptor 描述声明在模型上的一条外键关联。
//
// 关联在注册期静态声明，审计级联只读取这里的标记：
//   - AuditNavigation 正向导航被标记为需审计；
//   - AuditSkipNavigation 反向（多对多）导航被标记为需审计，仅当目标为可审计模型时生效。
type RelationDescriptor struct {
	Name       string
	Kind       AssociationKind
	ForeignKey string // 声明方上的外键属性名
	Target     reflect.Type

	AuditNavigation     bool
	AuditSkipNavigation bool
}

// TypeOf 返回 T 的反射类型。
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// BelongsTo 声明一条指向 T 的多对一关联。
func BelongsTo[T any](name, foreignKey string) RelationDescriptor {
	return RelationDescriptor{
		Name:       name,
		Kind:       AssociationBelongsTo,
		ForeignKey: foreignKey,
		Target:     TypeOf[T](),
	}
}

// JoinOf 声明多对多中间表指向 T 的一侧。
func JoinOf[T any](name, foreignKey string) RelationDescriptor {
	r := BelongsTo[T](name, foreignKey)
	r.Kind = AssociationManyToMany
	return r
}

// Audited 标记正向导航需审计。
func (r RelationDescriptor) Audited() RelationDescriptor {
	r.AuditNavigation = true
	return r
}

// AuditedFromTarget 标记反向（多对多）导航需审计。
func (r RelationDescriptor) AuditedFromTarget() RelationDescriptor {
	r.AuditSkipNavigation = true
	return r
}

// ModelMeta 描述模型级别元信息。
type ModelMeta struct {
	Type         reflect.Type
	Name         string // 展示名
	Table        string
	Fields       []FieldMeta
	Relations    []RelationDescriptor
	KeyStrategy  KeyStrategy
	Capabilities Capabilities

	byName   map[string]int
	byColumn map[string]int
}

// Has 判断模型是否具备指定能力。
func (m *ModelMeta) Has(cap ModelCapability) bool {
	return m != nil && m.Capabilities.Has(cap)
}

// Field 按属性名查找字段。
func (m *ModelMeta) Field(name string) (*FieldMeta, bool) {
	i, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return &m.Fields[i], true
}

// FieldByColumn 按列名查找字段。
func (m *ModelMeta) FieldByColumn(column string) (*FieldMeta, bool) {
	i, ok := m.byColumn[column]
	if !ok {
		return nil, false
	}
	return &m.Fields[i], true
}

// KeyFields 返回主键字段（复合主键按声明顺序）。
func (m *ModelMeta) KeyFields() []*FieldMeta {
	var keys []*FieldMeta
	for i := range m.Fields {
		if m.Fields[i].PrimaryKey {
			keys = append(keys, &m.Fields[i])
		}
	}
	return keys
}

// PrimaryKey 返回单一主键字段；无主键或复合主键时返回 nil。
func (m *ModelMeta) PrimaryKey() *FieldMeta {
	keys := m.KeyFields()
	if len(keys) != 1 {
		return nil
	}
	return keys[0]
}

// ConcurrencyToken 返回并发令牌字段（可能为 nil）。
func (m *ModelMeta) ConcurrencyToken() *FieldMeta {
	for i := range m.Fields {
		if m.Fields[i].ConcurrencyToken {
			return &m.Fields[i]
		}
	}
	return nil
}

func (m *ModelMeta) index() {
	m.byName = make(map[string]int, len(m.Fields))
	m.byColumn = make(map[string]int, len(m.Fields))
	for i, f := range m.Fields {
		m.byName[f.Name] = i
		m.byColumn[f.Column] = i
	}
}
