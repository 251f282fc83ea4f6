package session

import (
	"reflect"

	"audittrail/data/orm"
)

// PropertyEntry 单个属性在工作单元中的快照
type PropertyEntry struct {
	Name          string
	Column        string
	OriginalValue any
	CurrentValue  any
	IsModified    bool
	// IsTemporary 属性仍持有会话分配的临时键
	IsTemporary bool
}

// Entry 被跟踪实体的变更记录
type Entry struct {
	session  *Session
	entity   any
	value    reflect.Value
	meta     *orm.ModelMeta
	state    EntityState
	original []any
	modified []bool
}

func newEntry(s *Session, entity any, value reflect.Value, meta *orm.ModelMeta, state EntityState) *Entry {
	e := &Entry{
		session:  s,
		entity:   entity,
		value:    value,
		meta:     meta,
		state:    state,
		modified: make([]bool, len(meta.Fields)),
	}
	e.snapshot()
	return e
}

// Entity 返回实体指针
func (e *Entry) Entity() any { return e.entity }

// Meta 返回模型元信息
func (e *Entry) Meta() *orm.ModelMeta { return e.meta }

// State 返回当前状态
func (e *Entry) State() EntityState { return e.state }

// Key 返回单一主键的当前值（整数统一为 int64），复合主键返回 nil
func (e *Entry) Key() any {
	pk := e.meta.PrimaryKey()
	if pk == nil {
		return nil
	}
	return orm.NormalizeKey(pk.Value(e.value))
}

// Properties 按声明顺序返回全部属性
func (e *Entry) Properties() []PropertyEntry {
	props := make([]PropertyEntry, len(e.meta.Fields))
	for i := range e.meta.Fields {
		props[i] = e.property(i)
	}
	return props
}

// Property 按属性名返回快照
func (e *Entry) Property(name string) (PropertyEntry, bool) {
	for i := range e.meta.Fields {
		if e.meta.Fields[i].Name == name {
			return e.property(i), true
		}
	}
	return PropertyEntry{}, false
}

// IsModified 属性是否被标记为已修改
func (e *Entry) IsModified(name string) bool {
	p, ok := e.Property(name)
	return ok && p.IsModified
}

// SetCurrentValue 写入属性当前值；事务回滚时撤销
func (e *Entry) SetCurrentValue(name string, value any) error {
	f, ok := e.meta.Field(name)
	if !ok {
		return ErrUnknownProperty.WithContext("model", e.meta.Name).WithContext("property", name)
	}
	return e.session.setField(e.value, f, value)
}

// HasTemporaryValues 主键或任一关联外键仍为临时键
func (e *Entry) HasTemporaryValues() bool {
	for i := range e.meta.Fields {
		if e.isTemporary(i) {
			return true
		}
	}
	return false
}

func (e *Entry) property(i int) PropertyEntry {
	f := &e.meta.Fields[i]
	return PropertyEntry{
		Name:          f.Name,
		Column:        f.Column,
		OriginalValue: e.original[i],
		CurrentValue:  f.Value(e.value),
		IsModified:    e.modified[i],
		IsTemporary:   e.isTemporary(i),
	}
}

func (e *Entry) isTemporary(i int) bool {
	f := &e.meta.Fields[i]
	v := f.Value(e.value)
	for _, rel := range e.meta.Relations {
		if rel.ForeignKey == f.Name && e.session.isTempKey(rel.Target, v) {
			return true
		}
	}
	return f.PrimaryKey && e.session.isTempKey(e.meta.Type, v)
}

// snapshot 以当前值作为原始值，并清除修改标记
func (e *Entry) snapshot() {
	e.original = make([]any, len(e.meta.Fields))
	for i := range e.meta.Fields {
		e.original[i] = e.meta.Fields[i].Value(e.value)
	}
	for i := range e.modified {
		e.modified[i] = false
	}
}

func (e *Entry) markAllModified() {
	for i := range e.meta.Fields {
		if !e.meta.Fields[i].PrimaryKey {
			e.modified[i] = true
		}
	}
}

// detectChanges 对比原始值与当前值，返回是否存在修改
func (e *Entry) detectChanges() bool {
	changed := false
	for i := range e.meta.Fields {
		f := &e.meta.Fields[i]
		if f.PrimaryKey {
			continue
		}
		if !ValuesEqual(e.original[i], f.Value(e.value)) {
			e.modified[i] = true
		}
		changed = changed || e.modified[i]
	}
	return changed
}

func (e *Entry) originalOf(f *orm.FieldMeta) any {
	for i := range e.meta.Fields {
		if e.meta.Fields[i].Name == f.Name {
			return e.original[i]
		}
	}
	return nil
}

func (e *Entry) modifiedProperties() []string {
	var names []string
	for i := range e.meta.Fields {
		if e.modified[i] {
			names = append(names, e.meta.Fields[i].Name)
		}
	}
	return names
}

type entryState struct {
	entry    *Entry
	state    EntityState
	original []any
	modified []bool
}

func (e *Entry) save() entryState {
	return entryState{
		entry:    e,
		state:    e.state,
		original: append([]any(nil), e.original...),
		modified: append([]bool(nil), e.modified...),
	}
}

func (st entryState) restore() {
	st.entry.state = st.state
	st.entry.original = st.original
	st.entry.modified = st.modified
}
