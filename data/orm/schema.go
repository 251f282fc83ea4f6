package orm

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/jinzhu/inflection"
)

// Schema 模型注册表，由组合根在启动期填充，之后只读共享。
type Schema struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*ModelMeta
	order  []*ModelMeta
}

// NewSchema 创建空注册表。
func NewSchema() *Schema {
	return &Schema{byType: make(map[reflect.Type]*ModelMeta)}
}

// ModelOption 注册选项。
type ModelOption func(*ModelMeta)

// WithTable 指定物理表名。
func WithTable(table string) ModelOption {
	return func(m *ModelMeta) { m.Table = table }
}

// WithDisplayName 指定展示名（写入审计行的 entityName）。
func WithDisplayName(name string) ModelOption {
	return func(m *ModelMeta) { m.Name = name }
}

// WithRelations 追加关联声明。
func WithRelations(relations ...RelationDescriptor) ModelOption {
	return func(m *ModelMeta) { m.Relations = append(m.Relations, relations...) }
}

// WithKeyStrategy 覆盖主键策略。
func WithKeyStrategy(strategy KeyStrategy) ModelOption {
	return func(m *ModelMeta) { m.KeyStrategy = strategy }
}

// WithCapabilities 追加能力标记。
func WithCapabilities(caps ...ModelCapability) ModelOption {
	return func(m *ModelMeta) {
		for _, c := range caps {
			m.Capabilities[c] = true
		}
	}
}

// Register 注册模型；model 可为结构体值或指针。重复注册同一类型返回错误。
func (s *Schema) Register(model any, opts ...ModelOption) (*ModelMeta, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return nil, fmt.Errorf("orm: cannot register nil model")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("orm: model must be a struct, got %s", t)
	}

	meta := &ModelMeta{
		Type:         t,
		Name:         t.Name(),
		Fields:       collectFields(t),
		Capabilities: NewCapabilities(),
	}
	if p, ok := reflect.New(t).Interface().(ICapabilityProvider); ok {
		for _, c := range p.ModelCapabilities() {
			meta.Capabilities[c] = true
		}
	}
	if tn, ok := reflect.New(t).Interface().(interface{ TableName() string }); ok {
		meta.Table = tn.TableName()
	}
	for _, opt := range opts {
		opt(meta)
	}
	if meta.Table == "" {
		meta.Table = inflection.Plural(toSnakeCase(t.Name()))
	}
	meta.index()

	if pk := meta.PrimaryKey(); pk != nil && pk.AutoIncrement && meta.KeyStrategy == KeyAssigned {
		meta.KeyStrategy = KeyAutoIncrement
	}
	if err := validate(meta); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byType[t]; exists {
		return nil, fmt.Errorf("orm: model %s already registered", t)
	}
	s.byType[t] = meta
	s.order = append(s.order, meta)
	return meta, nil
}

// MustRegister 同 Register，失败时 panic（用于组合根）。
func (s *Schema) MustRegister(model any, opts ...ModelOption) *ModelMeta {
	meta, err := s.Register(model, opts...)
	if err != nil {
		panic(err)
	}
	return meta
}

// MetaFor 按类型查找元信息。
func (s *Schema) MetaFor(t reflect.Type) (*ModelMeta, bool) {
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.byType[t]
	return meta, ok
}

// MetaOf 按实体实例查找元信息。
func (s *Schema) MetaOf(entity any) (*ModelMeta, bool) {
	return s.MetaFor(reflect.TypeOf(entity))
}

// Models 按注册顺序返回全部模型。
func (s *Schema) Models() []*ModelMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ModelMeta, len(s.order))
	copy(out, s.order)
	return out
}

// IsAuditedRelation 关联是否参与审计级联：
// 正向导航被标记，或反向导航被标记且目标模型可审计。
func (s *Schema) IsAuditedRelation(rel RelationDescriptor) bool {
	if rel.AuditNavigation {
		return true
	}
	if !rel.AuditSkipNavigation {
		return false
	}
	target, ok := s.MetaFor(rel.Target)
	return ok && target.Has(CapabilityAuditable)
}

func validate(meta *ModelMeta) error {
	keys := meta.KeyFields()
	if len(keys) == 0 {
		return fmt.Errorf("orm: model %s has no primary key", meta.Type)
	}
	if meta.KeyStrategy != KeyAssigned && len(keys) != 1 {
		return fmt.Errorf("orm: model %s: generated keys require a single primary key", meta.Type)
	}
	if meta.Has(CapabilityRecord) {
		pk := meta.PrimaryKey()
		if pk == nil || !isInteger(pk.Type.Kind()) {
			return fmt.Errorf("orm: record model %s requires a single integer primary key", meta.Type)
		}
	}
	for _, rel := range meta.Relations {
		if rel.Target == nil {
			return fmt.Errorf("orm: model %s relation %s has no target", meta.Type, rel.Name)
		}
		if _, ok := meta.Field(rel.ForeignKey); !ok {
			return fmt.Errorf("orm: model %s relation %s: unknown foreign key %s", meta.Type, rel.Name, rel.ForeignKey)
		}
	}
	return nil
}
