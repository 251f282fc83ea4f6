// Package session 实现工作单元（Unit of Work）：跟踪实体状态与属性快照，
// 在一次 SaveChanges 中按依赖顺序写入，并在保存前后调用扩展钩子。
//
// 会话不是并发安全的，一个会话对应一个逻辑工作单元。
package session

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"audittrail/codegen/snowflake"
	dbcore "audittrail/data/db"
	"audittrail/data/orm"
	ormbasic "audittrail/data/orm/basic"
	"audittrail/errors"
	"audittrail/logging"
)

// KeyGenerator 客户端主键生成器（KeySnowflake 模型）
type KeyGenerator interface {
	NextID() (int64, error)
}

// Option 会话选项
type Option func(*Session)

// WithSaveHook 注册保存钩子；同时实现 CommitHook 的钩子也会收到提交/回滚通知
func WithSaveHook(h SaveHook) Option {
	return func(s *Session) {
		if h == nil {
			return
		}
		s.saveHooks = append(s.saveHooks, h)
		if ch, ok := h.(CommitHook); ok {
			s.commitHooks = append(s.commitHooks, ch)
		}
	}
}

// WithCommitHook 单独注册提交钩子
func WithCommitHook(h CommitHook) Option {
	return func(s *Session) {
		if h != nil {
			s.commitHooks = append(s.commitHooks, h)
		}
	}
}

// WithKeyGenerator 指定 KeySnowflake 模型的主键生成器
func WithKeyGenerator(g KeyGenerator) Option {
	return func(s *Session) { s.keys = g }
}

// WithLogger 指定日志器
func WithLogger(l logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

type identityKey struct {
	t   reflect.Type
	key any
}

type tempKey struct {
	t   reflect.Type
	key int64
}

// Session 工作单元
type Session struct {
	db     dbcore.IDatabase
	schema *orm.Schema
	keys   KeyGenerator
	logger logging.Logger

	saveHooks   []SaveHook
	commitHooks []CommitHook

	entries  []*Entry
	byEntity map[any]*Entry
	identity map[identityKey]*Entry
	temps    map[tempKey]*Entry
	nextTemp int64

	tx         dbcore.ITransaction
	checkpoint *checkpoint
	undo       []func()
	depth      int
}

// New 创建会话
func New(db dbcore.IDatabase, schema *orm.Schema, opts ...Option) *Session {
	s := &Session{
		db:       db,
		schema:   schema,
		logger:   logging.ComponentLogger("data.session"),
		byEntity: make(map[any]*Entry),
		identity: make(map[identityKey]*Entry),
		temps:    make(map[tempKey]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.keys == nil {
		// 0/0 号节点，生产环境应通过 WithKeyGenerator 指定
		s.keys, _ = snowflake.NewGenerator(0, 0)
	}
	return s
}

// Schema 返回模型注册表
func (s *Session) Schema() *orm.Schema { return s.schema }

// Database 返回当前数据库：事务进行中时为事务本身
func (s *Session) Database() dbcore.IDatabase {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// InTransaction 是否存在环境事务
func (s *Session) InTransaction() bool { return s.tx != nil }

func (s *Session) executor() *ormbasic.Executor {
	return ormbasic.New(s.Database())
}

func (s *Session) metaOf(entity any) (*orm.ModelMeta, reflect.Value, error) {
	v, err := orm.Indirect(entity)
	if err != nil {
		return nil, reflect.Value{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "实体必须为结构体指针")
	}
	meta, ok := s.schema.MetaFor(v.Type())
	if !ok {
		return nil, reflect.Value{}, ErrUnmappedModel.WithContext("type", v.Type().String())
	}
	return meta, v, nil
}

// Add 以 Added 状态跟踪实体。
//
// 自增主键模型在主键为空时写入临时负键；雪花主键模型在此时获得永久键。
func (s *Session) Add(entity any) error {
	meta, v, err := s.metaOf(entity)
	if err != nil {
		return err
	}

	if e, ok := s.byEntity[entity]; ok {
		if e.state == Deleted {
			e.state = Unchanged
			if e.detectChanges() {
				e.state = Modified
			}
		}
		return nil
	}

	if pk := meta.PrimaryKey(); pk != nil && orm.IsNullKey(pk.Value(v)) {
		switch meta.KeyStrategy {
		case orm.KeyAutoIncrement:
			s.nextTemp--
			if err := pk.Set(v, s.nextTemp); err != nil {
				return err
			}
		case orm.KeySnowflake:
			id, err := s.keys.NextID()
			if err != nil {
				return errors.WrapError(err, errors.ErrCodeInternal, "生成主键失败")
			}
			if err := pk.Set(v, id); err != nil {
				return err
			}
		}
	}

	e := newEntry(s, entity, v, meta, Added)
	if err := s.track(e); err != nil {
		return err
	}
	if k, ok := s.tempKeyOf(e); ok {
		s.temps[k] = e
	}
	return nil
}

// Attach 以 Unchanged 状态跟踪实体；主键为空的自增模型按 Add 处理
func (s *Session) Attach(entity any) error {
	meta, v, err := s.metaOf(entity)
	if err != nil {
		return err
	}
	if _, ok := s.byEntity[entity]; ok {
		return nil
	}
	if pk := meta.PrimaryKey(); pk != nil && meta.KeyStrategy != orm.KeyAssigned && orm.IsNullKey(pk.Value(v)) {
		return s.Add(entity)
	}
	return s.track(newEntry(s, entity, v, meta, Unchanged))
}

// Update 标记实体全部属性为已修改；未跟踪的实体先附加
func (s *Session) Update(entity any) error {
	e, ok := s.byEntity[entity]
	if !ok {
		if err := s.Attach(entity); err != nil {
			return err
		}
		e = s.byEntity[entity]
	}
	if e.state == Added {
		return nil
	}
	e.markAllModified()
	e.state = Modified
	return nil
}

// Remove 标记实体为 Deleted；Added 实体直接脱离跟踪
func (s *Session) Remove(entity any) error {
	e, ok := s.byEntity[entity]
	if !ok {
		if err := s.Attach(entity); err != nil {
			return err
		}
		e = s.byEntity[entity]
	}
	if e.state == Added {
		s.untrack(e)
		return nil
	}
	e.state = Deleted
	return nil
}

// Entry 返回实体的跟踪记录
func (s *Session) Entry(entity any) (*Entry, bool) {
	e, ok := s.byEntity[entity]
	return e, ok
}

// Entries 按跟踪顺序返回全部记录
func (s *Session) Entries() []*Entry {
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// DetectChanges 对比快照，将属性被改动的 Unchanged 实体标记为 Modified
func (s *Session) DetectChanges() {
	for _, e := range s.entries {
		if e.state != Unchanged && e.state != Modified {
			continue
		}
		if e.detectChanges() {
			e.state = Modified
		}
	}
}

// HasChanges 是否存在待保存的变更
func (s *Session) HasChanges() bool {
	s.DetectChanges()
	for _, e := range s.entries {
		if e.state == Added || e.state == Modified || e.state == Deleted {
			return true
		}
	}
	return false
}

// Find 按主键解析实体：先查身份映射（包括临时键），未命中则从数据库加载并以 Unchanged 附加
func (s *Session) Find(ctx context.Context, modelType reflect.Type, key any) (any, error) {
	meta, ok := s.schema.MetaFor(modelType)
	if !ok {
		return nil, ErrUnmappedModel.WithContext("type", fmt.Sprint(modelType))
	}
	if e, ok := s.identity[identityKey{t: meta.Type, key: orm.NormalizeKey(key)}]; ok {
		return e.entity, nil
	}
	if s.isTempKey(meta.Type, key) {
		return nil, errors.NewError(errors.ErrCodeNotFound, "临时键对应的实体未被跟踪").
			WithContext("model", meta.Name)
	}

	dest := reflect.New(meta.Type).Interface()
	if err := s.executor().FindByKey(ctx, meta, key, dest); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "find "+meta.Table)
	}
	if err := s.Attach(dest); err != nil {
		return nil, err
	}
	return dest, nil
}

// FindAs 类型化的 Find
func FindAs[T any](ctx context.Context, s *Session, key any) (*T, error) {
	found, err := s.Find(ctx, reflect.TypeOf((*T)(nil)).Elem(), key)
	if err != nil {
		return nil, err
	}
	return found.(*T), nil
}

// Query 执行不跟踪的查询，dest 为 *[]T 或 *[]*T
func (s *Session) Query(ctx context.Context, dest any, opts ...orm.QueryOption) error {
	t := reflect.TypeOf(dest)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Slice {
		return errors.NewError(errors.ErrCodeInvalidInput, "dest 必须为切片指针")
	}
	meta, ok := s.schema.MetaFor(t.Elem().Elem())
	if !ok {
		return ErrUnmappedModel.WithContext("type", t.Elem().Elem().String())
	}
	if err := s.executor().Query(ctx, meta, dest, opts...); err != nil {
		return errors.WrapDatabaseError(ctx, err, "query "+meta.Table)
	}
	return nil
}

func (s *Session) track(e *Entry) error {
	if id, ok := s.identityOf(e); ok {
		if other, exists := s.identity[id]; exists && other != e {
			return errors.NewError(errors.ErrCodeConflict, "同一主键的实体已被跟踪").
				WithContext("model", e.meta.Name).
				WithContext("key", fmt.Sprint(id.key))
		}
		s.identity[id] = e
	}
	s.entries = append(s.entries, e)
	s.byEntity[e.entity] = e
	return nil
}

func (s *Session) untrack(e *Entry) {
	if id, ok := s.identityOf(e); ok && s.identity[id] == e {
		delete(s.identity, id)
	}
	if k, ok := s.tempKeyOf(e); ok && s.temps[k] == e {
		delete(s.temps, k)
	}
	delete(s.byEntity, e.entity)
	for i, cur := range s.entries {
		if cur == e {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			break
		}
	}
	e.state = Detached
}

func (s *Session) identityOf(e *Entry) (identityKey, bool) {
	keys := e.meta.KeyFields()
	switch len(keys) {
	case 0:
		return identityKey{}, false
	case 1:
		k := orm.NormalizeKey(keys[0].Value(e.value))
		if orm.IsNullKey(k) {
			return identityKey{}, false
		}
		return identityKey{t: e.meta.Type, key: k}, true
	default:
		parts := make([]string, len(keys))
		for i, f := range keys {
			parts[i] = fmt.Sprint(orm.NormalizeKey(f.Value(e.value)))
		}
		return identityKey{t: e.meta.Type, key: strings.Join(parts, "|")}, true
	}
}

func (s *Session) tempKeyOf(e *Entry) (tempKey, bool) {
	if e.meta.KeyStrategy != orm.KeyAutoIncrement {
		return tempKey{}, false
	}
	k, ok := orm.NormalizeKey(e.Key()).(int64)
	if !ok || k >= 0 {
		return tempKey{}, false
	}
	return tempKey{t: e.meta.Type, key: k}, true
}

// isTempKey 值是否为 t 类型（自增主键模型）的临时键
func (s *Session) isTempKey(t reflect.Type, v any) bool {
	k, ok := orm.NormalizeKey(v).(int64)
	if !ok || k >= 0 {
		return false
	}
	meta, ok := s.schema.MetaFor(t)
	return ok && meta.KeyStrategy == orm.KeyAutoIncrement
}
