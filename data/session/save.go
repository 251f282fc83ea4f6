package session

import (
	"context"
	"reflect"
	"time"

	"audittrail/data/db/dialect"
	"audittrail/data/orm"
	ormbasic "audittrail/data/orm/basic"
	"audittrail/errors"
	"audittrail/logging"
)

const maxSaveDepth = 8

// checkpoint 事务开始时的跟踪状态，回滚时恢复
type checkpoint struct {
	entries  []*Entry
	states   []entryState
	identity map[identityKey]*Entry
	temps    map[tempKey]*Entry
}

// SaveChanges 保存全部待定变更，返回本次写入的行数。
//
// 没有环境事务时自动开启并在成功后提交；保存钩子内的嵌套调用复用同一事务。
// 任一步骤失败时回滚事务，并把会话恢复到事务开始时的状态。
func (s *Session) SaveChanges(ctx context.Context) (int, error) {
	if s.depth >= maxSaveDepth {
		return 0, ErrSaveDepth
	}

	owned := false
	if s.tx == nil {
		if err := s.Begin(ctx); err != nil {
			return 0, err
		}
		owned = true
	}

	s.depth++
	n, err := s.saveChanges(ctx)
	s.depth--

	if err != nil {
		if s.depth == 0 {
			if rbErr := s.Rollback(ctx); rbErr != nil {
				s.logger.Warn(ctx, "回滚失败", logging.Error(rbErr))
			}
		}
		return 0, err
	}

	if owned {
		if err := s.Commit(ctx); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (s *Session) saveChanges(ctx context.Context) (int, error) {
	start := time.Now()

	for _, h := range s.saveHooks {
		if err := h.BeforeSave(ctx, s); err != nil {
			return 0, err
		}
	}

	s.DetectChanges()
	n, err := s.persist(ctx)
	if err != nil {
		return 0, err
	}

	for _, h := range s.saveHooks {
		if err := h.AfterSave(ctx, s); err != nil {
			return 0, err
		}
	}

	s.logger.Debug(ctx, "保存完成",
		logging.Int("rows", n),
		logging.Int("depth", s.depth),
		logging.Duration("elapsed", time.Since(start)))
	return n, nil
}

// Begin 开启环境事务，之后的 SaveChanges 都在该事务内执行直到 Commit/Rollback
func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return ErrTransactionState.WithContext("reason", "transaction already open")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "begin")
	}
	s.tx = tx
	s.DetectChanges()
	s.checkpoint = s.capture()
	s.undo = nil
	return nil
}

// Commit 提交环境事务并通知 CommitHook
func (s *Session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return ErrTransactionState.WithContext("reason", "no transaction")
	}
	if s.depth > 0 {
		return ErrTransactionState.WithContext("reason", "commit inside save hook")
	}

	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		s.restore()
		for _, h := range s.commitHooks {
			h.AfterRollback(ctx, s)
		}
		return errors.WrapDatabaseError(ctx, err, "commit")
	}

	s.checkpoint = nil
	s.undo = nil
	for _, h := range s.commitHooks {
		h.AfterCommit(ctx, s)
	}
	return nil
}

// Rollback 回滚环境事务，恢复事务开始时的跟踪状态并通知 CommitHook；无事务时为空操作
func (s *Session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}

	tx := s.tx
	s.tx = nil
	err := tx.Rollback()
	s.restore()
	for _, h := range s.commitHooks {
		h.AfterRollback(ctx, s)
	}
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "rollback")
	}
	return nil
}

func (s *Session) persist(ctx context.Context) (int, error) {
	x := s.executor()

	var added, modified, deleted []*Entry
	for _, e := range s.entries {
		switch e.state {
		case Added:
			added = append(added, e)
		case Modified:
			modified = append(modified, e)
		case Deleted:
			deleted = append(deleted, e)
		}
	}

	written := 0

	// 外键仍指向待插入实体临时键的记录延后插入
	pending := added
	for len(pending) > 0 {
		var waiting []*Entry
		for _, e := range pending {
			if s.waitsOnTemporaryKey(e) {
				waiting = append(waiting, e)
				continue
			}
			if err := s.insert(ctx, x, e); err != nil {
				return 0, err
			}
			written++
		}
		if len(waiting) == len(pending) {
			return 0, ErrDanglingTemporaryKey.WithContext("model", waiting[0].meta.Name)
		}
		pending = waiting
	}

	for _, e := range modified {
		ok, err := s.update(ctx, x, e)
		if err != nil {
			return 0, err
		}
		if ok {
			written++
		}
	}

	for i := len(deleted) - 1; i >= 0; i-- {
		if err := s.delete(ctx, x, deleted[i]); err != nil {
			return 0, err
		}
		written++
	}

	s.acceptChanges()
	return written, nil
}

func (s *Session) waitsOnTemporaryKey(e *Entry) bool {
	for _, rel := range e.meta.Relations {
		f, ok := e.meta.Field(rel.ForeignKey)
		if ok && s.isTempKey(rel.Target, f.Value(e.value)) {
			return true
		}
	}
	return false
}

func (s *Session) insert(ctx context.Context, x *ormbasic.Executor, e *Entry) error {
	id, err := x.Insert(ctx, e.meta, e.entity)
	if err != nil {
		if dialect.FromDatabase(s.db).IsUniqueViolation(err) {
			return errors.WrapError(err, errors.ErrCodeConflict, "主键或唯一键冲突").WithContext("table", e.meta.Table)
		}
		return errors.WrapDatabaseError(ctx, err, "insert "+e.meta.Table)
	}
	if e.meta.KeyStrategy != orm.KeyAutoIncrement {
		return nil
	}
	return s.fixupKey(e, id)
}

// fixupKey 用生成的键替换临时键：实体主键、身份映射以及所有引用它的外键
func (s *Session) fixupKey(e *Entry, id int64) error {
	temp, ok := s.tempKeyOf(e)
	if !ok {
		return nil
	}

	pk := e.meta.PrimaryKey()
	if err := s.setField(e.value, pk, id); err != nil {
		return err
	}
	delete(s.temps, temp)
	delete(s.identity, identityKey{t: e.meta.Type, key: temp.key})
	s.identity[identityKey{t: e.meta.Type, key: id}] = e

	for _, other := range s.entries {
		for _, rel := range other.meta.Relations {
			if rel.Target != e.meta.Type {
				continue
			}
			fk, ok := other.meta.Field(rel.ForeignKey)
			if !ok {
				continue
			}
			if k, ok := orm.NormalizeKey(fk.Value(other.value)).(int64); ok && k == temp.key {
				if err := s.setField(other.value, fk, id); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// setField 写入字段并登记撤销操作
func (s *Session) setField(v reflect.Value, f *orm.FieldMeta, value any) error {
	prev := f.Value(v)
	if err := f.Set(v, value); err != nil {
		return err
	}
	s.undo = append(s.undo, func() { _ = f.Set(v, prev) })
	return nil
}

func (s *Session) update(ctx context.Context, x *ormbasic.Executor, e *Entry) (bool, error) {
	if e.HasTemporaryValues() {
		return false, ErrDanglingTemporaryKey.WithContext("model", e.meta.Name)
	}

	props := e.modifiedProperties()
	token := e.meta.ConcurrencyToken()
	if len(props) == 0 && token == nil {
		return false, nil
	}

	var expected any
	if token != nil {
		expected = e.originalOf(token)
		if cur, ok := orm.NormalizeKey(expected).(int64); ok {
			if err := s.setField(e.value, token, cur+1); err != nil {
				return false, err
			}
		}
	}

	n, err := x.Update(ctx, e.meta, e.entity, props, expected)
	if err != nil {
		return false, errors.WrapDatabaseError(ctx, err, "update "+e.meta.Table)
	}
	if n == 0 {
		return false, ErrConcurrency.WithContext("model", e.meta.Name).WithContext("key", e.Key())
	}
	return true, nil
}

func (s *Session) delete(ctx context.Context, x *ormbasic.Executor, e *Entry) error {
	var expected any
	if token := e.meta.ConcurrencyToken(); token != nil {
		expected = e.originalOf(token)
	}
	n, err := x.Delete(ctx, e.meta, e.entity, expected)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "delete "+e.meta.Table)
	}
	if n == 0 {
		return ErrConcurrency.WithContext("model", e.meta.Name).WithContext("key", e.Key())
	}
	return nil
}

// acceptChanges Added/Modified 转为 Unchanged 并刷新快照，Deleted 脱离跟踪
func (s *Session) acceptChanges() {
	for _, e := range s.Entries() {
		switch e.state {
		case Added, Modified:
			e.state = Unchanged
			e.snapshot()
		case Deleted:
			s.untrack(e)
		}
	}
}

func (s *Session) capture() *checkpoint {
	cp := &checkpoint{
		entries:  append([]*Entry(nil), s.entries...),
		states:   make([]entryState, len(s.entries)),
		identity: make(map[identityKey]*Entry, len(s.identity)),
		temps:    make(map[tempKey]*Entry, len(s.temps)),
	}
	for i, e := range s.entries {
		cp.states[i] = e.save()
	}
	for k, v := range s.identity {
		cp.identity[k] = v
	}
	for k, v := range s.temps {
		cp.temps[k] = v
	}
	return cp
}

// restore 撤销字段写入并恢复检查点；检查点之后才开始跟踪的实体脱离会话
func (s *Session) restore() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil

	cp := s.checkpoint
	s.checkpoint = nil
	if cp == nil {
		return
	}

	kept := make(map[*Entry]bool, len(cp.entries))
	for _, e := range cp.entries {
		kept[e] = true
	}
	for _, e := range s.entries {
		if !kept[e] {
			e.state = Detached
		}
	}

	s.entries = cp.entries
	s.identity = cp.identity
	s.temps = cp.temps
	s.byEntity = make(map[any]*Entry, len(cp.entries))
	for _, st := range cp.states {
		st.restore()
		s.byEntity[st.entry.entity] = st.entry
	}
}
