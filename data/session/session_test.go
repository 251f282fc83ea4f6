package session_test

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "audittrail/data/db"
	dbbasic "audittrail/data/db/basic"
	"audittrail/data/orm"
	ormbasic "audittrail/data/orm/basic"
	"audittrail/data/session"
	"audittrail/domain/entity"
	"audittrail/errors"
)

type author struct {
	entity.AuditableRecord
	Name string
}

type book struct {
	entity.AuditableRecord
	Title    string
	AuthorID int64
}

type ticket struct {
	ID    int64 `gorm:"primaryKey"`
	Topic string
}

type memo struct {
	ID   int64 `gorm:"primaryKey"`
	Body *string
}

type fixture struct {
	db     *dbbasic.DB
	schema *orm.Schema
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := dbbasic.New(core.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema := orm.NewSchema()
	schema.MustRegister(&author{})
	schema.MustRegister(&book{}, orm.WithRelations(orm.BelongsTo[author]("Author", "AuthorID")))
	schema.MustRegister(&ticket{}, orm.WithKeyStrategy(orm.KeySnowflake))
	schema.MustRegister(&memo{})

	x := ormbasic.New(db)
	for _, meta := range schema.Models() {
		require.NoError(t, x.EnsureTable(ctx, meta))
	}
	return &fixture{db: db, schema: schema}
}

func (f *fixture) session(opts ...session.Option) *session.Session {
	return session.New(f.db, f.schema, opts...)
}

type hookFunc struct {
	before func(ctx context.Context, s *session.Session) error
	after  func(ctx context.Context, s *session.Session) error

	committed  int
	rolledBack int
}

func (h *hookFunc) BeforeSave(ctx context.Context, s *session.Session) error {
	if h.before == nil {
		return nil
	}
	return h.before(ctx, s)
}

func (h *hookFunc) AfterSave(ctx context.Context, s *session.Session) error {
	if h.after == nil {
		return nil
	}
	return h.after(ctx, s)
}

func (h *hookFunc) AfterCommit(context.Context, *session.Session)   { h.committed++ }
func (h *hookFunc) AfterRollback(context.Context, *session.Session) { h.rolledBack++ }

func TestAdd_TemporaryKeysAreFixedUpAfterInsert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session()

	a := &author{Name: "Le Guin"}
	require.NoError(t, s.Add(a))
	require.Less(t, a.ID, int64(0), "自增主键在插入前应为临时负键")

	b := &book{Title: "The Dispossessed", AuthorID: a.ID}
	require.NoError(t, s.Add(b))

	eb, ok := s.Entry(b)
	require.True(t, ok)
	assert.Equal(t, session.Added, eb.State())
	assert.True(t, eb.HasTemporaryValues())

	prop, ok := eb.Property("AuthorID")
	require.True(t, ok)
	assert.True(t, prop.IsTemporary)

	// 临时键同样可以通过身份映射解析
	found, err := s.Find(ctx, orm.TypeOf[author](), a.ID)
	require.NoError(t, err)
	assert.Same(t, a, found)

	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Greater(t, a.ID, int64(0))
	assert.Equal(t, a.ID, b.AuthorID)
	assert.Equal(t, session.Unchanged, eb.State())
	assert.False(t, eb.HasTemporaryValues())

	var books []book
	require.NoError(t, s.Query(ctx, &books, orm.WithWhere("author_id = ?", a.ID)))
	require.Len(t, books, 1)
	assert.Equal(t, "The Dispossessed", books[0].Title)
}

func TestAdd_SnowflakeKeyAssignedImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session()

	tk := &ticket{Topic: "printer"}
	require.NoError(t, s.Add(tk))
	assert.Greater(t, tk.ID, int64(0))

	e, _ := s.Entry(tk)
	assert.False(t, e.HasTemporaryValues())

	_, err := s.SaveChanges(ctx)
	require.NoError(t, err)

	loaded, err := session.FindAs[ticket](ctx, f.session(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "printer", loaded.Topic)
}

type fixedKeys int64

func (k fixedKeys) NextID() (int64, error) { return int64(k), nil }

func TestSaveChanges_DuplicateKeyIsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i, topic := range []string{"printer", "scanner"} {
		s := f.session(session.WithKeyGenerator(fixedKeys(42)))
		require.NoError(t, s.Add(&ticket{Topic: topic}))
		_, err := s.SaveChanges(ctx)
		if i == 0 {
			require.NoError(t, err)
			continue
		}
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConflict), "got %v", err)
	}
}

func TestDetectChanges_MarksOnlyChangedProperties(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seed := f.session()
	a := &author{Name: "Butler"}
	require.NoError(t, seed.Add(a))
	_, err := seed.SaveChanges(ctx)
	require.NoError(t, err)

	s := f.session()
	loaded, err := session.FindAs[author](ctx, s, a.ID)
	require.NoError(t, err)

	again, err := session.FindAs[author](ctx, s, a.ID)
	require.NoError(t, err)
	assert.Same(t, loaded, again, "同一会话内按主键解析应返回同一实例")

	e, ok := s.Entry(loaded)
	require.True(t, ok)
	assert.Equal(t, session.Unchanged, e.State())

	loaded.Name = "Octavia Butler"
	s.DetectChanges()
	assert.Equal(t, session.Modified, e.State())
	assert.True(t, e.IsModified("Name"))
	assert.False(t, e.IsModified("CreatedBy"))

	prop, _ := e.Property("Name")
	assert.Equal(t, "Butler", prop.OriginalValue)
	assert.Equal(t, "Octavia Butler", prop.CurrentValue)

	_, err = s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.RowVersion)
	assert.Equal(t, session.Unchanged, e.State())
	assert.False(t, e.IsModified("Name"))
}

func TestDetectChanges_PointerFieldEditedInPlace(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	body := "draft"
	m := &memo{ID: 1, Body: &body}
	require.NoError(t, s.Attach(m))

	e, ok := s.Entry(m)
	require.True(t, ok)
	require.Equal(t, session.Unchanged, e.State())

	// 通过同一指针原地修改，快照不应随之变化
	*m.Body = "edited"
	s.DetectChanges()
	assert.Equal(t, session.Modified, e.State())
	assert.True(t, e.IsModified("Body"))

	prop, _ := e.Property("Body")
	assert.Equal(t, "draft", prop.OriginalValue)
	assert.Equal(t, "edited", prop.CurrentValue)
}

func TestSetCurrentValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("回滚撤销写入", func(t *testing.T) {
		s := f.session()
		a := &author{AuditableRecord: entity.AuditableRecord{Record: entity.Record{ID: 11}}, Name: "Le Guin"}
		require.NoError(t, s.Attach(a))

		require.NoError(t, s.Begin(ctx))
		e, _ := s.Entry(a)
		require.NoError(t, e.SetCurrentValue("LastChangedBy", "alice"))
		require.NoError(t, e.SetCurrentValue("Name", "Ursula Le Guin"))
		assert.Equal(t, "alice", a.LastChangedBy)

		require.NoError(t, s.Rollback(ctx))
		assert.Empty(t, a.LastChangedBy)
		assert.Equal(t, "Le Guin", a.Name)
	})

	t.Run("未知属性", func(t *testing.T) {
		s := f.session()
		a := &author{AuditableRecord: entity.AuditableRecord{Record: entity.Record{ID: 12}}}
		require.NoError(t, s.Attach(a))

		e, _ := s.Entry(a)
		err := e.SetCurrentValue("Nickname", "x")
		assert.True(t, stdErrors.Is(err, session.ErrUnknownProperty))
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
	})
}

func TestSaveChanges_ConcurrencyTokenConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seed := f.session()
	a := &author{Name: "Banks"}
	require.NoError(t, seed.Add(a))
	_, err := seed.SaveChanges(ctx)
	require.NoError(t, err)

	first := f.session()
	second := f.session()
	x, err := session.FindAs[author](ctx, first, a.ID)
	require.NoError(t, err)
	y, err := session.FindAs[author](ctx, second, a.ID)
	require.NoError(t, err)

	x.Name = "Iain Banks"
	_, err = first.SaveChanges(ctx)
	require.NoError(t, err)

	y.Name = "Iain M. Banks"
	_, err = second.SaveChanges(ctx)
	require.Error(t, err)
	assert.True(t, stdErrors.Is(err, session.ErrConcurrency))
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConcurrency))

	e, _ := second.Entry(y)
	assert.Equal(t, session.Modified, e.State(), "失败的保存不应接受变更")
	assert.Equal(t, int64(0), y.RowVersion, "失败的保存应撤销令牌递增")
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session()

	pending := &author{Name: "never saved"}
	require.NoError(t, s.Add(pending))
	require.NoError(t, s.Remove(pending))
	_, tracked := s.Entry(pending)
	assert.False(t, tracked, "移除 Added 实体应直接脱离跟踪")

	a := &author{Name: "Delany"}
	require.NoError(t, s.Add(a))
	_, err := s.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Remove(a))
	e, _ := s.Entry(a)
	assert.Equal(t, session.Deleted, e.State())

	_, err = s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Detached, e.State())

	_, err = session.FindAs[author](ctx, f.session(), a.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestSaveChanges_HookFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boom := stdErrors.New("boom")
	hook := &hookFunc{after: func(context.Context, *session.Session) error { return boom }}
	s := f.session(session.WithSaveHook(hook))

	a := &author{Name: "Zelazny"}
	require.NoError(t, s.Add(a))
	temp := a.ID

	_, err := s.SaveChanges(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, hook.rolledBack)
	assert.Equal(t, 0, hook.committed)

	assert.Equal(t, temp, a.ID, "回滚后应恢复临时键")
	e, ok := s.Entry(a)
	require.True(t, ok)
	assert.Equal(t, session.Added, e.State())

	var all []author
	require.NoError(t, s.Query(ctx, &all))
	assert.Empty(t, all)
}

func TestSaveChanges_ReentrantSaveSharesTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var inner *book
	hook := &hookFunc{}
	hook.after = func(ctx context.Context, s *session.Session) error {
		if inner != nil {
			return nil
		}
		require.True(t, s.InTransaction())
		var parent *author
		for _, e := range s.Entries() {
			if a, ok := e.Entity().(*author); ok {
				parent = a
			}
		}
		inner = &book{Title: "Lord of Light", AuthorID: parent.ID}
		if err := s.Add(inner); err != nil {
			return err
		}
		_, err := s.SaveChanges(ctx)
		return err
	}
	s := f.session(session.WithSaveHook(hook))

	require.NoError(t, s.Add(&author{Name: "Zelazny"}))
	_, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.False(t, s.InTransaction())
	assert.Equal(t, 1, hook.committed)

	require.NotNil(t, inner)
	assert.Greater(t, inner.ID, int64(0))

	var books []book
	require.NoError(t, s.Query(ctx, &books))
	assert.Len(t, books, 1)
}

func TestExplicitTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session()

	require.NoError(t, s.Begin(ctx))
	assert.True(t, errors.IsErrorCode(s.Begin(ctx), errors.ErrCodeConflict))

	a := &author{Name: "Wolfe"}
	require.NoError(t, s.Add(a))
	_, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.True(t, s.InTransaction(), "显式事务不应被 SaveChanges 提交")

	require.NoError(t, s.Rollback(ctx))
	assert.Less(t, a.ID, int64(0))

	var all []author
	require.NoError(t, s.Query(ctx, &all))
	assert.Empty(t, all)
}

func TestSaveChanges_DanglingTemporaryKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session()

	require.NoError(t, s.Add(&book{Title: "orphan", AuthorID: -42}))
	_, err := s.SaveChanges(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDependency))
}

func TestUnmappedModel(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	type stranger struct{ ID int64 }
	err := s.Add(&stranger{})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
	assert.True(t, stdErrors.Is(err, orm.ErrUnmappedModel))

	err = s.Add(stranger{})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
}

func TestUpdate_MarksAllPropertiesModified(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	a := &author{AuditableRecord: entity.AuditableRecord{Record: entity.Record{ID: 7}}, Name: "detached"}
	require.NoError(t, s.Update(a))

	e, ok := s.Entry(a)
	require.True(t, ok)
	assert.Equal(t, session.Modified, e.State())
	assert.True(t, e.IsModified("Name"))
	assert.False(t, e.IsModified("ID"))
}

func TestValuesEqual(t *testing.T) {
	now := time.Now()
	one := 1

	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"都为空", nil, nil, true},
		{"一方为空", nil, 1, false},
		{"另一方为空", "x", nil, false},
		{"相同整数", int64(3), int64(3), true},
		{"不同整数", int64(3), int64(4), false},
		{"时区不同的同一时刻", now, now.UTC(), true},
		{"字节切片", []byte("ab"), []byte("ab"), true},
		{"解引用后的值", one, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, session.ValuesEqual(tt.a, tt.b))
		})
	}
}
