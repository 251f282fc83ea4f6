// Package basic 在 data/db + data/db/sql 之上按 orm.ModelMeta 执行单表读写。
//
// 设计目标：
//   - 不依赖具体 ORM（如 gorm），直接在 DB 抽象之上工作；
//   - 只提供会话需要的最小能力：按主键插入/更新/删除、按主键或条件查询、建表；
//   - 方言差异（RETURNING、列类型）交给 dialect 处理。
package basic

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	dbcore "audittrail/data/db"
	dbsql "audittrail/data/db/sql"
	"audittrail/data/orm"
)

// Executor 绑定到某个 IDatabase（连接池或事务）的执行器。
type Executor struct {
	db  dbcore.IDatabase
	sql dbsql.ISql
}

// New 创建执行器；传入事务即可让所有语句参与该事务。
func New(db dbcore.IDatabase) *Executor {
	return &Executor{db: db, sql: dbsql.New(db)}
}

func (x *Executor) quote(col string) string {
	return x.sql.Dialect().QuoteIdentifier(col)
}

// Insert 插入实体。自增主键模型跳过主键列并返回生成的键，其余返回 0。
func (x *Executor) Insert(ctx context.Context, meta *orm.ModelMeta, entity any) (int64, error) {
	v, err := orm.Indirect(entity)
	if err != nil {
		return 0, err
	}

	auto := meta.KeyStrategy == orm.KeyAutoIncrement
	cols := make([]string, 0, len(meta.Fields))
	vals := make([]any, 0, len(meta.Fields))
	for i := range meta.Fields {
		f := &meta.Fields[i]
		if auto && f.PrimaryKey {
			continue
		}
		cols = append(cols, f.Column)
		vals = append(vals, f.Value(v))
	}

	builder := x.sql.InsertInto(meta.Table).Columns(cols...).Values(vals...)
	if !auto {
		_, err := builder.Exec(ctx)
		return 0, err
	}

	pk := meta.PrimaryKey()
	if x.sql.Dialect().SupportsReturning() {
		var id int64
		if err := builder.Returning(pk.Column).QueryRow(ctx).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := builder.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Update 按主键更新指定属性，返回受影响行数。
//
// 主键、只写一次与并发令牌属性不会出现在 SET 中；模型存在并发令牌时，
// 令牌列写入实体当前值，并以 expectedToken 作为 WHERE 条件。
func (x *Executor) Update(ctx context.Context, meta *orm.ModelMeta, entity any, props []string, expectedToken any) (int64, error) {
	v, err := orm.Indirect(entity)
	if err != nil {
		return 0, err
	}

	builder := x.sql.Update(meta.Table)
	set := 0
	for _, name := range props {
		f, ok := meta.Field(name)
		if !ok || f.PrimaryKey || f.WriteOnce || f.ConcurrencyToken {
			continue
		}
		builder = builder.Set(f.Column, f.Value(v))
		set++
	}

	token := meta.ConcurrencyToken()
	if set == 0 && token == nil {
		return 0, nil
	}
	if token != nil {
		builder = builder.Set(token.Column, token.Value(v))
	}

	for _, k := range meta.KeyFields() {
		builder = builder.Where(x.quote(k.Column)+" = ?", k.Value(v))
	}
	if token != nil {
		builder = builder.Where(x.quote(token.Column)+" = ?", expectedToken)
	}

	res, err := builder.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete 按主键删除实体，返回受影响行数。
func (x *Executor) Delete(ctx context.Context, meta *orm.ModelMeta, entity any, expectedToken any) (int64, error) {
	v, err := orm.Indirect(entity)
	if err != nil {
		return 0, err
	}

	builder := x.sql.DeleteFrom(meta.Table)
	for _, k := range meta.KeyFields() {
		builder = builder.Where(x.quote(k.Column)+" = ?", k.Value(v))
	}
	if token := meta.ConcurrencyToken(); token != nil && expectedToken != nil {
		builder = builder.Where(x.quote(token.Column)+" = ?", expectedToken)
	}

	res, err := builder.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindByKey 按单一主键加载到 dest（*T）；未找到返回 orm.ErrNotFound。
func (x *Executor) FindByKey(ctx context.Context, meta *orm.ModelMeta, key any, dest any) error {
	pk := meta.PrimaryKey()
	if pk == nil {
		return orm.ErrUnsupported
	}
	v, err := orm.Indirect(dest)
	if err != nil {
		return err
	}

	rows, err := x.sql.Select("*").From(meta.Table).
		Where(x.quote(pk.Column)+" = ?", key).
		Limit(1).
		Query(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return orm.ErrNotFound
	}
	return scanOneRow(rows, meta, v)
}

// Query 按条件查询到 dest（*[]T 或 *[]*T）。
func (x *Executor) Query(ctx context.Context, meta *orm.ModelMeta, dest any, opts ...orm.QueryOption) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("basic.Query: dest must be a non-nil pointer to slice, got %T", dest)
	}

	q := orm.NewQuery(opts...)
	builder := x.sql.Select("*").From(meta.Table)
	for _, w := range q.Where {
		builder = builder.Where(w.Expr, w.Args...)
	}
	rows, err := builder.OrderBy(q.OrderClause()).Query(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()

	slice := rv.Elem()
	elemType := slice.Type().Elem()
	isPtr := elemType.Kind() == reflect.Ptr
	structType := elemType
	if isPtr {
		structType = elemType.Elem()
	}
	if structType != meta.Type {
		return fmt.Errorf("basic.Query: dest element %s does not match model %s", elemType, meta.Type)
	}

	for rows.Next() {
		item := reflect.New(structType)
		if err := scanOneRow(rows, meta, item.Elem()); err != nil {
			return err
		}
		if isPtr {
			slice.Set(reflect.Append(slice, item))
		} else {
			slice.Set(reflect.Append(slice, item.Elem()))
		}
	}
	return rows.Err()
}

// EnsureTable 按元信息创建表（已存在则跳过），用于测试与演示。
func (x *Executor) EnsureTable(ctx context.Context, meta *orm.ModelMeta) error {
	d := x.sql.Dialect()
	defs := make([]string, 0, len(meta.Fields)+1)
	keys := meta.KeyFields()
	auto := meta.KeyStrategy == orm.KeyAutoIncrement

	for _, f := range meta.Fields {
		if auto && f.PrimaryKey {
			defs = append(defs, d.QuoteIdentifier(f.Column)+" "+d.AutoIncrementPrimaryKey())
			continue
		}
		def := d.QuoteIdentifier(f.Column) + " " + d.ColumnType(f.Type)
		if !f.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if !auto {
		quoted := make([]string, len(keys))
		for i, k := range keys {
			quoted[i] = d.QuoteIdentifier(k.Column)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}

	stmt := "CREATE TABLE IF NOT EXISTS " + d.QuoteIdentifier(meta.Table) + " (" + strings.Join(defs, ", ") + ")"
	_, err := x.db.Exec(ctx, stmt)
	return err
}

func scanOneRow(rows dbcore.IRows, meta *orm.ModelMeta, v reflect.Value) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	dest := make([]any, len(cols))
	for i, col := range cols {
		if f, ok := meta.FieldByColumn(strings.ToLower(col)); ok {
			dest[i] = f.Addr(v)
			continue
		}
		var discard any
		dest[i] = &discard
	}
	return rows.Scan(dest...)
}
