package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "audittrail/data/db"
	"audittrail/data/db/dialect"
	"audittrail/errors"
)

type namedDB struct {
	core.IDatabase
	name string
}

func (n namedDB) GetDialectName() string { return n.name }

func TestInsertBuilder_Returning(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		want   string
	}{
		{"sqlite 忽略 RETURNING", "sqlite", `INSERT INTO "operation_histories" ("entity_name", "operation_type") VALUES (?, ?)`},
		{"postgres 回填主键", "pgx", `INSERT INTO "operation_histories" ("entity_name", "operation_type") VALUES (?, ?) RETURNING "id"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(namedDB{name: tt.driver})
			q, args, err := s.InsertInto("operation_histories").
				Columns("entity_name", "operation_type").
				Values("widget", "Added").
				Returning("id").
				Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
			assert.Equal(t, []any{"widget", "Added"}, args)
		})
	}
}

func TestUpdateBuilder_SetThenWhereArgs(t *testing.T) {
	s := New(namedDB{name: "sqlite"})
	q, args, err := s.Update("widgets").
		Set("name", "b").
		Set("row_version", 2).
		Where(`"id" = ?`, 7).
		Where(`"row_version" = ?`, 1).
		Build()

	require.NoError(t, err)
	assert.Equal(t, `UPDATE "widgets" SET "name" = ?, "row_version" = ? WHERE "id" = ? AND "row_version" = ?`, q)
	assert.Equal(t, []any{"b", 2, 7, 1}, args)
}

func TestSelectAndDeleteBuilder(t *testing.T) {
	s := New(namedDB{name: "sqlite"})
	q, args, err := s.Select("*").From("operation_histories").
		Where("service_history_id = ?", 1).
		OrderBy("id ASC").Limit(10).Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "operation_histories" WHERE service_history_id = ? ORDER BY id ASC LIMIT ?`, q)
	assert.Equal(t, []any{1, 10}, args)

	q, _, err = s.Select("COUNT(*)").From("widgets").OrderBy("").Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "widgets"`, q)

	q, args, err = s.DeleteFrom("widgets").Where(`"id" = ?`, 3).Build()
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "widgets" WHERE "id" = ?`, q)
	assert.Equal(t, []any{3}, args)
	assert.Equal(t, dialect.NameSQLite, s.Dialect().Name())
}

func TestBuilderErrors(t *testing.T) {
	s := New(namedDB{name: "sqlite"})

	tests := []struct {
		name  string
		build func() error
	}{
		{"非法表名", func() error {
			_, _, err := s.InsertInto("widgets; DROP TABLE x").Columns("a").Values(1).Build()
			return err
		}},
		{"非法列名", func() error {
			_, _, err := s.Update("widgets").Set("1abc", 1).Build()
			return err
		}},
		{"列与值数量不符", func() error {
			_, _, err := s.InsertInto("widgets").Columns("a", "b").Values(1).Build()
			return err
		}},
		{"UPDATE 没有列", func() error {
			_, _, err := s.Update("widgets").Where("id = ?", 1).Build()
			return err
		}},
		{"Exec 不触达数据库", func() error {
			_, err := s.DeleteFrom("").Exec(context.Background())
			return err
		}},
		{"QueryRow 返回构建错误", func() error {
			return s.Select("*").From("a b").QueryRow(context.Background()).Scan()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build()
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput), "got %v", err)
		})
	}

	assert.True(t, safeIdentifier("audit.widgets"))
	assert.False(t, safeIdentifier("audit..widgets"))
}
