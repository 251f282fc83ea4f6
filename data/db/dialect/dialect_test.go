package dialect

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRebind_Postgres(t *testing.T) {
	d := New("pgx")
	got := d.Rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)")
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", got)
}

func TestRebind_NoChangeForOthers(t *testing.T) {
	orig := "DELETE FROM t WHERE id = ? AND name = ?"
	for _, name := range []string{"mysql", "sqlite", "unknown"} {
		assert.Equal(t, orig, New(name).Rebind(orig), name)
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		driver    string
		name      Name
		returning bool
		autoPK    string
		timeType  string
	}{
		{"sqlite", NameSQLite, false, "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"},
		{"postgres", NamePostgres, true, "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"},
		{"pgx", NamePostgres, true, "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d := New(tt.driver)
			assert.Equal(t, tt.name, d.Name())
			assert.Equal(t, tt.returning, d.SupportsReturning())
			assert.Equal(t, tt.autoPK, d.AutoIncrementPrimaryKey())
			assert.Equal(t, tt.timeType, d.ColumnType(reflect.TypeOf(time.Time{})))
		})
	}
}

func TestColumnType(t *testing.T) {
	d := New("sqlite")
	var id *int64
	assert.Equal(t, "INTEGER", d.ColumnType(reflect.TypeOf(id)))
	assert.Equal(t, "TEXT", d.ColumnType(reflect.TypeOf("")))
	assert.Equal(t, "BOOLEAN", d.ColumnType(reflect.TypeOf(true)))
	assert.Equal(t, "REAL", d.ColumnType(reflect.TypeOf(1.5)))
}

func TestQuoteIdentifierAndUniqueViolation(t *testing.T) {
	assert.Equal(t, `"audit"."orders"`, New("postgres").QuoteIdentifier("audit.orders"))
	assert.Equal(t, "orders", New("unknown").QuoteIdentifier("orders"))
	assert.True(t, New("sqlite").IsUniqueViolation(errors.New("UNIQUE constraint failed: orders.id")))
	assert.False(t, New("sqlite").IsUniqueViolation(nil))
}
