package orm

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type baseRecord struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	RowVersion int64 `gorm:"concurrencyToken"`
}

func (baseRecord) ModelCapabilities() []ModelCapability {
	return []ModelCapability{CapabilityRecord}
}

type customer struct {
	baseRecord
	DisplayName string
	CreatedOn   time.Time `gorm:"<-:create"`
	Notes       []string
	Secret      string `db:"-"`
}

type purchaseOrder struct {
	baseRecord
	CustomerID *int64
	Total      float64 `db:"total_amount"`
}

type orderTag struct {
	OrderID int64 `gorm:"primaryKey"`
	TagID   int64 `gorm:"primaryKey"`
}

func TestSchema_RegisterDerivesMeta(t *testing.T) {
	s := NewSchema()
	meta, err := s.Register(&customer{}, WithCapabilities(CapabilityAuditable))
	require.NoError(t, err)

	assert.Equal(t, "customers", meta.Table)
	assert.Equal(t, "customer", meta.Name)
	assert.Equal(t, KeyAutoIncrement, meta.KeyStrategy)
	assert.True(t, meta.Has(CapabilityRecord))
	assert.True(t, meta.Has(CapabilityAuditable))

	names := make([]string, 0, len(meta.Fields))
	for _, f := range meta.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"ID", "RowVersion", "DisplayName", "CreatedOn"}, names)

	created, ok := meta.Field("CreatedOn")
	require.True(t, ok)
	assert.True(t, created.WriteOnce)
	assert.Equal(t, "created_on", created.Column)
	assert.Equal(t, "row_version", meta.ConcurrencyToken().Column)
	assert.Equal(t, "ID", meta.PrimaryKey().Name)
}

func TestSchema_RelationsAndAuditTags(t *testing.T) {
	s := NewSchema()
	s.MustRegister(&customer{}, WithCapabilities(CapabilityAuditable))
	meta := s.MustRegister(&purchaseOrder{},
		WithTable("orders"),
		WithDisplayName("Order"),
		WithRelations(BelongsTo[customer]("Customer", "CustomerID").Audited()),
	)
	join := s.MustRegister(&orderTag{},
		WithRelations(
			JoinOf[purchaseOrder]("Order", "OrderID").AuditedFromTarget(),
			JoinOf[customer]("Customer", "TagID").AuditedFromTarget(),
		),
	)

	assert.Equal(t, "orders", meta.Table)
	assert.Equal(t, "Order", meta.Name)
	assert.Equal(t, reflect.TypeOf(customer{}), meta.Relations[0].Target)
	assert.True(t, s.IsAuditedRelation(meta.Relations[0]))

	assert.Equal(t, KeyAssigned, join.KeyStrategy)
	assert.Len(t, join.KeyFields(), 2)
	assert.Nil(t, join.PrimaryKey())
	// 反向导航只有目标可审计时才生效
	assert.False(t, s.IsAuditedRelation(join.Relations[0]))
	assert.True(t, s.IsAuditedRelation(join.Relations[1]))

	got, ok := s.MetaOf(&purchaseOrder{})
	require.True(t, ok)
	assert.Same(t, meta, got)
	assert.Len(t, s.Models(), 3)
}

func TestSchema_RegisterErrors(t *testing.T) {
	s := NewSchema()
	s.MustRegister(&customer{})

	_, err := s.Register(&customer{})
	assert.Error(t, err, "重复注册")

	_, err = s.Register(&purchaseOrder{}, WithRelations(BelongsTo[customer]("Customer", "Missing")))
	assert.Error(t, err, "未知外键")

	type noKey struct{ Name string }
	_, err = s.Register(noKey{})
	assert.Error(t, err)
}

func TestFieldMeta_ValueAndSet(t *testing.T) {
	s := NewSchema()
	meta := s.MustRegister(&purchaseOrder{})
	order := &purchaseOrder{}
	v, err := Indirect(order)
	require.NoError(t, err)

	fk, _ := meta.Field("CustomerID")
	assert.Nil(t, fk.Value(v))
	require.NoError(t, fk.Set(v, 42))
	require.NotNil(t, order.CustomerID)
	assert.Equal(t, int64(42), *order.CustomerID)
	assert.Equal(t, int64(42), fk.Value(v))

	require.NoError(t, fk.Set(v, nil))
	assert.Nil(t, order.CustomerID)

	id, _ := meta.Field("ID")
	assert.Error(t, id.Set(v, "not-a-number"))

	_, err = Indirect(purchaseOrder{})
	assert.Error(t, err)
}

func TestKeyHelpers(t *testing.T) {
	assert.True(t, IsNullKey(nil))
	assert.True(t, IsNullKey(0))
	assert.True(t, IsNullKey(""))
	var p *int64
	assert.True(t, IsNullKey(p))
	assert.False(t, IsNullKey(int32(-3)))
	assert.Equal(t, int64(7), NormalizeKey(uint8(7)))
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"ServiceHistoryID": "service_history_id",
		"OperationHistory": "operation_history",
		"ID":               "id",
		"HTTPServer":       "http_server",
		"Order2Line":       "order2_line",
	}
	for in, want := range tests {
		assert.Equal(t, want, toSnakeCase(in), in)
	}
}
