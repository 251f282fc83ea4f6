package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/data/orm"
	"audittrail/domain/entity"
)

type invoice struct {
	entity.AuditableRecord
	Number string
}

type tag struct {
	entity.Record
	Label string
}

func TestCapabilitiesFlowIntoSchema(t *testing.T) {
	s := orm.NewSchema()
	inv := s.MustRegister(&invoice{})
	tg := s.MustRegister(&tag{})

	assert.True(t, inv.Has(orm.CapabilityRecord))
	assert.True(t, inv.Has(orm.CapabilityAuditable))
	assert.True(t, tg.Has(orm.CapabilityRecord))
	assert.False(t, tg.Has(orm.CapabilityAuditable))

	assert.Equal(t, orm.KeyAutoIncrement, inv.KeyStrategy)
	assert.Equal(t, "invoices", inv.Table)

	created, ok := inv.Field("CreatedOn")
	require.True(t, ok)
	assert.True(t, created.WriteOnce)
	changed, ok := inv.Field("LastChangedOn")
	require.True(t, ok)
	assert.False(t, changed.WriteOnce)
	assert.Equal(t, "row_version", inv.ConcurrencyToken().Column)
}

func TestAuditableRecord_Stamps(t *testing.T) {
	var inv invoice
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	var a entity.IAuditable = &inv
	a.SetCreatedInfo("alice", at)
	a.SetLastChangedInfo("bob", at.Add(time.Hour))

	assert.Equal(t, "alice", inv.GetCreatedBy())
	assert.Equal(t, at, inv.GetCreatedOn())
	assert.Equal(t, "bob", inv.GetLastChangedBy())
	assert.Equal(t, at.Add(time.Hour), inv.GetLastChangedOn())

	inv.SoftDelete()
	assert.True(t, inv.Deleted())
	inv.Restore()
	assert.False(t, inv.Deleted())
}
