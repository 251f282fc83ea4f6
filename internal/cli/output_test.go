package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func TestWriteServices_TextGolden(t *testing.T) {
	orderID := int64(7)
	views := []ServiceView{{
		ID:            1,
		Name:          "open order",
		ChangedBy:     "alice",
		ChangedOn:     time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
		CorrelationID: "c0ffee",
		Operations: []OperationView{
			{
				ID: 1, EntityID: &orderID, TableName: "sales_orders", OperationType: "Added",
				OldValues: map[string]any{},
				NewValues: map[string]any{"Number": "SO-1", "Status": "open"},
			},
			{
				ID: 2, TableName: "order_lines", OperationType: "Deleted",
				OldValues: map[string]any{"Qty": 3, "SKU": "PEN-2"},
				NewValues: map[string]any{},
			},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, writeServices(&buf, "text", views))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "services_text", buf.Bytes())
}
