package cli

import (
	"strings"

	"audittrail/data/orm"
	"audittrail/domain/entity"
)

// 演示用领域模型：客户、订单与订单行

type customer struct {
	entity.AuditableRecord
	Name  string
	Email string
}

type salesOrder struct {
	entity.AuditableRecord
	Number     string
	CustomerID int64
	Status     string
}

// orderLine 的变更会级联审计所属订单
type orderLine struct {
	entity.AuditableRecord
	OrderID int64
	SKU     string
	Qty     int64
}

func registerModels(schema *orm.Schema) error {
	snowflake := orm.WithKeyStrategy(orm.KeySnowflake)
	if _, err := schema.Register(&customer{}, snowflake); err != nil {
		return err
	}
	if _, err := schema.Register(&salesOrder{}, snowflake,
		orm.WithRelations(orm.BelongsTo[customer]("Customer", "CustomerID"))); err != nil {
		return err
	}
	_, err := schema.Register(&orderLine{}, snowflake,
		orm.WithRelations(orm.BelongsTo[salesOrder]("Order", "OrderID").Audited()))
	return err
}

// lookupModel 按模型名或表名查找元数据，忽略大小写
func lookupModel(schema *orm.Schema, name string) (*orm.ModelMeta, bool) {
	for _, meta := range schema.Models() {
		if strings.EqualFold(meta.Name, name) || strings.EqualFold(meta.Table, name) {
			return meta, true
		}
	}
	return nil, false
}
