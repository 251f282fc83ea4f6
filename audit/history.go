package audit

import (
	"time"

	"audittrail/data/orm"
	"audittrail/domain/entity"
)

// ServiceHistory 一次工作单元的关联锚点，所有审计行通过它归组
type ServiceHistory struct {
	entity.Record
	Name          string    `json:"name"`
	ChangedBy     string    `json:"changed_by" gorm:"<-:create"`
	ChangedOn     time.Time `json:"changed_on" gorm:"<-:create"`
	CorrelationID string    `json:"correlation_id" gorm:"<-:create"`
}

// ModelCapabilities 实现 orm.ICapabilityProvider
func (*ServiceHistory) ModelCapabilities() []orm.ModelCapability {
	return []orm.ModelCapability{orm.CapabilityRecord, orm.CapabilityServiceHistory}
}

// NewServiceHistory 以名称创建锚点，其余字段在保存前自动生成
func NewServiceHistory(name string) *ServiceHistory {
	return &ServiceHistory{Name: name}
}

// OperationHistory 一条被审计的变更，插入后不可修改
type OperationHistory struct {
	entity.Record
	// EntityID 被审计对象不是 Record 时为空
	EntityID      *int64 `json:"entity_id" gorm:"<-:create"`
	EntityName    string `json:"entity_name" gorm:"<-:create"`
	TableName     string `json:"table_name" gorm:"<-:create"`
	OperationType string `json:"operation_type" gorm:"<-:create"`
	OldValues     string `json:"old_values" gorm:"<-:create"`
	NewValues     string `json:"new_values" gorm:"<-:create"`

	ServiceHistoryID int64           `json:"service_history_id" gorm:"<-:create"`
	ServiceHistory   *ServiceHistory `json:"-" gorm:"-"`
}

// ModelCapabilities 实现 orm.ICapabilityProvider
func (*OperationHistory) ModelCapabilities() []orm.ModelCapability {
	return []orm.ModelCapability{orm.CapabilityRecord, orm.CapabilityOperationHistory}
}

// Register 向 Schema 注册审计模型
func Register(schema *orm.Schema) error {
	if _, err := schema.Register(&ServiceHistory{}); err != nil {
		return err
	}
	_, err := schema.Register(&OperationHistory{},
		orm.WithRelations(orm.BelongsTo[ServiceHistory]("ServiceHistory", "ServiceHistoryID")),
	)
	return err
}
