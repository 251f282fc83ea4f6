package orm

// ModelCapability 模型在注册时声明的能力标记。
//
// 审计管线只依据能力集合判断记录的角色，不沿类型层次查找。
type ModelCapability string

const (
	// CapabilityRecord 拥有单一 int64 代理主键（ID）的记录
	CapabilityRecord ModelCapability = "record"
	// CapabilityAuditable 变更需直接审计，并携带 LastChangedBy/On
	CapabilityAuditable ModelCapability = "auditable"
	// CapabilityServiceHistory 工作单元的关联锚点，本身不被审计
	CapabilityServiceHistory ModelCapability = "service_history"
	// CapabilityOperationHistory 审计行本身，不被审计
	CapabilityOperationHistory ModelCapability = "operation_history"
)

// Capabilities 以集合形式表达模型能力。
type Capabilities map[ModelCapability]bool

// Has 判断是否具备指定能力。
func (c Capabilities) Has(cap ModelCapability) bool {
	if c == nil {
		return false
	}
	return c[cap]
}

// NewCapabilities 便捷构造能力集合。
func NewCapabilities(caps ...ModelCapability) Capabilities {
	set := make(Capabilities, len(caps))
	for _, cap := range caps {
		set[cap] = true
	}
	return set
}

// ICapabilityProvider 模型（通常经由内嵌的 entity.Record）自行声明能力
type ICapabilityProvider interface {
	ModelCapabilities() []ModelCapability
}
