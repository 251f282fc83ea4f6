package session

// EntityState 实体在工作单元中的状态
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Deleted
	Modified
)

// String 返回状态名，审计行的 operationType 直接使用该文本
func (s EntityState) String() string {
	switch s {
	case Detached:
		return "Detached"
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Deleted:
		return "Deleted"
	case Modified:
		return "Modified"
	default:
		return "Unknown"
	}
}
