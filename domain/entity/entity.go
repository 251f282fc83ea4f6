// Package entity 定义持久化记录的基础结构体与能力接口
//
// 业务模型通过内嵌 Record 或 AuditableRecord 获得代理主键、乐观锁与审计字段，
// 并经由 ModelCapabilities 向 orm.Schema 声明自身能力。
package entity

import (
	"time"

	"audittrail/data/orm"
)

// IRecord 拥有 int64 代理主键的记录
type IRecord interface {
	GetID() int64
}

// IAuditable 审计追踪接口，由审计处理器在保存前写入
type IAuditable interface {
	IRecord

	GetCreatedBy() string
	GetCreatedOn() time.Time
	GetLastChangedBy() string
	GetLastChangedOn() time.Time

	SetCreatedInfo(by string, at time.Time)
	SetLastChangedInfo(by string, at time.Time)
}

// ISoftDeletable 软删除接口
type ISoftDeletable interface {
	Deleted() bool
	SoftDelete()
	Restore()
}

// Record 通用记录字段（用于嵌入）
type Record struct {
	ID         int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	IsDeleted  bool  `json:"is_deleted"`
	RowVersion int64 `json:"row_version" gorm:"concurrencyToken"`
}

func (r *Record) GetID() int64 { return r.ID }

// ModelCapabilities 实现 orm.ICapabilityProvider
func (r *Record) ModelCapabilities() []orm.ModelCapability {
	return []orm.ModelCapability{orm.CapabilityRecord}
}

func (r *Record) Deleted() bool { return r.IsDeleted }
func (r *Record) SoftDelete()   { r.IsDeleted = true }
func (r *Record) Restore()      { r.IsDeleted = false }

// AuditableRecord 需要直接审计的记录（用于嵌入）
type AuditableRecord struct {
	Record
	CreatedBy     string    `json:"created_by" gorm:"<-:create"`
	CreatedOn     time.Time `json:"created_on" gorm:"<-:create"`
	LastChangedBy string    `json:"last_changed_by"`
	LastChangedOn time.Time `json:"last_changed_on"`
}

// ModelCapabilities 实现 orm.ICapabilityProvider
func (a *AuditableRecord) ModelCapabilities() []orm.ModelCapability {
	return []orm.ModelCapability{orm.CapabilityRecord, orm.CapabilityAuditable}
}

func (a *AuditableRecord) GetCreatedBy() string        { return a.CreatedBy }
func (a *AuditableRecord) GetCreatedOn() time.Time     { return a.CreatedOn }
func (a *AuditableRecord) GetLastChangedBy() string    { return a.LastChangedBy }
func (a *AuditableRecord) GetLastChangedOn() time.Time { return a.LastChangedOn }

func (a *AuditableRecord) SetCreatedInfo(by string, at time.Time) {
	a.CreatedBy = by
	a.CreatedOn = at
}

func (a *AuditableRecord) SetLastChangedInfo(by string, at time.Time) {
	a.LastChangedBy = by
	a.LastChangedOn = at
}

var (
	_ IAuditable     = (*AuditableRecord)(nil)
	_ ISoftDeletable = (*Record)(nil)
)
