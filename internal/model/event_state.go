package model

import (
	"time"
)

// EventStateModel 每个受监控合约的对账游标
type EventStateModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ContractAddress    string `json:"contract_address" gorm:"uniqueIndex;not null"`
	ContractName       string `json:"contract_name" gorm:"not null"`
	LastProcessedBlock int64  `json:"last_processed_block" gorm:"default:0"` // 单调不减
}

// TableName 自定义表名
func (EventStateModel) TableName() string {
	return "event_state"
}
