package model

import (
	"time"
)

// GasDebitStatus gas补扣任务状态
type GasDebitStatus string

const (
	GasDebitStatusPending GasDebitStatus = "PENDING" // 等待补拉回执扣账
	GasDebitStatusDone    GasDebitStatus = "DONE"    // 已补扣
	GasDebitStatusFailed  GasDebitStatus = "FAILED"  // 重试超限，等待人工处理
)

// GasDebitJobModel 待补扣的gas债务。中继交易已返回哈希但回执
// 没拿到（或扣账失败）时登记，后台任务拿哈希补拉回执再扣。
type GasDebitJobModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserId    int64          `json:"user_id" gorm:"index;not null"`
	TxHash    string         `json:"tx_hash" gorm:"uniqueIndex;not null"`
	Note      string         `json:"note"`
	Status    GasDebitStatus `json:"status" gorm:"index;default:'PENDING'"`
	Attempts  int            `json:"attempts" gorm:"default:0"`
	LastError string         `json:"last_error"`
}

// TableName 自定义表名
func (GasDebitJobModel) TableName() string {
	return "gas_debit_job"
}
