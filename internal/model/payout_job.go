package model

import (
	"time"
)

// PayoutStatus 出款任务状态
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "PENDING"   // 等待链上燃烧确认
	PayoutStatusReady     PayoutStatus = "READY"     // 燃烧已确认，可发起出款
	PayoutStatusInitiated PayoutStatus = "INITIATED" // 已提交出款服务，等待回调
	PayoutStatusConfirmed PayoutStatus = "CONFIRMED" // 出款服务回调确认
	PayoutStatusFailed    PayoutStatus = "FAILED"
)

// PayoutJobModel 移动支付出款任务
type PayoutJobModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TransactionId int64        `json:"transaction_id" gorm:"index;not null"`
	Amount        float64      `json:"amount" gorm:"not null"`
	Destination   string       `json:"destination" gorm:"not null"` // 收款手机号
	Status        PayoutStatus `json:"status" gorm:"index;default:'PENDING'"`
	Reference     string       `json:"reference" gorm:"uniqueIndex"` // 出款服务幂等引用号
	Attempts      int          `json:"attempts" gorm:"default:0"`
	LastError     string       `json:"last_error"`
}

// TableName 自定义表名
func (PayoutJobModel) TableName() string {
	return "payout_job"
}
