package model

import (
	"time"
)

// TransactionType 交易类型
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"  // 入金（swap或后台铸币）
	TransactionTypeSend     TransactionType = "SEND"     // 转账
	TransactionTypeWithdraw TransactionType = "WITHDRAW" // 提现（燃烧后出款）
)

// TransactionStatus 交易状态
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// TransactionModel 链下账本交易记录
type TransactionModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserId int64             `json:"user_id" gorm:"index;not null"`
	Type   TransactionType   `json:"type" gorm:"not null"`
	Status TransactionStatus `json:"status" gorm:"index;default:'PENDING'"`

	Amount    float64 `json:"amount" gorm:"not null"`
	TxHash    string  `json:"tx_hash" gorm:"index"` // 链上交易哈希，确认后回填
	Reference string  `json:"reference"`            // 业务侧引用号
	Note      string  `json:"note"`
}

// TableName 自定义表名
func (TransactionModel) TableName() string {
	return "transaction"
}
