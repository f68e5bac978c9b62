package model

import (
	"time"
)

// ExchangeRateModel 预言机汇率缓存，仅用于报价展示
type ExchangeRateModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Pair      string    `json:"pair" gorm:"uniqueIndex;not null"` // 如 UGX/USD
	Rate      float64   `json:"rate" gorm:"not null"`
	UpdatedOn time.Time `json:"updated_on"` // 链上事件携带的时间戳
}

// TableName 自定义表名
func (ExchangeRateModel) TableName() string {
	return "exchange_rate"
}
