package model

import (
	"math/big"
	"time"
)

// EventModel 链上事件记录，(tx_hash, log_index) 唯一
type EventModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ContractAddress string     `json:"contract_address" gorm:"not null"`
	ContractName    string     `json:"contract_name" gorm:"not null"`
	EventName       string     `json:"event_name" gorm:"not null"`
	TxHash          string     `json:"tx_hash" gorm:"not null;uniqueIndex:idx_event_tx_log"`
	LogIndex        int64      `json:"log_index" gorm:"uniqueIndex:idx_event_tx_log"`
	BlockNum        int64      `json:"block_num" gorm:"not null"`
	Data            string     `json:"data" gorm:"type:text"`
	Processed       bool       `json:"processed" gorm:"default:false"`
	ProcessedAt     *time.Time `json:"processed_at"`
}

// TableName 自定义表名
func (EventModel) TableName() string {
	return "event"
}

// ChainEvent 两条投递路径（订阅、扫描）归一化后的事件，不落库
type ChainEvent struct {
	ContractName    string
	ContractAddress string
	EventName       string
	TxHash          string
	BlockNum        int64
	LogIndex        int64
	Args            map[string]interface{}
}

// AddressArg 读取地址类参数（小写hex）
func (e *ChainEvent) AddressArg(key string) string {
	v, ok := e.Args[key].(string)
	if !ok {
		return ""
	}
	return v
}

// AmountArg 读取uint256金额参数，按18位精度折算为内部币种
func (e *ChainEvent) AmountArg(key string) float64 {
	v, ok := e.Args[key].(*big.Int)
	if !ok {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), big.NewFloat(1e18)).Float64()
	return f
}
