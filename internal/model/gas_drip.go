package model

import (
	"time"
)

// GasDripType gas流水类型
type GasDripType string

const (
	GasDripTypeDrip GasDripType = "DRIP" // 补贴入账
	GasDripTypeUse  GasDripType = "USE"  // 中继消耗扣减
)

// GasDripModel gas额度流水，只追加不修改
type GasDripModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	UserId int64       `json:"user_id" gorm:"index;not null"`
	Amount float64     `json:"amount" gorm:"not null"` // 折算后的内部币种金额
	Type   GasDripType `json:"type" gorm:"not null"`
	Note   string      `json:"note"`
}

// TableName 自定义表名
func (GasDripModel) TableName() string {
	return "gas_drip"
}
