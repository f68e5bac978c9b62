package model

import (
	"time"
)

// UserModel 用户模型
type UserModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Phone         string `json:"phone" gorm:"index"`
	WalletAddress string `json:"wallet_address" gorm:"uniqueIndex;not null"` // 链上钱包地址（小写hex）

	Balance   float64 `json:"balance" gorm:"default:0"`    // 链下账本余额（内部币种）
	GasCredit float64 `json:"gas_credit" gorm:"default:0"` // gas额度，不允许为负

	// 托管签名密钥（AES-GCM密文，hex编码），仅在后台代签模式下使用
	EncryptedKey string `json:"-" gorm:"type:text"`

	// 自托管用户自己签名，托管用户由后台代签
	SelfCustody bool `json:"self_custody" gorm:"default:false"`
}

// TableName 自定义表名
func (UserModel) TableName() string {
	return "user"
}
