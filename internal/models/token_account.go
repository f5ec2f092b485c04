package models

import "time"

// TokenAccount is a holding account kept by the token custody ledger.
type TokenAccount struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerAddress   string    `gorm:"size:100;not null;index" json:"owner_address"`
	Mint           string    `gorm:"size:100;not null" json:"mint"`
	AccountAddress string    `gorm:"size:100;uniqueIndex;not null" json:"account_address"`
	Balance        uint64    `gorm:"default:0" json:"balance"`
	IsClose        bool      `gorm:"default:false" json:"is_close"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TokenAccount) TableName() string {
	return "token_account"
}

// TokenMint is a mint known to the custody ledger.
type TokenMint struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Address         string    `gorm:"size:100;uniqueIndex;not null" json:"address"`
	Decimals        uint8     `gorm:"default:6" json:"decimals"`
	MintAuthority   string    `gorm:"size:100" json:"mint_authority"`
	FreezeAuthority string    `gorm:"size:100" json:"freeze_authority"`
	Supply          uint64    `gorm:"default:0" json:"supply"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TokenMint) TableName() string {
	return "token_mint"
}
