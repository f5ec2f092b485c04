package models

import "time"

// TokenMetadata holds the descriptive fields registered for an issued mint.
// Address is the Metaplex metadata PDA of the mint.
type TokenMetadata struct {
	ID              uint      `gorm:"primarykey;autoIncrement" json:"id"`
	Address         string    `gorm:"size:44;uniqueIndex;not null" json:"address"`
	Mint            string    `gorm:"size:44;uniqueIndex;not null" json:"mint"`
	UpdateAuthority string    `gorm:"size:44;not null" json:"update_authority"`
	Name            string    `gorm:"size:32;not null" json:"name"`
	Symbol          string    `gorm:"size:10;not null" json:"symbol"`
	URI             string    `gorm:"size:200" json:"uri"`
	Description     string    `gorm:"size:512" json:"description"`
	IsMutable       bool      `gorm:"default:true" json:"is_mutable"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TokenMetadata) TableName() string {
	return "token_metadata"
}
