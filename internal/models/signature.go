package models

import "time"

// ConsumedSignature is a signed request that was already accepted. A
// signature may be presented once; rows older than the accepted clock skew
// can be pruned.
type ConsumedSignature struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Signature string    `gorm:"size:100;uniqueIndex;not null" json:"signature"`
	Signer    string    `gorm:"size:44;not null;index" json:"signer"`
	SignedAt  time.Time `gorm:"not null;index" json:"signed_at"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (ConsumedSignature) TableName() string {
	return "consumed_signature"
}
