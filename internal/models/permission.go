package models

import "time"

type PermissionStatus string

const (
	PermissionStatusPending PermissionStatus = "pending"
	PermissionStatusActive  PermissionStatus = "active"
	PermissionStatusRevoked PermissionStatus = "revoked"
)

// PermissionRecord is the access-control list registered for a permissioned
// account (the private state). Address is the permission program PDA.
// RequestID names the submission in flight; a pending record without a
// signature is resubmitted by the next refresh.
type PermissionRecord struct {
	ID               uint               `gorm:"primarykey" json:"id"`
	Address          string             `gorm:"size:44;uniqueIndex;not null" json:"address"`
	Target           string             `gorm:"size:44;uniqueIndex;not null" json:"target"`
	CampaignAddress  string             `gorm:"size:44;not null;index" json:"campaign_address"`
	Status           PermissionStatus   `gorm:"size:16;not null;index" json:"status"`
	RequestID        string             `gorm:"size:36" json:"request_id"`
	RequestSignature string             `gorm:"size:100" json:"request_signature"` // empty until the rollup service accepted the request
	RequestedAt      time.Time          `json:"requested_at"`
	ActivatedAt      *time.Time         `json:"activated_at"`
	RevokedAt        *time.Time         `json:"revoked_at"`
	Members          []PermissionMember `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE" json:"members"`
	CreatedAt        time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PermissionRecord) TableName() string {
	return "permission_record"
}

// PermissionMember is one identity of a permission record with its named
// capabilities.
type PermissionMember struct {
	ID                uint   `gorm:"primarykey" json:"id"`
	PermissionID      uint   `gorm:"not null;uniqueIndex:idx_permission_member" json:"permission_id"`
	Member            string `gorm:"size:44;not null;uniqueIndex:idx_permission_member" json:"member"`
	Authority         bool   `json:"authority"`
	TxLogs            bool   `json:"tx_logs"`
	TxBalances        bool   `json:"tx_balances"`
	TxMessages        bool   `json:"tx_messages"`
	AccountSignatures bool   `json:"account_signatures"`
}

func (PermissionMember) TableName() string {
	return "permission_member"
}
