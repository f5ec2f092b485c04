package models

import "time"

type DelegationStatus string

const (
	DelegationStatusNotDelegated DelegationStatus = "not_delegated"
	DelegationStatusDelegating   DelegationStatus = "delegating"
	DelegationStatusDelegated    DelegationStatus = "delegated"
	DelegationStatusUndelegating DelegationStatus = "undelegating"
)

// DelegationRecord tracks who holds write authority over a delegated account.
type DelegationRecord struct {
	ID               uint             `gorm:"primarykey" json:"id"`
	Account          string           `gorm:"size:44;uniqueIndex;not null" json:"account"`
	CampaignAddress  string           `gorm:"size:44;not null;index" json:"campaign_address"`
	OwnerProgram     string           `gorm:"size:44;not null" json:"owner_program"`
	Validator        string           `gorm:"size:44" json:"validator"`
	BufferAddress    string           `gorm:"size:44" json:"buffer_address"`
	RecordAddress    string           `gorm:"size:44" json:"record_address"`
	MetadataAddress  string           `gorm:"size:44" json:"metadata_address"`
	Status           DelegationStatus `gorm:"size:16;not null;index" json:"status"`
	RequestID        string           `gorm:"size:36" json:"request_id"`
	RequestSignature string           `gorm:"size:100" json:"request_signature"`
	RequestedAt      *time.Time       `json:"requested_at"`
	ConfirmedAt      *time.Time       `json:"confirmed_at"`
	CreatedAt        time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

func (DelegationRecord) TableName() string {
	return "delegation_record"
}
