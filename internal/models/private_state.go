package models

import "time"

// PrivateState aggregates the confidential commitments of one campaign.
// Address is the PDA of ("private_state", campaign).
type PrivateState struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	Address         string    `gorm:"size:44;uniqueIndex;not null" json:"address"`
	Bump            uint8     `json:"bump"`
	CampaignAddress string    `gorm:"size:44;uniqueIndex;not null" json:"campaign_address"`
	OwnerProgram    string    `gorm:"size:44;not null" json:"owner_program"`
	CommitmentsRoot string    `gorm:"size:64;not null;default:''" json:"commitments_root"` // hex, empty until the first commitment
	InvestorCount   uint32    `gorm:"default:0" json:"investor_count"`
	CommittedAmount uint64    `gorm:"default:0" json:"committed_amount"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PrivateState) TableName() string {
	return "private_state"
}

// FunderPosition is one accepted confidential commitment. A funder may hold
// several positions as long as every salt differs.
type FunderPosition struct {
	ID                  uint      `gorm:"primarykey" json:"id"`
	Address             string    `gorm:"size:44;uniqueIndex;not null" json:"address"`
	PrivateStateAddress string    `gorm:"size:44;not null;index" json:"private_state_address"`
	CampaignAddress     string    `gorm:"size:44;not null;uniqueIndex:idx_funder_position_salt" json:"campaign_address"`
	Funder              string    `gorm:"size:44;not null;uniqueIndex:idx_funder_position_salt" json:"funder"`
	Salt                string    `gorm:"size:64;not null;uniqueIndex:idx_funder_position_salt" json:"salt"`
	Amount              uint64    `gorm:"not null" json:"amount"`
	CommitmentHash      string    `gorm:"size:64;not null" json:"commitment_hash"`
	Sequence            uint32    `gorm:"not null" json:"sequence"`
	AcceptedAt          time.Time `gorm:"not null" json:"accepted_at"`
}

func (FunderPosition) TableName() string {
	return "funder_position"
}
