package models

import (
	"math"
	"time"
)

// CampaignStatus is the lifecycle phase of a campaign record
type CampaignStatus string

const (
	CampaignStatusUninitialized       CampaignStatus = "uninitialized"
	CampaignStatusInitialized         CampaignStatus = "initialized"
	CampaignStatusPublicRoundStarted  CampaignStatus = "public_round_started"
	CampaignStatusPrivateRoundStarted CampaignStatus = "private_round_started"
	CampaignStatusDelegated           CampaignStatus = "delegated"
	CampaignStatusFinalized           CampaignStatus = "finalized"
)

// Campaign is the public state machine of one raise. Address is the PDA of
// ("kickstarter", operator, base mint).
type Campaign struct {
	ID                        uint           `gorm:"primarykey" json:"id"`
	Address                   string         `gorm:"size:44;uniqueIndex;not null" json:"address"`
	Bump                      uint8          `json:"bump"`
	Operator                  string         `gorm:"size:44;not null;uniqueIndex:idx_campaign_operator_mint" json:"operator"`
	BaseMint                  string         `gorm:"size:44;not null;uniqueIndex:idx_campaign_operator_mint" json:"base_mint"`
	QuoteMint                 string         `gorm:"size:44;not null" json:"quote_mint"`
	BaseVault                 string         `gorm:"size:44;not null" json:"base_vault"`
	QuoteVault                string         `gorm:"size:44;not null" json:"quote_vault"`
	Treasury                  string         `gorm:"size:44;not null" json:"treasury"`
	MinimumRaise              uint64         `gorm:"not null" json:"minimum_raise"`
	HardCap                   uint64         `gorm:"default:0" json:"hard_cap"` // 0 means uncapped
	TotalTokensForSale        uint64         `gorm:"not null" json:"total_tokens_for_sale"`
	PerformancePool           uint64         `gorm:"default:0" json:"performance_pool"`
	ConfiguredPerformance     uint64         `gorm:"default:0" json:"configured_performance_tokens"`
	LaunchDurationSeconds     uint32         `gorm:"not null" json:"launch_duration_seconds"`
	TeamSpendingAllowance     uint64         `gorm:"default:0" json:"team_spending_allowance"`
	PackageUnlockDelaySeconds int64          `gorm:"default:0" json:"package_unlock_delay_seconds"`
	Status                    CampaignStatus `gorm:"size:32;not null;index" json:"status"`
	RaisedAmount              uint64         `gorm:"default:0" json:"raised_amount"`
	PrivateRoundOpen          bool           `gorm:"default:false" json:"private_round_open"`
	PublicRoundStartedAt      *time.Time     `json:"public_round_started_at"`
	PrivateRoundStartedAt     *time.Time     `json:"private_round_started_at"`
	FinalizedAt               *time.Time     `json:"finalized_at"`
	CreatedAt                 time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt                 time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Campaign) TableName() string {
	return "campaign"
}

// Capacity returns the most quote tokens the campaign may accept.
func (c *Campaign) Capacity() uint64 {
	if c.HardCap == 0 {
		return math.MaxUint64
	}
	return c.HardCap
}

// FundingDeadline is the end of the launch window, or nil before the public
// round starts.
func (c *Campaign) FundingDeadline() *time.Time {
	if c.PublicRoundStartedAt == nil {
		return nil
	}
	deadline := c.PublicRoundStartedAt.Add(time.Duration(c.LaunchDurationSeconds) * time.Second)
	return &deadline
}

// PublicPosition is a funder's public-round commitment. Address is the PDA of
// ("funder_position", campaign, funder).
type PublicPosition struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	Address         string    `gorm:"size:44;uniqueIndex;not null" json:"address"`
	CampaignAddress string    `gorm:"size:44;not null;uniqueIndex:idx_public_position_funder" json:"campaign_address"`
	Funder          string    `gorm:"size:44;not null;uniqueIndex:idx_public_position_funder" json:"funder"`
	CommittedAmount uint64    `gorm:"default:0" json:"committed_amount"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PublicPosition) TableName() string {
	return "public_position"
}

// MaxPerformancePackages bounds the package index of a campaign
const MaxPerformancePackages = 5

// PerformancePackage is a slice of the performance pool reserved for the
// team, unlocked by reaching Multiplier times the minimum raise.
type PerformancePackage struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	CampaignAddress string    `gorm:"size:44;not null;uniqueIndex:idx_performance_package" json:"campaign_address"`
	PackageIndex    uint8     `gorm:"not null;uniqueIndex:idx_performance_package" json:"index"`
	Multiplier      uint8     `gorm:"not null" json:"multiplier"`
	Allocation      uint64    `gorm:"not null" json:"allocation"`
	Unlocked        bool      `gorm:"default:false" json:"unlocked"`
	Claimed         bool      `gorm:"default:false" json:"claimed"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (PerformancePackage) TableName() string {
	return "performance_package"
}
