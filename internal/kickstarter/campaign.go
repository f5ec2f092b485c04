package kickstarter

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"kickstarter/internal/custody"
	"kickstarter/internal/metadata"
	"kickstarter/internal/models"
	"kickstarter/pkg/solana/pda"

	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
)

// InitializeParams are the immutable parameters of a new campaign
type InitializeParams struct {
	Operator                  solana.PublicKey
	BaseMint                  solana.PublicKey
	QuoteMint                 solana.PublicKey
	Treasury                  solana.PublicKey
	MinimumRaise              uint64
	HardCap                   uint64 // 0 means uncapped
	TotalTokensForSale        uint64
	PerformancePool           uint64
	LaunchDurationSeconds     uint32
	TeamSpendingAllowance     uint64
	PackageUnlockDelaySeconds int64
	Metadata                  metadata.Metadata
}

func (p InitializeParams) validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidParameters, fmt.Sprintf(format, args...))
	}
	switch {
	case p.Operator.IsZero():
		return invalid("operator is required")
	case p.BaseMint.IsZero() || p.QuoteMint.IsZero():
		return invalid("base and quote mint are required")
	case p.BaseMint.Equals(p.QuoteMint):
		return invalid("base and quote mint must differ")
	case p.Treasury.IsZero():
		return invalid("treasury is required")
	case p.MinimumRaise == 0:
		return invalid("minimum raise must be positive")
	case p.TotalTokensForSale == 0:
		return invalid("total tokens for sale must be positive")
	case p.PerformancePool > p.TotalTokensForSale:
		return invalid("performance pool %d exceeds total tokens %d", p.PerformancePool, p.TotalTokensForSale)
	case p.LaunchDurationSeconds == 0:
		return invalid("launch duration must be positive")
	case p.PackageUnlockDelaySeconds < 0:
		return invalid("package unlock delay must not be negative")
	case p.HardCap != 0 && p.HardCap < p.MinimumRaise:
		return invalid("hard cap %d is below minimum raise %d", p.HardCap, p.MinimumRaise)
	}
	if err := p.Metadata.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return nil
}

// InitializeCampaign creates the campaign record, both vaults and the private
// state, hands the base mint to the campaign and registers its metadata.
func (e *Engine) InitializeCampaign(ctx context.Context, params InitializeParams) (*models.Campaign, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	pdas, err := pda.GetCampaignPDAs(params.Operator, params.BaseMint)
	if err != nil {
		return nil, err
	}
	campaignKey := pdas.Campaign.Address

	var campaign *models.Campaign
	err = e.atomically(ctx, func(u *unit) error {
		var count int64
		if err := u.tx.Model(&models.Campaign{}).Where("address = ?", campaignKey.String()).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up campaign: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: campaign %s already initialized", ErrInvalidCampaignState, campaignKey)
		}

		for _, mint := range []solana.PublicKey{params.BaseMint, params.QuoteMint} {
			if _, err := u.e.custody.GetMint(u.tx, mint); err != nil {
				if errors.Is(err, custody.ErrMintNotFound) {
					return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
				}
				return err
			}
		}
		if err := u.e.custody.SetMintAuthority(u.tx, params.BaseMint, params.Operator, campaignKey); err != nil {
			return custodyError(err)
		}
		if _, err := u.e.custody.CreateHoldingAccount(u.tx, pdas.BaseVault.Address, campaignKey, params.BaseMint); err != nil {
			return fmt.Errorf("failed to create base vault: %w", err)
		}
		if _, err := u.e.custody.CreateHoldingAccount(u.tx, pdas.QuoteVault.Address, campaignKey, params.QuoteMint); err != nil {
			return fmt.Errorf("failed to create quote vault: %w", err)
		}

		campaign = &models.Campaign{
			Address:                   campaignKey.String(),
			Bump:                      pdas.Campaign.Bump,
			Operator:                  params.Operator.String(),
			BaseMint:                  params.BaseMint.String(),
			QuoteMint:                 params.QuoteMint.String(),
			BaseVault:                 pdas.BaseVault.Address.String(),
			QuoteVault:                pdas.QuoteVault.Address.String(),
			Treasury:                  params.Treasury.String(),
			MinimumRaise:              params.MinimumRaise,
			HardCap:                   params.HardCap,
			TotalTokensForSale:        params.TotalTokensForSale,
			PerformancePool:           params.PerformancePool,
			LaunchDurationSeconds:     params.LaunchDurationSeconds,
			TeamSpendingAllowance:     params.TeamSpendingAllowance,
			PackageUnlockDelaySeconds: params.PackageUnlockDelaySeconds,
			Status:                    models.CampaignStatusInitialized,
			CreatedAt:                 u.now,
		}
		if err := u.tx.Create(campaign).Error; err != nil {
			return fmt.Errorf("failed to create campaign: %w", err)
		}

		state := &models.PrivateState{
			Address:         pdas.PrivateState.Address.String(),
			Bump:            pdas.PrivateState.Bump,
			CampaignAddress: campaign.Address,
			OwnerProgram:    ownerProgram().String(),
		}
		if err := u.tx.Create(state).Error; err != nil {
			return fmt.Errorf("failed to create private state: %w", err)
		}

		if _, err := u.e.registry.Register(u.tx, params.BaseMint, campaignKey, params.Metadata); err != nil {
			if errors.Is(err, metadata.ErrAlreadyRegistered) || errors.Is(err, metadata.ErrInvalidMetadata) {
				return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
			}
			return err
		}

		u.emit(EventTypeCampaignInitialized, campaign, map[string]string{
			"operator":      campaign.Operator,
			"base_mint":     campaign.BaseMint,
			"quote_mint":    campaign.QuoteMint,
			"minimum_raise": formatAmount(campaign.MinimumRaise),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"campaign": campaign.Address,
		"operator": campaign.Operator,
	}).Info("campaign initialized")
	return campaign, nil
}

func (e *Engine) transition(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey, fn func(u *unit, campaign *models.Campaign) error) (*models.Campaign, error) {
	var campaign *models.Campaign
	err := e.atomically(ctx, func(u *unit) error {
		var err error
		campaign, err = u.loadOperated(campaignAddr, operator)
		if err != nil {
			return err
		}
		if err := fn(u, campaign); err != nil {
			return err
		}
		if err := u.tx.Save(campaign).Error; err != nil {
			return fmt.Errorf("failed to save campaign: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return campaign, nil
}

// StartPublicRound opens funding. The launch window is measured from now.
func (e *Engine) StartPublicRound(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey) (*models.Campaign, error) {
	return e.transition(ctx, campaignAddr, operator, func(u *unit, c *models.Campaign) error {
		if err := requireStatus(c, models.CampaignStatusInitialized); err != nil {
			return err
		}
		started := u.now
		c.Status = models.CampaignStatusPublicRoundStarted
		c.PublicRoundStartedAt = &started
		u.emit(EventTypePublicRoundStarted, c, map[string]string{
			"deadline": c.FundingDeadline().Format(time.RFC3339),
		})
		return nil
	})
}

// StartPrivateRound opens the confidential sub-round
func (e *Engine) StartPrivateRound(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey) (*models.Campaign, error) {
	return e.transition(ctx, campaignAddr, operator, func(u *unit, c *models.Campaign) error {
		if err := requireStatus(c, models.CampaignStatusPublicRoundStarted); err != nil {
			return err
		}
		started := u.now
		c.Status = models.CampaignStatusPrivateRoundStarted
		c.PrivateRoundOpen = true
		c.PrivateRoundStartedAt = &started
		u.emit(EventTypePrivateRoundStarted, c, nil)
		return nil
	})
}

// EndPrivateRound stops accepting confidential commitments. The status is
// kept so the round can still be finalized.
func (e *Engine) EndPrivateRound(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey) (*models.Campaign, error) {
	return e.transition(ctx, campaignAddr, operator, func(u *unit, c *models.Campaign) error {
		if err := requireStatus(c, models.CampaignStatusPrivateRoundStarted, models.CampaignStatusDelegated); err != nil {
			return err
		}
		if !c.PrivateRoundOpen {
			return fmt.Errorf("%w: private round of %s is already closed", ErrInvalidCampaignState, c.Address)
		}
		c.PrivateRoundOpen = false
		u.emit(EventTypePrivateRoundEnded, c, nil)
		return nil
	})
}

// SetMinimumRaise changes the minimum raise before private funding starts
func (e *Engine) SetMinimumRaise(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey, amount uint64) (*models.Campaign, error) {
	return e.transition(ctx, campaignAddr, operator, func(u *unit, c *models.Campaign) error {
		if err := requireStatus(c, models.CampaignStatusInitialized, models.CampaignStatusPublicRoundStarted); err != nil {
			return err
		}
		if amount == 0 {
			return fmt.Errorf("%w: minimum raise must be positive", ErrInvalidParameters)
		}
		if c.HardCap != 0 && amount > c.HardCap {
			return fmt.Errorf("%w: minimum raise %d exceeds hard cap %d", ErrInvalidParameters, amount, c.HardCap)
		}
		previous := c.MinimumRaise
		c.MinimumRaise = amount
		u.emit(EventTypeMinimumRaiseUpdated, c, map[string]string{
			"previous": formatAmount(previous),
			"minimum":  formatAmount(amount),
		})
		return nil
	})
}

// FinalizePrivateRound closes the campaign once the private state is back on
// the base layer and the operator attests its root and total.
func (e *Engine) FinalizePrivateRound(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey, root string, attestedTotal uint64) (*models.Campaign, error) {
	attestedRoot, err := hex.DecodeString(root)
	if err != nil || len(attestedRoot) != 32 {
		return nil, fmt.Errorf("%w: root must be 32 hex-encoded bytes", ErrInvalidParameters)
	}

	return e.transition(ctx, campaignAddr, operator, func(u *unit, c *models.Campaign) error {
		if err := requireStatus(c, models.CampaignStatusPrivateRoundStarted, models.CampaignStatusDelegated); err != nil {
			return err
		}
		state, err := u.loadPrivateState(c)
		if err != nil {
			return err
		}
		delegation, err := u.loadDelegation(state.Address)
		if err != nil {
			return err
		}
		if status := delegationStatus(delegation); status != models.DelegationStatusNotDelegated {
			return fmt.Errorf("%w: private state of %s is %s", ErrInvalidCampaignState, c.Address, status)
		}

		storedRoot, err := decodeRoot(state.CommitmentsRoot)
		if err != nil {
			return err
		}
		if storedRoot == nil {
			storedRoot = make([]byte, 32)
		}
		if !bytes.Equal(storedRoot, attestedRoot) {
			return fmt.Errorf("%w: commitments root does not match", ErrInvalidAttestation)
		}
		if state.CommittedAmount != attestedTotal {
			return fmt.Errorf("%w: attested total %d, committed %d", ErrInvalidAttestation, attestedTotal, state.CommittedAmount)
		}

		finalized := u.now
		c.Status = models.CampaignStatusFinalized
		c.PrivateRoundOpen = false
		c.FinalizedAt = &finalized
		u.emit(EventTypePrivateRoundFinalized, c, map[string]string{
			"commitments_root": state.CommitmentsRoot,
			"investor_count":   fmt.Sprintf("%d", state.InvestorCount),
			"raised_amount":    formatAmount(c.RaisedAmount),
		})
		return nil
	})
}

// PrivateSummary is the part of the private state a viewer may see.
// InvestorCount is nil for viewers that are not observers.
type PrivateSummary struct {
	Address         string  `json:"address"`
	OwnerProgram    string  `json:"owner_program"`
	CommitmentsRoot string  `json:"commitments_root"`
	InvestorCount   *uint32 `json:"investor_count,omitempty"`
}

// CampaignView is a snapshot of a campaign. When Confidential is set the
// raised amount and the quote vault balance exclude private commitments.
type CampaignView struct {
	Confidential      bool                    `json:"confidential"`
	Campaign          *models.Campaign        `json:"campaign"`
	FundingDeadline   *time.Time              `json:"funding_deadline"`
	BaseVaultBalance  uint64                  `json:"base_vault_balance"`
	QuoteVaultBalance uint64                  `json:"quote_vault_balance"`
	PrivateState      PrivateSummary          `json:"private_state"`
	PermissionStatus  models.PermissionStatus `json:"permission_status,omitempty"`
	DelegationStatus  models.DelegationStatus `json:"delegation_status"`
	Validator         string                  `json:"validator,omitempty"`
}

// GetCampaign returns the record, vault balances and private aggregate as
// seen by viewer. Until finalization only active observers see totals that
// include private commitments; a zero viewer gets the public view.
func (e *Engine) GetCampaign(ctx context.Context, campaignAddr solana.PublicKey, viewer solana.PublicKey) (*CampaignView, error) {
	var view *CampaignView
	err := e.read(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		view = &CampaignView{Campaign: campaign, FundingDeadline: campaign.FundingDeadline()}

		if view.BaseVaultBalance, err = u.vaultBalance(campaign, VaultBase); err != nil {
			return err
		}
		if view.QuoteVaultBalance, err = u.vaultBalance(campaign, VaultQuote); err != nil {
			return err
		}

		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		investors := state.InvestorCount
		view.PrivateState = PrivateSummary{
			Address:         state.Address,
			OwnerProgram:    state.OwnerProgram,
			CommitmentsRoot: state.CommitmentsRoot,
			InvestorCount:   &investors,
		}
		disclosed, err := u.discloses(campaign, state, viewer)
		if err != nil {
			return err
		}
		if !disclosed {
			view.conceal(state)
		}

		permission, err := u.loadPermission(state.Address)
		if err != nil {
			return err
		}
		if permission != nil {
			view.PermissionStatus = permission.Status
		}
		delegation, err := u.loadDelegation(state.Address)
		if err != nil {
			return err
		}
		view.DelegationStatus = delegationStatus(delegation)
		if delegation != nil {
			view.Validator = delegation.Validator
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ListCampaigns pages through campaigns, newest first. An empty status lists
// every campaign. Raised amounts are the public ones until finalization.
func (e *Engine) ListCampaigns(ctx context.Context, status models.CampaignStatus, limit int, offset int) ([]models.Campaign, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var total int64
	campaigns := make([]models.Campaign, 0, limit)
	err := e.read(ctx, func(u *unit) error {
		query := u.tx.Model(&models.Campaign{})
		if status != "" {
			query = query.Where("status = ?", status)
		}
		if err := query.Count(&total).Error; err != nil {
			return fmt.Errorf("failed to count campaigns: %w", err)
		}
		if err := query.Order("id desc").Limit(limit).Offset(offset).Find(&campaigns).Error; err != nil {
			return fmt.Errorf("failed to list campaigns: %w", err)
		}
		return u.concealAll(campaigns)
	})
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}
