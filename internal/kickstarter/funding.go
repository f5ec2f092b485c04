package kickstarter

import (
	"context"
	"errors"
	"fmt"

	"kickstarter/internal/models"
	"kickstarter/pkg/solana/pda"

	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FunderAccount is the holding account a funder pays from: the associated
// token account of the funder for mint.
func FunderAccount(funder solana.PublicKey, mint solana.PublicKey) (solana.PublicKey, error) {
	account, _, err := solana.FindAssociatedTokenAddress(funder, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive holding account of %s: %w", funder, err)
	}
	return account, nil
}

func checkCapacity(c *models.Campaign, amount uint64) error {
	capacity := c.Capacity()
	if c.RaisedAmount > capacity || amount > capacity-c.RaisedAmount {
		return fmt.Errorf("%w: %s cannot accept %d more", ErrRaiseCapExceeded, c.Address, amount)
	}
	return nil
}

func (u *unit) checkWindow(c *models.Campaign) error {
	deadline := c.FundingDeadline()
	if deadline != nil && u.now.After(*deadline) {
		return fmt.Errorf("%w: %s closed at %s", ErrFundingWindowClosed, c.Address, deadline)
	}
	return nil
}

// payIntoQuoteVault debits the funder's holding account and credits the
// quote vault.
func (u *unit) payIntoQuoteVault(c *models.Campaign, funder solana.PublicKey, amount uint64) error {
	quoteMint, err := storedKey(c.QuoteMint)
	if err != nil {
		return err
	}
	source, err := FunderAccount(funder, quoteMint)
	if err != nil {
		return err
	}
	return u.creditVault(c, VaultQuote, source, funder, amount)
}

// Fund accepts a public commitment from funder. Public funding stays open
// through the private round until the launch window ends.
func (e *Engine) Fund(ctx context.Context, campaignAddr solana.PublicKey, funder solana.PublicKey, amount uint64) (*models.PublicPosition, error) {
	if funder.IsZero() || amount == 0 {
		return nil, fmt.Errorf("%w: funder and a positive amount are required", ErrInvalidParameters)
	}
	positionPDA, err := pda.GetPublicPositionPDA(campaignAddr, funder)
	if err != nil {
		return nil, err
	}

	var position models.PublicPosition
	err = e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		if err := requireStatus(campaign,
			models.CampaignStatusPublicRoundStarted,
			models.CampaignStatusPrivateRoundStarted,
			models.CampaignStatusDelegated,
		); err != nil {
			return err
		}
		if err := u.checkWindow(campaign); err != nil {
			return err
		}
		if err := checkCapacity(campaign, amount); err != nil {
			return err
		}
		if err := u.payIntoQuoteVault(campaign, funder, amount); err != nil {
			return err
		}

		err = u.tx.Where("address = ?", positionPDA.Address.String()).First(&position).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			position = models.PublicPosition{
				Address:         positionPDA.Address.String(),
				CampaignAddress: campaign.Address,
				Funder:          funder.String(),
			}
		case err != nil:
			return fmt.Errorf("failed to load position: %w", err)
		}
		position.CommittedAmount += amount
		if err := u.tx.Save(&position).Error; err != nil {
			return fmt.Errorf("failed to save position: %w", err)
		}

		campaign.RaisedAmount += amount
		if err := u.tx.Save(campaign).Error; err != nil {
			return fmt.Errorf("failed to save campaign: %w", err)
		}

		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		u.emit(EventTypeFunded, campaign, map[string]string{
			"funder":        funder.String(),
			"amount":        formatAmount(amount),
			"raised_amount": formatAmount(publicRaised(campaign, state)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"campaign": campaignAddr.String(),
		"funder":   funder.String(),
		"amount":   amount,
	}).Info("public funding accepted")
	return &position, nil
}

// GetPublicPosition loads the public commitment of funder
func (e *Engine) GetPublicPosition(ctx context.Context, campaignAddr solana.PublicKey, funder solana.PublicKey) (*models.PublicPosition, error) {
	var position models.PublicPosition
	err := e.db.WithContext(ctx).
		Where("campaign_address = ? AND funder = ?", campaignAddr.String(), funder.String()).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s in %s", ErrPositionNotFound, funder, campaignAddr)
		}
		return nil, fmt.Errorf("failed to load position: %w", err)
	}
	return &position, nil
}
