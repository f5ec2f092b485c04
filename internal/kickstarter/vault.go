package kickstarter

import (
	"context"
	"errors"
	"fmt"

	"kickstarter/internal/custody"
	"kickstarter/internal/models"

	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
)

// VaultKind selects one of the two vaults of a campaign
type VaultKind string

const (
	VaultBase  VaultKind = "base"
	VaultQuote VaultKind = "quote"
)

func (k VaultKind) valid() bool {
	return k == VaultBase || k == VaultQuote
}

func vaultAddress(campaign *models.Campaign, kind VaultKind) (solana.PublicKey, error) {
	switch kind {
	case VaultBase:
		return storedKey(campaign.BaseVault)
	case VaultQuote:
		return storedKey(campaign.QuoteVault)
	}
	return solana.PublicKey{}, fmt.Errorf("%w: unknown vault %q", ErrInvalidParameters, kind)
}

// custodyError maps custody failures onto the package errors. A missing
// source account holds nothing, so it counts as an insufficient balance.
func custodyError(err error) error {
	switch {
	case errors.Is(err, custody.ErrInsufficientFunds), errors.Is(err, custody.ErrAccountNotFound):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	case errors.Is(err, custody.ErrOwnerMismatch):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case errors.Is(err, custody.ErrMintMismatch), errors.Is(err, custody.ErrAccountClosed), errors.Is(err, custody.ErrOverflow):
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return err
}

// creditVault moves amount from a holding account owned by authority into a
// campaign vault.
func (u *unit) creditVault(campaign *models.Campaign, kind VaultKind, from solana.PublicKey, authority solana.PublicKey, amount uint64) error {
	vault, err := vaultAddress(campaign, kind)
	if err != nil {
		return err
	}
	if err := u.e.custody.Transfer(u.tx, from, vault, authority, amount); err != nil {
		return custodyError(err)
	}
	return nil
}

// debitVault moves amount out of a campaign vault. Only the campaign address
// itself may authorize it.
func (u *unit) debitVault(campaign *models.Campaign, kind VaultKind, amount uint64, destination solana.PublicKey, authority solana.PublicKey) error {
	if authority.String() != campaign.Address {
		return fmt.Errorf("%w: vault authority of %s is the campaign, not %s", ErrUnauthorized, campaign.Address, authority)
	}
	vault, err := vaultAddress(campaign, kind)
	if err != nil {
		return err
	}
	if err := u.e.custody.Transfer(u.tx, vault, destination, authority, amount); err != nil {
		return custodyError(err)
	}
	return nil
}

func (u *unit) vaultBalance(campaign *models.Campaign, kind VaultKind) (uint64, error) {
	vault, err := vaultAddress(campaign, kind)
	if err != nil {
		return 0, err
	}
	return u.e.custody.Balance(u.tx, vault)
}

// CreditVault deposits amount from a holding account into a campaign vault
func (e *Engine) CreditVault(ctx context.Context, campaignAddr solana.PublicKey, kind VaultKind, from solana.PublicKey, authority solana.PublicKey, amount uint64) error {
	if !kind.valid() || amount == 0 {
		return fmt.Errorf("%w: vault %q amount %d", ErrInvalidParameters, kind, amount)
	}
	return e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		return u.creditVault(campaign, kind, from, authority, amount)
	})
}

// DebitVault withdraws amount from a campaign vault into destination
func (e *Engine) DebitVault(ctx context.Context, campaignAddr solana.PublicKey, kind VaultKind, amount uint64, destination solana.PublicKey, authority solana.PublicKey) error {
	if !kind.valid() || amount == 0 {
		return fmt.Errorf("%w: vault %q amount %d", ErrInvalidParameters, kind, amount)
	}
	return e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		if err := u.debitVault(campaign, kind, amount, destination, authority); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"campaign":    campaign.Address,
			"vault":       kind,
			"amount":      amount,
			"destination": destination.String(),
		}).Info("vault debited")
		return nil
	})
}

// VaultBalance returns the balance of one campaign vault as seen by viewer.
// The quote vault excludes private commitments unless viewer may observe
// them.
func (e *Engine) VaultBalance(ctx context.Context, campaignAddr solana.PublicKey, kind VaultKind, viewer solana.PublicKey) (uint64, error) {
	var balance uint64
	err := e.read(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		balance, err = u.vaultBalance(campaign, kind)
		if err != nil || kind != VaultQuote {
			return err
		}
		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		disclosed, err := u.discloses(campaign, state, viewer)
		if err != nil {
			return err
		}
		if !disclosed {
			if balance < state.CommittedAmount {
				balance = 0
			} else {
				balance -= state.CommittedAmount
			}
		}
		return nil
	})
	return balance, err
}
