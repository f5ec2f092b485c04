package kickstarter

import (
	"context"
	"encoding/hex"
	"fmt"

	"kickstarter/internal/models"
	"kickstarter/pkg/solana/pda"

	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
)

// PrivateFunding is one confidential commitment submitted inside the
// delegated domain. Validator is the execution authority running it and must
// be authenticated by the caller.
type PrivateFunding struct {
	Campaign  solana.PublicKey
	Funder    solana.PublicKey
	Amount    uint64
	Salt      []byte
	Validator solana.PublicKey
}

// Receipt is returned for an accepted commitment. It carries no amount, no
// running total and no position count.
type Receipt struct {
	Position        string `json:"position"`
	CommitmentHash  string `json:"commitment_hash"`
	CommitmentsRoot string `json:"commitments_root"`
}

// FundPrivate accepts a confidential commitment. The funder's quote tokens
// move into the quote vault and the private aggregate grows in the same unit
// of work, or nothing changes.
func (e *Engine) FundPrivate(ctx context.Context, req PrivateFunding) (*Receipt, error) {
	var receipt *Receipt
	var sequence uint32
	err := e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(req.Campaign)
		if err != nil {
			return err
		}
		if err := requireStatus(campaign, models.CampaignStatusPrivateRoundStarted, models.CampaignStatusDelegated); err != nil {
			return err
		}
		if !campaign.PrivateRoundOpen {
			return fmt.Errorf("%w: private round of %s is closed", ErrInvalidCampaignState, campaign.Address)
		}
		if err := u.checkWindow(campaign); err != nil {
			return err
		}

		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		permission, err := u.loadPermission(state.Address)
		if err != nil {
			return err
		}
		if permission == nil || permission.Status != models.PermissionStatusActive {
			return fmt.Errorf("%w: private state %s", ErrPermissionNotActive, state.Address)
		}

		delegation, err := u.loadDelegation(state.Address)
		if err != nil {
			return err
		}
		if status := delegationStatus(delegation); status != models.DelegationStatusDelegated {
			return fmt.Errorf("%w: private state is %s", ErrDelegationNotActive, status)
		}
		if req.Validator.String() != delegation.Validator {
			return fmt.Errorf("%w: %s is not the delegated validator", ErrDelegationNotActive, req.Validator)
		}

		if req.Funder.IsZero() || req.Amount == 0 {
			return fmt.Errorf("%w: funder and a positive amount are required", ErrInvalidParameters)
		}
		if len(req.Salt) != SaltLength {
			return fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidParameters, SaltLength, len(req.Salt))
		}
		var salt [SaltLength]byte
		copy(salt[:], req.Salt)
		saltHex := hex.EncodeToString(salt[:])

		var used int64
		if err := u.tx.Model(&models.FunderPosition{}).
			Where("campaign_address = ? AND funder = ? AND salt = ?", campaign.Address, req.Funder.String(), saltHex).
			Count(&used).Error; err != nil {
			return fmt.Errorf("failed to look up commitment: %w", err)
		}
		if used > 0 {
			return fmt.Errorf("%w: salt already used by %s", ErrDuplicateCommitment, req.Funder)
		}

		if err := checkCapacity(campaign, req.Amount); err != nil {
			return err
		}
		if err := u.payIntoQuoteVault(campaign, req.Funder, req.Amount); err != nil {
			return err
		}

		root, err := decodeRoot(state.CommitmentsRoot)
		if err != nil {
			return err
		}
		commitment := Commitment(req.Funder, req.Amount, salt)
		newRoot := ChainRoot(root, commitment)
		positionPDA, err := pda.GetFunderPositionPDA(req.Campaign, req.Funder, salt)
		if err != nil {
			return err
		}

		state.CommitmentsRoot = hex.EncodeToString(newRoot[:])
		state.InvestorCount++
		state.CommittedAmount += req.Amount
		if err := u.tx.Save(state).Error; err != nil {
			return fmt.Errorf("failed to save private state: %w", err)
		}

		position := &models.FunderPosition{
			Address:             positionPDA.Address.String(),
			PrivateStateAddress: state.Address,
			CampaignAddress:     campaign.Address,
			Funder:              req.Funder.String(),
			Salt:                saltHex,
			Amount:              req.Amount,
			CommitmentHash:      hex.EncodeToString(commitment[:]),
			Sequence:            state.InvestorCount,
			AcceptedAt:          u.now,
		}
		if err := u.tx.Create(position).Error; err != nil {
			return fmt.Errorf("failed to record commitment: %w", err)
		}

		campaign.RaisedAmount += req.Amount
		if err := u.tx.Model(campaign).Update("raised_amount", campaign.RaisedAmount).Error; err != nil {
			return fmt.Errorf("failed to update raised amount: %w", err)
		}

		receipt = &Receipt{
			Position:        position.Address,
			CommitmentHash:  position.CommitmentHash,
			CommitmentsRoot: state.CommitmentsRoot,
		}
		sequence = position.Sequence
		u.emit(EventTypePrivateCommitment, campaign, map[string]string{
			"commitment_hash":  receipt.CommitmentHash,
			"commitments_root": receipt.CommitmentsRoot,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"campaign": req.Campaign.String(),
		"sequence": sequence,
	}).Info("private commitment accepted")
	return receipt, nil
}

// ListPrivatePositions returns the commitments of a campaign to an active
// observer of its private state.
func (e *Engine) ListPrivatePositions(ctx context.Context, campaignAddr solana.PublicKey, viewer solana.PublicKey) ([]models.FunderPosition, error) {
	var positions []models.FunderPosition
	err := e.read(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		if err := u.requireObserver(state, viewer); err != nil {
			return err
		}
		return u.tx.Where("private_state_address = ?", state.Address).
			Order("sequence asc").Find(&positions).Error
	})
	if err != nil {
		return nil, err
	}
	return positions, nil
}
