package kickstarter

import (
	"context"
	"fmt"

	"kickstarter/internal/models"
	"kickstarter/pkg/rollup"
	"kickstarter/pkg/solana/pda"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DelegatePrivateState asks the delegation program to hand write authority of
// the private state to validator. The record stays Delegating until
// RefreshDelegationStatus sees the confirmation. It is stored before the
// rollup service is called, so a failed call leaves an unsigned Delegating
// record that the next refresh submits again.
func (e *Engine) DelegatePrivateState(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey, validator solana.PublicKey) (*models.DelegationRecord, error) {
	if validator.IsZero() {
		return nil, fmt.Errorf("%w: validator is required", ErrInvalidParameters)
	}

	var record *models.DelegationRecord
	err := e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadOperated(campaignAddr, operator)
		if err != nil {
			return err
		}
		if err := requireStatus(campaign, models.CampaignStatusPrivateRoundStarted, models.CampaignStatusDelegated); err != nil {
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

		record, err = u.loadDelegation(state.Address)
		if err != nil {
			return err
		}
		if status := delegationStatus(record); status != models.DelegationStatusNotDelegated {
			return fmt.Errorf("%w: private state is %s", ErrInvalidCampaignState, status)
		}

		account, err := storedKey(state.Address)
		if err != nil {
			return err
		}
		owner, err := storedKey(state.OwnerProgram)
		if err != nil {
			return err
		}
		pdas, err := pda.GetDelegationPDAs(account, owner)
		if err != nil {
			return err
		}

		if record == nil {
			record = &models.DelegationRecord{
				Account:         state.Address,
				CampaignAddress: campaign.Address,
			}
		}
		requested := u.now
		record.OwnerProgram = owner.String()
		record.Validator = validator.String()
		record.BufferAddress = pdas.Buffer.Address.String()
		record.RecordAddress = pdas.Record.Address.String()
		record.MetadataAddress = pdas.Metadata.Address.String()
		record.Status = models.DelegationStatusDelegating
		record.RequestID = uuid.NewString()
		record.RequestSignature = ""
		record.RequestedAt = &requested
		record.ConfirmedAt = nil
		if err := u.tx.Save(record).Error; err != nil {
			return fmt.Errorf("failed to save delegation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	record, err = e.submitDelegation(ctx, campaignAddr, operator, record)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"campaign":  campaignAddr.String(),
		"validator": validator.String(),
	}).Info("delegation requested")
	return record, nil
}

// submitDelegation sends a stored Delegating or Undelegating request to the
// rollup service and records the returned signature.
func (e *Engine) submitDelegation(ctx context.Context, campaignAddr solana.PublicKey, payer solana.PublicKey, pending *models.DelegationRecord) (*models.DelegationRecord, error) {
	account, err := storedKey(pending.Account)
	if err != nil {
		return nil, err
	}

	var signature solana.Signature
	eventType := EventTypeUndelegationRequested
	switch pending.Status {
	case models.DelegationStatusDelegating:
		eventType = EventTypeDelegationRequested
		req := rollup.DelegationRequest{Account: account, Payer: payer}
		for _, field := range []struct {
			stored string
			key    *solana.PublicKey
		}{
			{pending.OwnerProgram, &req.OwnerProgram},
			{pending.Validator, &req.Validator},
			{pending.BufferAddress, &req.Buffer},
			{pending.RecordAddress, &req.Record},
			{pending.MetadataAddress, &req.Metadata},
		} {
			if *field.key, err = storedKey(field.stored); err != nil {
				return nil, err
			}
		}
		signature, err = e.rollup.Delegate(ctx, req)
	case models.DelegationStatusUndelegating:
		signature, err = e.rollup.Undelegate(ctx, account, payer)
	default:
		return nil, fmt.Errorf("%w: private state is %s", ErrInvalidCampaignState, pending.Status)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"campaign": campaignAddr.String(),
			"request":  pending.RequestID,
			"status":   pending.Status,
		}).Warnf("delegation request not submitted, left pending: %v", err)
		return nil, fmt.Errorf("failed to request %s: %w", pending.Status, err)
	}

	var record *models.DelegationRecord
	err = e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		record, err = u.loadDelegation(pending.Account)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: delegation of %s disappeared", ErrDelegationNotActive, pending.Account)
		}
		if record.RequestID != pending.RequestID || record.Status != pending.Status || record.RequestSignature != "" {
			return nil
		}

		record.RequestSignature = signature.String()
		if err := u.tx.Model(record).Update("request_signature", record.RequestSignature).Error; err != nil {
			return fmt.Errorf("failed to record delegation signature: %w", err)
		}
		attrs := map[string]string{
			"account":   record.Account,
			"signature": record.RequestSignature,
		}
		if eventType == EventTypeDelegationRequested {
			attrs["validator"] = record.Validator
		}
		u.emit(eventType, campaign, attrs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// RefreshDelegationStatus asks the rollup service once about a pending
// delegation or undelegation and records the confirmed state. Settled
// records are returned unchanged. A request that never reached the service
// is submitted again.
func (e *Engine) RefreshDelegationStatus(ctx context.Context, campaignAddr solana.PublicKey) (*models.DelegationRecord, error) {
	var snapshot *models.DelegationRecord
	var operator string
	err := e.read(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		snapshot, err = u.loadDelegation(state.Address)
		if err != nil {
			return err
		}
		if snapshot == nil {
			return fmt.Errorf("%w: private state of %s was never delegated", ErrDelegationNotActive, campaign.Address)
		}
		operator = campaign.Operator
		return nil
	})
	if err != nil {
		return nil, err
	}
	if snapshot.Status != models.DelegationStatusDelegating && snapshot.Status != models.DelegationStatusUndelegating {
		return snapshot, nil
	}

	account, err := storedKey(snapshot.Account)
	if err != nil {
		return nil, err
	}
	status, err := e.rollup.DelegationStatus(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to query delegation status: %w", err)
	}

	settled := status.IsDelegated == (snapshot.Status == models.DelegationStatusDelegating)
	if !settled {
		if snapshot.RequestSignature != "" {
			return snapshot, nil
		}
		payer, err := storedKey(operator)
		if err != nil {
			return nil, err
		}
		return e.submitDelegation(ctx, campaignAddr, payer, snapshot)
	}
	if snapshot.Status == models.DelegationStatusDelegating && !status.Validator.IsZero() && status.Validator.String() != snapshot.Validator {
		log.WithFields(log.Fields{
			"account":   snapshot.Account,
			"requested": snapshot.Validator,
			"reported":  status.Validator.String(),
		}).Warn("account delegated to an unexpected validator")
		return snapshot, nil
	}

	var record *models.DelegationRecord
	err = e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		record, err = u.loadDelegation(snapshot.Account)
		if err != nil {
			return err
		}
		if record == nil || record.RequestID != snapshot.RequestID || record.Status != snapshot.Status {
			return nil
		}
		if record.Status == models.DelegationStatusDelegating {
			return u.confirmDelegation(campaign, state, record)
		}
		return u.confirmUndelegation(campaign, state, record)
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: delegation of %s disappeared", ErrDelegationNotActive, snapshot.Account)
	}
	return record, nil
}

func (u *unit) confirmDelegation(campaign *models.Campaign, state *models.PrivateState, record *models.DelegationRecord) error {
	confirmed := u.now
	record.Status = models.DelegationStatusDelegated
	record.ConfirmedAt = &confirmed
	if err := u.tx.Save(record).Error; err != nil {
		return fmt.Errorf("failed to confirm delegation: %w", err)
	}

	state.OwnerProgram = pda.DELEGATION_PROGRAM_ID.String()
	if err := u.tx.Model(state).Update("owner_program", state.OwnerProgram).Error; err != nil {
		return fmt.Errorf("failed to update private state owner: %w", err)
	}

	if campaign.Status == models.CampaignStatusPrivateRoundStarted {
		campaign.Status = models.CampaignStatusDelegated
		if err := u.tx.Model(campaign).Update("status", campaign.Status).Error; err != nil {
			return fmt.Errorf("failed to update campaign status: %w", err)
		}
	}

	u.emit(EventTypeDelegationConfirmed, campaign, map[string]string{
		"account":   record.Account,
		"validator": record.Validator,
	})
	return nil
}

// confirmUndelegation resets the record once the account is back on the base
// layer. The campaign keeps the Delegated status until it is finalized.
func (u *unit) confirmUndelegation(campaign *models.Campaign, state *models.PrivateState, record *models.DelegationRecord) error {
	validator := record.Validator
	record.Status = models.DelegationStatusNotDelegated
	record.Validator = ""
	record.ConfirmedAt = nil
	if err := u.tx.Save(record).Error; err != nil {
		return fmt.Errorf("failed to reset delegation: %w", err)
	}

	state.OwnerProgram = ownerProgram().String()
	if err := u.tx.Model(state).Update("owner_program", state.OwnerProgram).Error; err != nil {
		return fmt.Errorf("failed to update private state owner: %w", err)
	}

	u.emit(EventTypeUndelegationConfirmed, campaign, map[string]string{
		"account":   record.Account,
		"validator": validator,
	})
	return nil
}

// UndelegatePrivateState commits the private state back to the base layer.
// Like DelegatePrivateState the record is stored before the service call.
func (e *Engine) UndelegatePrivateState(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey) (*models.DelegationRecord, error) {
	var record *models.DelegationRecord
	err := e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadOperated(campaignAddr, operator)
		if err != nil {
			return err
		}
		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		record, err = u.loadDelegation(state.Address)
		if err != nil {
			return err
		}
		if status := delegationStatus(record); status != models.DelegationStatusDelegated {
			return fmt.Errorf("%w: private state is %s", ErrInvalidCampaignState, status)
		}

		requested := u.now
		record.Status = models.DelegationStatusUndelegating
		record.RequestID = uuid.NewString()
		record.RequestSignature = ""
		record.RequestedAt = &requested
		if err := u.tx.Save(record).Error; err != nil {
			return fmt.Errorf("failed to save delegation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.submitDelegation(ctx, campaignAddr, operator, record)
}

// GetDelegation returns the delegation record of a campaign's private state.
// A private state that was never delegated reports NotDelegated.
func (e *Engine) GetDelegation(ctx context.Context, campaignAddr solana.PublicKey) (*models.DelegationRecord, error) {
	var record *models.DelegationRecord
	err := e.read(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		record, err = u.loadDelegation(state.Address)
		if err != nil {
			return err
		}
		if record == nil {
			record = &models.DelegationRecord{
				Account:         state.Address,
				CampaignAddress: campaign.Address,
				OwnerProgram:    state.OwnerProgram,
				Status:          models.DelegationStatusNotDelegated,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// PendingConfirmations lists the campaigns whose permission or delegation is
// waiting for the rollup service.
func (e *Engine) PendingConfirmations(ctx context.Context) ([]solana.PublicKey, error) {
	var addresses []string
	db := e.db.WithContext(ctx)

	var permissions []string
	if err := db.Model(&models.PermissionRecord{}).
		Where("status = ?", models.PermissionStatusPending).
		Pluck("campaign_address", &permissions).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending permissions: %w", err)
	}
	var delegations []string
	if err := db.Model(&models.DelegationRecord{}).
		Where("status IN ?", []models.DelegationStatus{models.DelegationStatusDelegating, models.DelegationStatusUndelegating}).
		Pluck("campaign_address", &delegations).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending delegations: %w", err)
	}

	seen := make(map[string]bool)
	for _, addr := range append(permissions, delegations...) {
		if !seen[addr] {
			seen[addr] = true
			addresses = append(addresses, addr)
		}
	}

	keys := make([]solana.PublicKey, 0, len(addresses))
	for _, addr := range addresses {
		key, err := storedKey(addr)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
