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

// normalizeMembers collapses repeated identities into the union of their
// capabilities and enforces the member rules of a private state permission.
func normalizeMembers(operator solana.PublicKey, members []rollup.Member) ([]rollup.Member, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: at least one member is required", ErrInvalidParameters)
	}

	index := make(map[solana.PublicKey]int, len(members))
	var out []rollup.Member
	for _, m := range members {
		if m.Pubkey.IsZero() {
			return nil, fmt.Errorf("%w: member key is required", ErrInvalidParameters)
		}
		if i, ok := index[m.Pubkey]; ok {
			out[i].Capabilities = out[i].Capabilities.Union(m.Capabilities)
			continue
		}
		index[m.Pubkey] = len(out)
		out = append(out, m)
	}

	if _, ok := index[operator]; !ok {
		return nil, fmt.Errorf("%w: members must include the operator %s", ErrInvalidParameters, operator)
	}
	required := rollup.ObserverCapabilities()
	for _, m := range out {
		if !m.Capabilities.Covers(required) {
			return nil, fmt.Errorf("%w: member %s lacks the observer capabilities", ErrInvalidParameters, m.Pubkey)
		}
	}
	return out, nil
}

func memberRecords(members []rollup.Member) []models.PermissionMember {
	records := make([]models.PermissionMember, 0, len(members))
	for _, m := range members {
		records = append(records, models.PermissionMember{
			Member:            m.Pubkey.String(),
			Authority:         m.Capabilities.Authority,
			TxLogs:            m.Capabilities.TxLogs,
			TxBalances:        m.Capabilities.TxBalances,
			TxMessages:        m.Capabilities.TxMessages,
			AccountSignatures: m.Capabilities.AccountSignatures,
		})
	}
	return records
}

// MemberCapabilities converts a stored member back to its capability set
func MemberCapabilities(m models.PermissionMember) rollup.Capabilities {
	return rollup.Capabilities{
		Authority:         m.Authority,
		TxLogs:            m.TxLogs,
		TxBalances:        m.TxBalances,
		TxMessages:        m.TxMessages,
		AccountSignatures: m.AccountSignatures,
	}
}

// GrantPrivatePermission registers the member set allowed to observe the
// private state. Granting again before delegation replaces the member set and
// returns the permission to pending.
//
// The record is stored as pending before the rollup service is called. When
// the call fails the record keeps no signature and RefreshPermissionStatus
// submits it again.
func (e *Engine) GrantPrivatePermission(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey, members []rollup.Member) (*models.PermissionRecord, error) {
	normalized, err := normalizeMembers(operator, members)
	if err != nil {
		return nil, err
	}

	var record *models.PermissionRecord
	err = e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadOperated(campaignAddr, operator)
		if err != nil {
			return err
		}
		if err := requireStatus(campaign,
			models.CampaignStatusInitialized,
			models.CampaignStatusPublicRoundStarted,
			models.CampaignStatusPrivateRoundStarted,
		); err != nil {
			return err
		}

		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		delegation, err := u.loadDelegation(state.Address)
		if err != nil {
			return err
		}
		if status := delegationStatus(delegation); status != models.DelegationStatusNotDelegated {
			return fmt.Errorf("%w: private state is %s, permission can no longer be reconfigured", ErrInvalidCampaignState, status)
		}

		target, err := storedKey(state.Address)
		if err != nil {
			return err
		}
		permissionPDA, err := pda.GetPermissionPDA(target)
		if err != nil {
			return err
		}

		record, err = u.loadPermission(state.Address)
		if err != nil {
			return err
		}
		if record == nil {
			record = &models.PermissionRecord{
				Address:         permissionPDA.Address.String(),
				Target:          state.Address,
				CampaignAddress: campaign.Address,
			}
		} else {
			if unsubmitted(record.Status == models.PermissionStatusPending, record.RequestSignature) {
				return fmt.Errorf("%w: permission request %s of %s is not submitted yet", ErrInvalidCampaignState, record.RequestID, state.Address)
			}
			if err := u.tx.Where("permission_id = ?", record.ID).Delete(&models.PermissionMember{}).Error; err != nil {
				return fmt.Errorf("failed to replace permission members: %w", err)
			}
		}

		record.Status = models.PermissionStatusPending
		record.RequestID = uuid.NewString()
		record.RequestSignature = ""
		record.RequestedAt = u.now
		record.ActivatedAt = nil
		record.RevokedAt = nil
		record.Members = memberRecords(normalized)
		if err := u.tx.Save(record).Error; err != nil {
			return fmt.Errorf("failed to save permission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	record, err = e.submitPermission(ctx, campaignAddr, operator, record)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"campaign": campaignAddr.String(),
		"members":  len(normalized),
	}).Info("permission requested")
	return record, nil
}

// unsubmitted reports a request recorded as pending whose rollup call has
// not returned a signature.
func unsubmitted(pending bool, signature string) bool {
	return pending && signature == ""
}

// submitPermission sends a stored pending request to the rollup service and
// records the returned signature, unless the record changed meanwhile.
func (e *Engine) submitPermission(ctx context.Context, campaignAddr solana.PublicKey, payer solana.PublicKey, pending *models.PermissionRecord) (*models.PermissionRecord, error) {
	target, err := storedKey(pending.Target)
	if err != nil {
		return nil, err
	}
	permission, err := storedKey(pending.Address)
	if err != nil {
		return nil, err
	}
	members := make([]rollup.Member, 0, len(pending.Members))
	for _, m := range pending.Members {
		key, err := storedKey(m.Member)
		if err != nil {
			return nil, err
		}
		members = append(members, rollup.Member{Pubkey: key, Capabilities: MemberCapabilities(m)})
	}

	signature, err := e.rollup.CreatePermission(ctx, rollup.PermissionRequest{
		PermissionedAccount: target,
		Permission:          permission,
		Payer:               payer,
		Members:             members,
	})
	if err != nil {
		log.WithFields(log.Fields{
			"campaign": campaignAddr.String(),
			"request":  pending.RequestID,
		}).Warnf("permission request not submitted, left pending: %v", err)
		return nil, fmt.Errorf("failed to request permission: %w", err)
	}

	var record *models.PermissionRecord
	err = e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		record, err = u.loadPermission(pending.Target)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: permission of %s disappeared", ErrPermissionNotActive, pending.Target)
		}
		if record.RequestID != pending.RequestID || !unsubmitted(record.Status == models.PermissionStatusPending, record.RequestSignature) {
			return nil
		}

		record.RequestSignature = signature.String()
		if err := u.tx.Model(record).Update("request_signature", record.RequestSignature).Error; err != nil {
			return fmt.Errorf("failed to record permission signature: %w", err)
		}
		u.emit(EventTypePermissionRequested, campaign, map[string]string{
			"target":     record.Target,
			"permission": record.Address,
			"signature":  record.RequestSignature,
			"members":    fmt.Sprintf("%d", len(record.Members)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// RefreshPermissionStatus asks the rollup service once whether a pending
// permission was confirmed. It never waits. A pending request that never
// reached the service is submitted again.
func (e *Engine) RefreshPermissionStatus(ctx context.Context, campaignAddr solana.PublicKey) (*models.PermissionRecord, error) {
	var snapshot *models.PermissionRecord
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
		snapshot, err = u.loadPermission(state.Address)
		if err != nil {
			return err
		}
		if snapshot == nil {
			return fmt.Errorf("%w: no permission requested for %s", ErrPermissionNotActive, campaign.Address)
		}
		operator = campaign.Operator
		return nil
	})
	if err != nil {
		return nil, err
	}
	if snapshot.Status != models.PermissionStatusPending {
		return snapshot, nil
	}

	target, err := storedKey(snapshot.Target)
	if err != nil {
		return nil, err
	}
	status, err := e.rollup.PermissionStatus(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to query permission status: %w", err)
	}
	if !status.Active {
		if snapshot.RequestSignature != "" {
			return snapshot, nil
		}
		payer, err := storedKey(operator)
		if err != nil {
			return nil, err
		}
		return e.submitPermission(ctx, campaignAddr, payer, snapshot)
	}

	var record *models.PermissionRecord
	err = e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		record, err = u.loadPermission(snapshot.Target)
		if err != nil {
			return err
		}
		if record == nil || record.RequestID != snapshot.RequestID || record.Status != models.PermissionStatusPending {
			return nil
		}

		activated := u.now
		record.Status = models.PermissionStatusActive
		record.ActivatedAt = &activated
		if err := u.tx.Model(record).Updates(map[string]interface{}{
			"status":       record.Status,
			"activated_at": record.ActivatedAt,
		}).Error; err != nil {
			return fmt.Errorf("failed to activate permission: %w", err)
		}
		u.emit(EventTypePermissionActivated, campaign, map[string]string{"target": record.Target})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: permission of %s disappeared", ErrPermissionNotActive, snapshot.Target)
	}
	return record, nil
}

// RevokePermission withdraws the member set. The private state must be on the
// base layer.
func (e *Engine) RevokePermission(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey) (*models.PermissionRecord, error) {
	var record *models.PermissionRecord
	err := e.atomically(ctx, func(u *unit) error {
		campaign, err := u.loadOperated(campaignAddr, operator)
		if err != nil {
			return err
		}
		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		record, err = u.loadPermission(state.Address)
		if err != nil {
			return err
		}
		if record == nil || record.Status == models.PermissionStatusRevoked {
			return fmt.Errorf("%w: no permission to revoke for %s", ErrInvalidCampaignState, campaign.Address)
		}
		delegation, err := u.loadDelegation(state.Address)
		if err != nil {
			return err
		}
		if status := delegationStatus(delegation); status != models.DelegationStatusNotDelegated {
			return fmt.Errorf("%w: private state is %s", ErrInvalidCampaignState, status)
		}

		revoked := u.now
		record.Status = models.PermissionStatusRevoked
		record.RevokedAt = &revoked
		if err := u.tx.Model(record).Updates(map[string]interface{}{
			"status":     record.Status,
			"revoked_at": record.RevokedAt,
		}).Error; err != nil {
			return fmt.Errorf("failed to revoke permission: %w", err)
		}
		u.emit(EventTypePermissionRevoked, campaign, map[string]string{"target": record.Target})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetPermission returns the permission record of a campaign's private state
func (e *Engine) GetPermission(ctx context.Context, campaignAddr solana.PublicKey) (*models.PermissionRecord, error) {
	var record *models.PermissionRecord
	err := e.read(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		state, err := u.loadPrivateState(campaign)
		if err != nil {
			return err
		}
		record, err = u.loadPermission(state.Address)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: no permission requested for %s", ErrPermissionNotActive, campaign.Address)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// requireObserver checks that viewer is an active member able to observe the
// private state.
func (u *unit) requireObserver(state *models.PrivateState, viewer solana.PublicKey) error {
	record, err := u.loadPermission(state.Address)
	if err != nil {
		return err
	}
	if record == nil || record.Status != models.PermissionStatusActive {
		return fmt.Errorf("%w: private state %s", ErrPermissionNotActive, state.Address)
	}
	for _, m := range record.Members {
		if m.Member == viewer.String() && MemberCapabilities(m).Covers(rollup.ObserverCapabilities()) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not an observer of %s", ErrUnauthorized, viewer, state.Address)
}
