package kickstarter

import (
	"errors"
	"fmt"

	"kickstarter/internal/models"

	"github.com/gagliardetto/solana-go"
)

// publicRaised is the raised amount without the confidential commitments
func publicRaised(campaign *models.Campaign, state *models.PrivateState) uint64 {
	if campaign.RaisedAmount < state.CommittedAmount {
		return 0
	}
	return campaign.RaisedAmount - state.CommittedAmount
}

// discloses reports whether viewer may see the private aggregate of state.
// Everyone may once the campaign is finalized; before that only active
// observers may. A zero viewer is anonymous.
func (u *unit) discloses(campaign *models.Campaign, state *models.PrivateState, viewer solana.PublicKey) (bool, error) {
	if campaign.Status == models.CampaignStatusFinalized {
		return true, nil
	}
	if viewer.IsZero() {
		return false, nil
	}
	err := u.requireObserver(state, viewer)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrPermissionNotActive):
		return false, nil
	default:
		return false, err
	}
}

// conceal strips the confidential aggregate from a view
func (v *CampaignView) conceal(state *models.PrivateState) {
	v.Campaign.RaisedAmount = publicRaised(v.Campaign, state)
	if v.QuoteVaultBalance < state.CommittedAmount {
		v.QuoteVaultBalance = 0
	} else {
		v.QuoteVaultBalance -= state.CommittedAmount
	}
	v.PrivateState.InvestorCount = nil
	v.Confidential = true
}

// concealAll applies the public view to a page of campaigns
func (u *unit) concealAll(campaigns []models.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}
	addresses := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		addresses = append(addresses, c.Address)
	}
	var states []models.PrivateState
	if err := u.tx.Where("campaign_address IN ?", addresses).Find(&states).Error; err != nil {
		return fmt.Errorf("failed to load private states: %w", err)
	}
	committed := make(map[string]*models.PrivateState, len(states))
	for i := range states {
		committed[states[i].CampaignAddress] = &states[i]
	}
	for i := range campaigns {
		state, ok := committed[campaigns[i].Address]
		if !ok || campaigns[i].Status == models.CampaignStatusFinalized {
			continue
		}
		campaigns[i].RaisedAmount = publicRaised(&campaigns[i], state)
	}
	return nil
}
