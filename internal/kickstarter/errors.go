package kickstarter

import (
	"errors"

	"kickstarter/pkg/rollup"
)

var (
	ErrInvalidCampaignState = errors.New("invalid campaign state")
	ErrInvalidParameters    = errors.New("invalid parameters")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrPermissionNotActive  = errors.New("permission not active")
	ErrDelegationNotActive  = errors.New("delegation not active")
	ErrDuplicateCommitment  = errors.New("duplicate commitment")
	ErrRaiseCapExceeded     = errors.New("raise cap exceeded")

	ErrPerformancePoolExceeded = errors.New("performance pool exceeded")
	ErrPackageConfigured       = errors.New("performance package already configured")

	ErrUnauthorized        = errors.New("unauthorized")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrFundingWindowClosed = errors.New("funding window closed")
	ErrInvalidAttestation  = errors.New("invalid attestation")
	ErrPositionNotFound    = errors.New("position not found")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidCampaignState, "invalid_campaign_state"},
	{ErrInvalidParameters, "invalid_parameters"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrPermissionNotActive, "permission_not_active"},
	{ErrDelegationNotActive, "delegation_not_active"},
	{ErrDuplicateCommitment, "duplicate_commitment"},
	{ErrRaiseCapExceeded, "raise_cap_exceeded"},
	{ErrPerformancePoolExceeded, "performance_pool_exceeded"},
	{ErrPackageConfigured, "package_already_configured"},
	{ErrUnauthorized, "unauthorized"},
	{ErrCampaignNotFound, "campaign_not_found"},
	{ErrFundingWindowClosed, "funding_window_closed"},
	{ErrInvalidAttestation, "invalid_attestation"},
	{ErrPositionNotFound, "position_not_found"},
	{rollup.ErrUnavailable, "rollup_unavailable"},
}

// ErrorCode returns the stable identifier of err, "internal" when err is not
// one of the package errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, candidate := range errorCodes {
		if errors.Is(err, candidate.err) {
			return candidate.code
		}
	}
	return "internal"
}
