// Package rollup talks to the ephemeral rollup permission and delegation
// service. The service is asynchronous: requests return a signature right
// away and the caller polls the status queries until the ledger confirms.
package rollup

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// Permission flag bits used on the wire by the access-control program.
const (
	AUTHORITY_FLAG          uint8 = 1 << 0
	TX_LOGS_FLAG            uint8 = 1 << 1
	TX_BALANCES_FLAG        uint8 = 1 << 2
	TX_MESSAGE_FLAG         uint8 = 1 << 3
	ACCOUNT_SIGNATURES_FLAG uint8 = 1 << 4
)

var ErrUnavailable = errors.New("rollup service unavailable")

// Capabilities is the set of things a permission member may observe or do on
// a delegated account.
type Capabilities struct {
	Authority         bool `json:"authority"`
	TxLogs            bool `json:"tx_logs"`
	TxBalances        bool `json:"tx_balances"`
	TxMessages        bool `json:"tx_messages"`
	AccountSignatures bool `json:"account_signatures"`
}

// ObserverCapabilities is the minimum set a party needs to verify private
// funding activity.
func ObserverCapabilities() Capabilities {
	return Capabilities{
		Authority:         true,
		TxLogs:            true,
		TxBalances:        true,
		TxMessages:        true,
		AccountSignatures: true,
	}
}

// Union returns the capabilities granted by either set.
func (c Capabilities) Union(other Capabilities) Capabilities {
	return Capabilities{
		Authority:         c.Authority || other.Authority,
		TxLogs:            c.TxLogs || other.TxLogs,
		TxBalances:        c.TxBalances || other.TxBalances,
		TxMessages:        c.TxMessages || other.TxMessages,
		AccountSignatures: c.AccountSignatures || other.AccountSignatures,
	}
}

// Covers reports whether every capability of required is granted.
func (c Capabilities) Covers(required Capabilities) bool {
	return (!required.Authority || c.Authority) &&
		(!required.TxLogs || c.TxLogs) &&
		(!required.TxBalances || c.TxBalances) &&
		(!required.TxMessages || c.TxMessages) &&
		(!required.AccountSignatures || c.AccountSignatures)
}

// Flags encodes the capabilities into the access-control program bitset.
func (c Capabilities) Flags() uint8 {
	var flags uint8
	if c.Authority {
		flags |= AUTHORITY_FLAG
	}
	if c.TxLogs {
		flags |= TX_LOGS_FLAG
	}
	if c.TxBalances {
		flags |= TX_BALANCES_FLAG
	}
	if c.TxMessages {
		flags |= TX_MESSAGE_FLAG
	}
	if c.AccountSignatures {
		flags |= ACCOUNT_SIGNATURES_FLAG
	}
	return flags
}

// CapabilitiesFromFlags decodes an access-control bitset. Unknown bits are
// ignored.
func CapabilitiesFromFlags(flags uint8) Capabilities {
	return Capabilities{
		Authority:         flags&AUTHORITY_FLAG != 0,
		TxLogs:            flags&TX_LOGS_FLAG != 0,
		TxBalances:        flags&TX_BALANCES_FLAG != 0,
		TxMessages:        flags&TX_MESSAGE_FLAG != 0,
		AccountSignatures: flags&ACCOUNT_SIGNATURES_FLAG != 0,
	}
}

// Member is one identity of a permission with its capabilities
type Member struct {
	Pubkey       solana.PublicKey `json:"pubkey"`
	Capabilities Capabilities     `json:"capabilities"`
}

// PermissionRequest registers the member set of a permissioned account
type PermissionRequest struct {
	PermissionedAccount solana.PublicKey
	Permission          solana.PublicKey
	Payer               solana.PublicKey
	Members             []Member
}

// PermissionStatus is the confirmed state of a permission account
type PermissionStatus struct {
	Exists bool
	Active bool
}

// DelegationRequest hands write authority of Account to Validator
type DelegationRequest struct {
	Account      solana.PublicKey
	OwnerProgram solana.PublicKey
	Validator    solana.PublicKey
	Buffer       solana.PublicKey
	Record       solana.PublicKey
	Metadata     solana.PublicKey
	Payer        solana.PublicKey
}

// DelegationStatus is what the router reports for an account
type DelegationStatus struct {
	IsDelegated bool
	Validator   solana.PublicKey
}

// Service is the permission and delegation collaborator. Every call returns
// once the request is accepted; none of them waits for confirmation.
type Service interface {
	CreatePermission(ctx context.Context, req PermissionRequest) (solana.Signature, error)
	PermissionStatus(ctx context.Context, account solana.PublicKey) (PermissionStatus, error)
	Delegate(ctx context.Context, req DelegationRequest) (solana.Signature, error)
	DelegationStatus(ctx context.Context, account solana.PublicKey) (DelegationStatus, error)
	Undelegate(ctx context.Context, account solana.PublicKey, payer solana.PublicKey) (solana.Signature, error)
}
