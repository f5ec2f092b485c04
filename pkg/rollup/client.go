package rollup

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
)

// Client is the JSON-RPC client of the rollup router.
type Client struct {
	rpc *rpc.Client
}

// NewClient creates a router client. token is appended as the router's
// query-string auth token when set.
func NewClient(endpoint string, token string) *Client {
	if token != "" {
		endpoint = endpoint + "?token=" + token
	}
	return &Client{rpc: rpc.New(endpoint)}
}

type memberParam struct {
	Pubkey string `json:"pubkey"`
	Flags  uint8  `json:"flags"`
}

type permissionParam struct {
	PermissionedAccount string        `json:"permissionedAccount"`
	Permission          string        `json:"permission"`
	Payer               string        `json:"payer"`
	Members             []memberParam `json:"members"`
}

type delegationParam struct {
	Pda                   string `json:"pda"`
	OwnerProgram          string `json:"ownerProgram"`
	Validator             string `json:"validator"`
	BufferPda             string `json:"bufferPda"`
	DelegationRecordPda   string `json:"delegationRecordPda"`
	DelegationMetadataPda string `json:"delegationMetadataPda"`
	Payer                 string `json:"payer"`
}

type permissionStatusResult struct {
	Exists bool `json:"exists"`
	Active bool `json:"active"`
}

type delegationStatusResult struct {
	IsDelegated      bool `json:"isDelegated"`
	DelegationRecord *struct {
		Authority string `json:"authority"`
	} `json:"delegationRecord"`
}

func (c *Client) call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	if err := c.rpc.RPCCallForInto(ctx, out, method, params); err != nil {
		log.WithField("method", method).Errorf("rollup rpc call failed: %v", err)
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
	}
	return nil
}

func (c *Client) signature(ctx context.Context, method string, params ...interface{}) (solana.Signature, error) {
	var raw string
	if err := c.call(ctx, &raw, method, params...); err != nil {
		return solana.Signature{}, err
	}
	sig, err := solana.SignatureFromBase58(raw)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid signature returned by %s: %w", method, err)
	}
	return sig, nil
}

// CreatePermission submits the member set of a permissioned account
func (c *Client) CreatePermission(ctx context.Context, req PermissionRequest) (solana.Signature, error) {
	param := permissionParam{
		PermissionedAccount: req.PermissionedAccount.String(),
		Permission:          req.Permission.String(),
		Payer:               req.Payer.String(),
	}
	for _, m := range req.Members {
		param.Members = append(param.Members, memberParam{
			Pubkey: m.Pubkey.String(),
			Flags:  m.Capabilities.Flags(),
		})
	}
	return c.signature(ctx, "createPermission", param)
}

// PermissionStatus queries whether the permission of account is active
func (c *Client) PermissionStatus(ctx context.Context, account solana.PublicKey) (PermissionStatus, error) {
	var out permissionStatusResult
	if err := c.call(ctx, &out, "getPermissionStatus", account.String()); err != nil {
		return PermissionStatus{}, err
	}
	return PermissionStatus{Exists: out.Exists, Active: out.Active}, nil
}

// Delegate asks the delegation program to hand account to a validator
func (c *Client) Delegate(ctx context.Context, req DelegationRequest) (solana.Signature, error) {
	return c.signature(ctx, "delegateAccount", delegationParam{
		Pda:                   req.Account.String(),
		OwnerProgram:          req.OwnerProgram.String(),
		Validator:             req.Validator.String(),
		BufferPda:             req.Buffer.String(),
		DelegationRecordPda:   req.Record.String(),
		DelegationMetadataPda: req.Metadata.String(),
		Payer:                 req.Payer.String(),
	})
}

// DelegationStatus queries the router for the delegation of account
func (c *Client) DelegationStatus(ctx context.Context, account solana.PublicKey) (DelegationStatus, error) {
	var out delegationStatusResult
	if err := c.call(ctx, &out, "getDelegationStatus", account.String()); err != nil {
		return DelegationStatus{}, err
	}
	status := DelegationStatus{IsDelegated: out.IsDelegated}
	if out.DelegationRecord != nil && out.DelegationRecord.Authority != "" {
		validator, err := solana.PublicKeyFromBase58(out.DelegationRecord.Authority)
		if err != nil {
			return DelegationStatus{}, fmt.Errorf("invalid delegation authority %q: %w", out.DelegationRecord.Authority, err)
		}
		status.Validator = validator
	}
	return status, nil
}

// Undelegate commits the account state and returns it to the base layer
func (c *Client) Undelegate(ctx context.Context, account solana.PublicKey, payer solana.PublicKey) (solana.Signature, error) {
	return c.signature(ctx, "undelegateAccount", account.String(), payer.String())
}
