package pda

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Program addresses
var (
	// Kickstarter program that owns campaign, vault and private state accounts
	KICKSTARTER_PROGRAM_ID = solana.MustPublicKeyFromBase58("DAqDXj2S1ipsGpe4eAi7AXBUT4MPd61DMDrq7QkvKUoY")

	// Ephemeral rollup delegation program
	DELEGATION_PROGRAM_ID = solana.MustPublicKeyFromBase58("DELeGGvXpWV2fqJUhqcF5ZSYMS4JTLjteaAMARRSaeSh")

	// Ephemeral rollup access-control program
	PERMISSION_PROGRAM_ID = solana.MustPublicKeyFromBase58("ACLseoPoyC3cBqoUtkbjZ4aDrkurZW86v19pXz2XQnp1")

	// Metaplex Token Metadata program
	MPL_TOKEN_METADATA_PROGRAM_ID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

// PDA seeds
var (
	SEED_KICKSTARTER         = []byte("kickstarter")
	SEED_BASE_VAULT          = []byte("base_vault")
	SEED_QUOTE_VAULT         = []byte("quote_vault")
	SEED_PRIVATE_STATE       = []byte("private_state")
	SEED_FUNDER_POSITION     = []byte("funder_position")
	SEED_PERMISSION          = []byte("permission:")
	SEED_DELEGATE_BUFFER     = []byte("buffer")
	SEED_DELEGATION_RECORD   = []byte("delegation")
	SEED_DELEGATION_METADATA = []byte("delegation-metadata")
	SEED_METADATA            = []byte("metadata")
)

// PDAResult is a derived program address with its bump seed
type PDAResult struct {
	Address solana.PublicKey
	Bump    uint8
}

func find(name string, seeds [][]byte, programID solana.PublicKey) (PDAResult, error) {
	address, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return PDAResult{}, fmt.Errorf("failed to find %s PDA: %w", name, err)
	}
	return PDAResult{
		Address: address,
		Bump:    bump,
	}, nil
}

// GetCampaignPDA derives the campaign record of an operator and a base mint
func GetCampaignPDA(operator solana.PublicKey, baseMint solana.PublicKey) (PDAResult, error) {
	return find("campaign", [][]byte{
		SEED_KICKSTARTER,
		operator[:],
		baseMint[:],
	}, KICKSTARTER_PROGRAM_ID)
}

// GetBaseVaultPDA derives the base-token vault of a campaign
func GetBaseVaultPDA(campaign solana.PublicKey) (PDAResult, error) {
	return find("base vault", [][]byte{SEED_BASE_VAULT, campaign[:]}, KICKSTARTER_PROGRAM_ID)
}

// GetQuoteVaultPDA derives the quote-token vault of a campaign
func GetQuoteVaultPDA(campaign solana.PublicKey) (PDAResult, error) {
	return find("quote vault", [][]byte{SEED_QUOTE_VAULT, campaign[:]}, KICKSTARTER_PROGRAM_ID)
}

// GetPrivateStatePDA derives the confidential sub-account of a campaign
func GetPrivateStatePDA(campaign solana.PublicKey) (PDAResult, error) {
	return find("private state", [][]byte{SEED_PRIVATE_STATE, campaign[:]}, KICKSTARTER_PROGRAM_ID)
}

// GetPublicPositionPDA derives the public-round position of a funder
func GetPublicPositionPDA(campaign solana.PublicKey, funder solana.PublicKey) (PDAResult, error) {
	return find("public position", [][]byte{
		SEED_FUNDER_POSITION,
		campaign[:],
		funder[:],
	}, KICKSTARTER_PROGRAM_ID)
}

// GetFunderPositionPDA derives a private commitment record. The salt is part
// of the seeds so each (funder, salt) pair owns a distinct address.
func GetFunderPositionPDA(campaign solana.PublicKey, funder solana.PublicKey, salt [32]byte) (PDAResult, error) {
	return find("funder position", [][]byte{
		SEED_FUNDER_POSITION,
		campaign[:],
		funder[:],
		salt[:],
	}, KICKSTARTER_PROGRAM_ID)
}

// GetPermissionPDA derives the permission account of a permissioned account
func GetPermissionPDA(account solana.PublicKey) (PDAResult, error) {
	return find("permission", [][]byte{SEED_PERMISSION, account[:]}, PERMISSION_PROGRAM_ID)
}

// GetDelegateBufferPDA derives the buffer used while an account is being
// delegated. The buffer lives under the program that owned the account.
func GetDelegateBufferPDA(account solana.PublicKey, ownerProgram solana.PublicKey) (PDAResult, error) {
	return find("delegate buffer", [][]byte{SEED_DELEGATE_BUFFER, account[:]}, ownerProgram)
}

// GetDelegationRecordPDA derives the delegation record of an account
func GetDelegationRecordPDA(account solana.PublicKey) (PDAResult, error) {
	return find("delegation record", [][]byte{SEED_DELEGATION_RECORD, account[:]}, DELEGATION_PROGRAM_ID)
}

// GetDelegationMetadataPDA derives the delegation metadata of an account
func GetDelegationMetadataPDA(account solana.PublicKey) (PDAResult, error) {
	return find("delegation metadata", [][]byte{SEED_DELEGATION_METADATA, account[:]}, DELEGATION_PROGRAM_ID)
}

// GetMetadataPDA derives the token metadata account of a mint
func GetMetadataPDA(mint solana.PublicKey) (PDAResult, error) {
	return find("metadata", [][]byte{
		SEED_METADATA,
		MPL_TOKEN_METADATA_PROGRAM_ID[:],
		mint[:],
	}, MPL_TOKEN_METADATA_PROGRAM_ID)
}

// CampaignPDAInfo holds every account derived from a campaign
type CampaignPDAInfo struct {
	Campaign     PDAResult
	BaseVault    PDAResult
	QuoteVault   PDAResult
	PrivateState PDAResult
	Permission   PDAResult
}

// GetCampaignPDAs derives the campaign and all of its sub-accounts
func GetCampaignPDAs(operator solana.PublicKey, baseMint solana.PublicKey) (*CampaignPDAInfo, error) {
	info := &CampaignPDAInfo{}
	var err error

	info.Campaign, err = GetCampaignPDA(operator, baseMint)
	if err != nil {
		return nil, err
	}
	info.BaseVault, err = GetBaseVaultPDA(info.Campaign.Address)
	if err != nil {
		return nil, err
	}
	info.QuoteVault, err = GetQuoteVaultPDA(info.Campaign.Address)
	if err != nil {
		return nil, err
	}
	info.PrivateState, err = GetPrivateStatePDA(info.Campaign.Address)
	if err != nil {
		return nil, err
	}
	info.Permission, err = GetPermissionPDA(info.PrivateState.Address)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// DelegationPDAInfo holds the accounts the delegation program needs
type DelegationPDAInfo struct {
	Buffer   PDAResult
	Record   PDAResult
	Metadata PDAResult
}

// GetDelegationPDAs derives buffer, record and metadata accounts of a
// delegated account
func GetDelegationPDAs(account solana.PublicKey, ownerProgram solana.PublicKey) (*DelegationPDAInfo, error) {
	info := &DelegationPDAInfo{}
	var err error

	info.Buffer, err = GetDelegateBufferPDA(account, ownerProgram)
	if err != nil {
		return nil, err
	}
	info.Record, err = GetDelegationRecordPDA(account)
	if err != nil {
		return nil, err
	}
	info.Metadata, err = GetDelegationMetadataPDA(account)
	if err != nil {
		return nil, err
	}
	return info, nil
}
