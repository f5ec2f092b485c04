// Package custody is the token custody ledger: mints, holding accounts and
// the transfers between them. Every method accepts the caller's transaction
// so token movements commit or roll back with the record that caused them.
package custody

import (
	"errors"
	"fmt"
	"math"

	"kickstarter/internal/models"

	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrMintNotFound      = errors.New("mint not found")
	ErrMintExists        = errors.New("mint already exists")
	ErrAccountNotFound   = errors.New("token account not found")
	ErrAccountExists     = errors.New("token account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOwnerMismatch     = errors.New("owner does not match")
	ErrMintMismatch      = errors.New("account mint does not match")
	ErrAccountClosed     = errors.New("token account is closed")
	ErrOverflow          = errors.New("amount overflows the balance")
)

// MaxAmount is the largest balance or supply the ledger stores. Amounts are
// persisted in signed 64 bit columns.
const MaxAmount = math.MaxInt64

// add returns a+b, or ErrOverflow when the sum exceeds MaxAmount
func add(a uint64, b uint64) (uint64, error) {
	if a > MaxAmount || b > MaxAmount-a {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return a + b, nil
}

// Ledger keeps balances in the token_mint and token_account tables
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return l.db
}

// CreateMint registers a mint with authority as mint and freeze authority
func (l *Ledger) CreateMint(tx *gorm.DB, mint solana.PublicKey, authority solana.PublicKey, decimals uint8) (*models.TokenMint, error) {
	db := l.conn(tx)
	var count int64
	if err := db.Model(&models.TokenMint{}).Where("address = ?", mint.String()).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to look up mint: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMintExists, mint)
	}

	record := &models.TokenMint{
		Address:         mint.String(),
		Decimals:        decimals,
		MintAuthority:   authority.String(),
		FreezeAuthority: authority.String(),
	}
	if err := db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create mint: %w", err)
	}
	return record, nil
}

// GetMint loads a mint
func (l *Ledger) GetMint(tx *gorm.DB, mint solana.PublicKey) (*models.TokenMint, error) {
	var record models.TokenMint
	if err := l.conn(tx).Where("address = ?", mint.String()).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMintNotFound, mint)
		}
		return nil, fmt.Errorf("failed to load mint: %w", err)
	}
	return &record, nil
}

// SetMintAuthority moves mint and freeze authority from current to next.
func (l *Ledger) SetMintAuthority(tx *gorm.DB, mint solana.PublicKey, current solana.PublicKey, next solana.PublicKey) error {
	db := l.conn(tx)
	var record models.TokenMint
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("address = ?", mint.String()).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrMintNotFound, mint)
		}
		return fmt.Errorf("failed to load mint: %w", err)
	}
	if record.MintAuthority != current.String() {
		return fmt.Errorf("%w: mint authority of %s is %s", ErrOwnerMismatch, mint, record.MintAuthority)
	}

	updates := map[string]interface{}{
		"mint_authority":   next.String(),
		"freeze_authority": next.String(),
	}
	if err := db.Model(&record).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update mint authority: %w", err)
	}
	return nil
}

// CreateHoldingAccount opens account for owner. Opening an account that
// already exists with the same owner and mint returns the existing one.
func (l *Ledger) CreateHoldingAccount(tx *gorm.DB, account solana.PublicKey, owner solana.PublicKey, mint solana.PublicKey) (*models.TokenAccount, error) {
	db := l.conn(tx)
	if _, err := l.GetMint(db, mint); err != nil {
		return nil, err
	}

	var existing models.TokenAccount
	err := db.Where("account_address = ?", account.String()).First(&existing).Error
	if err == nil {
		if existing.OwnerAddress != owner.String() || existing.Mint != mint.String() {
			return nil, fmt.Errorf("%w: %s", ErrAccountExists, account)
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up token account: %w", err)
	}

	record := &models.TokenAccount{
		OwnerAddress:   owner.String(),
		Mint:           mint.String(),
		AccountAddress: account.String(),
	}
	if err := db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create token account: %w", err)
	}
	return record, nil
}

// GetAccount loads a holding account
func (l *Ledger) GetAccount(tx *gorm.DB, account solana.PublicKey) (*models.TokenAccount, error) {
	return l.lockAccount(l.conn(tx), account, false)
}

func (l *Ledger) lockAccount(db *gorm.DB, account solana.PublicKey, forUpdate bool) (*models.TokenAccount, error) {
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var record models.TokenAccount
	if err := db.Where("account_address = ?", account.String()).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
		}
		return nil, fmt.Errorf("failed to load token account: %w", err)
	}
	return &record, nil
}

// Balance returns the balance of a holding account
func (l *Ledger) Balance(tx *gorm.DB, account solana.PublicKey) (uint64, error) {
	record, err := l.GetAccount(tx, account)
	if err != nil {
		return 0, err
	}
	return record.Balance, nil
}

// Transfer moves amount from one holding account to another of the same
// mint. authority must own the source account.
func (l *Ledger) Transfer(tx *gorm.DB, from solana.PublicKey, to solana.PublicKey, authority solana.PublicKey, amount uint64) error {
	db := l.conn(tx)
	source, err := l.lockAccount(db, from, true)
	if err != nil {
		return err
	}
	destination, err := l.lockAccount(db, to, true)
	if err != nil {
		return err
	}

	switch {
	case source.IsClose || destination.IsClose:
		return ErrAccountClosed
	case source.OwnerAddress != authority.String():
		return fmt.Errorf("%w: %s is not the owner of %s", ErrOwnerMismatch, authority, from)
	case source.Mint != destination.Mint:
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, source.Mint, destination.Mint)
	case source.Balance < amount:
		return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, source.Balance, amount)
	}
	if from.Equals(to) {
		return nil
	}
	credited, err := add(destination.Balance, amount)
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}

	if err := db.Model(source).Update("balance", source.Balance-amount).Error; err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}
	if err := db.Model(destination).Update("balance", credited).Error; err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}

	log.WithFields(log.Fields{
		"from":   from.String(),
		"to":     to.String(),
		"amount": amount,
	}).Debug("token transfer")
	return nil
}

// MintTo issues amount of mint into a holding account. authority must be the
// current mint authority.
func (l *Ledger) MintTo(tx *gorm.DB, mint solana.PublicKey, to solana.PublicKey, authority solana.PublicKey, amount uint64) error {
	db := l.conn(tx)
	record, err := l.GetMint(db, mint)
	if err != nil {
		return err
	}
	if record.MintAuthority != authority.String() {
		return fmt.Errorf("%w: mint authority of %s is %s", ErrOwnerMismatch, mint, record.MintAuthority)
	}
	destination, err := l.lockAccount(db, to, true)
	if err != nil {
		return err
	}
	if destination.Mint != mint.String() {
		return fmt.Errorf("%w: %s holds %s", ErrMintMismatch, to, destination.Mint)
	}
	supply, err := add(record.Supply, amount)
	if err != nil {
		return fmt.Errorf("failed to mint into %s: %w", mint, err)
	}
	credited, err := add(destination.Balance, amount)
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}

	if err := db.Model(destination).Update("balance", credited).Error; err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}
	if err := db.Model(record).Update("supply", supply).Error; err != nil {
		return fmt.Errorf("failed to update supply of %s: %w", mint, err)
	}
	return nil
}
