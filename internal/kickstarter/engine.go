// Package kickstarter implements the campaign state machine, the vault
// custodian, the permission controller, the delegation manager and the
// private funding processor.
//
// Every exported operation is one unit of work: it runs inside a single
// database transaction and commits all of its effects or none. Events are
// emitted only after the transaction committed. Rollup service calls are made
// between units, never while one is open.
package kickstarter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"kickstarter/internal/metadata"
	"kickstarter/internal/models"
	"kickstarter/pkg/rollup"
	"kickstarter/pkg/solana/pda"

	"github.com/gagliardetto/solana-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenCustody is the token custody collaborator. Calls join the transaction
// passed in tx.
type TokenCustody interface {
	GetMint(tx *gorm.DB, mint solana.PublicKey) (*models.TokenMint, error)
	SetMintAuthority(tx *gorm.DB, mint solana.PublicKey, current solana.PublicKey, next solana.PublicKey) error
	CreateHoldingAccount(tx *gorm.DB, account solana.PublicKey, owner solana.PublicKey, mint solana.PublicKey) (*models.TokenAccount, error)
	Balance(tx *gorm.DB, account solana.PublicKey) (uint64, error)
	Transfer(tx *gorm.DB, from solana.PublicKey, to solana.PublicKey, authority solana.PublicKey, amount uint64) error
}

// MetadataRegistry records the descriptive fields of the issued base token
type MetadataRegistry interface {
	Register(tx *gorm.DB, mint solana.PublicKey, updateAuthority solana.PublicKey, md metadata.Metadata) (*models.TokenMetadata, error)
}

// Engine executes campaign operations against the database and the rollup
// service.
type Engine struct {
	db       *gorm.DB
	custody  TokenCustody
	registry MetadataRegistry
	rollup   rollup.Service

	emitter Emitter
	nowFn   func() time.Time

	// mu gives units of work a total order on top of the transaction.
	mu sync.Mutex
}

type Option func(*Engine)

// WithEmitter sets the receiver of committed events
func WithEmitter(emitter Emitter) Option {
	return func(e *Engine) {
		e.SetEmitter(emitter)
	}
}

// WithNowFunc overrides the clock used for timestamps and the funding window
func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		e.SetNowFunc(now)
	}
}

func NewEngine(db *gorm.DB, custody TokenCustody, registry MetadataRegistry, svc rollup.Service, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		custody:  custody,
		registry: registry,
		rollup:   svc,
		emitter:  NoopEmitter{},
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) SetEmitter(emitter Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// unit is the state of one unit of work
type unit struct {
	e        *Engine
	ctx      context.Context
	tx       *gorm.DB
	now      time.Time
	readOnly bool
	events   []Event
}

// forUpdate locks the selected rows unless the unit only reads
func (u *unit) forUpdate() *gorm.DB {
	if u.readOnly {
		return u.tx
	}
	return u.tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (u *unit) emit(eventType string, campaign *models.Campaign, attrs map[string]string) {
	u.events = append(u.events, newEvent(eventType, campaign, u.now, attrs))
}

func (e *Engine) atomically(ctx context.Context, fn func(u *unit) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	u := &unit{e: e, ctx: ctx, now: e.nowFn().UTC()}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u.tx = tx
		return fn(u)
	})
	if err != nil {
		return err
	}
	for _, ev := range u.events {
		e.emitter.Emit(ev)
	}
	return nil
}

// read runs fn in a read-only transaction so every row it loads comes from
// the same snapshot.
func (e *Engine) read(ctx context.Context, fn func(u *unit) error) error {
	u := &unit{e: e, ctx: ctx, now: e.now(), readOnly: true}
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u.tx = tx
		return fn(u)
	}, &sql.TxOptions{ReadOnly: true})
}

func (e *Engine) now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nowFn().UTC()
}

func (u *unit) loadCampaign(address solana.PublicKey) (*models.Campaign, error) {
	var campaign models.Campaign
	err := u.forUpdate().Where("address = ?", address.String()).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, address)
		}
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	return &campaign, nil
}

// loadOperated loads a campaign and requires operator to be its operator
func (u *unit) loadOperated(address solana.PublicKey, operator solana.PublicKey) (*models.Campaign, error) {
	campaign, err := u.loadCampaign(address)
	if err != nil {
		return nil, err
	}
	if campaign.Operator != operator.String() {
		return nil, fmt.Errorf("%w: %s is not the operator of %s", ErrUnauthorized, operator, address)
	}
	return campaign, nil
}

func (u *unit) loadPrivateState(campaign *models.Campaign) (*models.PrivateState, error) {
	var state models.PrivateState
	err := u.forUpdate().Where("campaign_address = ?", campaign.Address).First(&state).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load private state of %s: %w", campaign.Address, err)
	}
	return &state, nil
}

// loadPermission returns nil when no permission was requested yet
func (u *unit) loadPermission(target string) (*models.PermissionRecord, error) {
	var record models.PermissionRecord
	err := u.tx.Preload("Members").Where("target = ?", target).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load permission of %s: %w", target, err)
	}
	return &record, nil
}

// loadDelegation returns nil when the account was never delegated
func (u *unit) loadDelegation(account string) (*models.DelegationRecord, error) {
	var record models.DelegationRecord
	err := u.tx.Where("account = ?", account).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load delegation of %s: %w", account, err)
	}
	return &record, nil
}

func delegationStatus(record *models.DelegationRecord) models.DelegationStatus {
	if record == nil {
		return models.DelegationStatusNotDelegated
	}
	return record.Status
}

func requireStatus(campaign *models.Campaign, allowed ...models.CampaignStatus) error {
	for _, status := range allowed {
		if campaign.Status == status {
			return nil
		}
	}
	return fmt.Errorf("%w: campaign %s is %s", ErrInvalidCampaignState, campaign.Address, campaign.Status)
}

func storedKey(s string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("stored key %q is not base58: %w", s, err)
	}
	return key, nil
}

func ownerProgram() solana.PublicKey {
	return pda.KICKSTARTER_PROGRAM_ID
}
