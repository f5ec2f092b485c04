package kickstarter

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"
	"time"

	"kickstarter/internal/custody"
	"kickstarter/internal/metadata"
	"kickstarter/internal/models"
	"kickstarter/pkg/rollup"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *gorm.DB
	ledger    *custody.Ledger
	registry  *metadata.Registry
	sim       *rollup.Simulator
	engine    *Engine
	events    *recorder
	clock     *clock
	operator  solana.PublicKey
	issuer    solana.PublicKey
	validator solana.PublicKey
	baseMint  solana.PublicKey
	quoteMint solana.PublicKey
	treasury  solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		db:        db,
		ledger:    custody.NewLedger(db),
		registry:  metadata.NewRegistry(db),
		sim:       rollup.NewSimulator(),
		events:    &recorder{},
		clock:     &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		operator:  solana.NewWallet().PublicKey(),
		issuer:    solana.NewWallet().PublicKey(),
		validator: solana.MustPublicKeyFromBase58("FnE6VJT5QNZdedZPnCoLsARgBwoE6DeJNjBs2H1gySXA"),
		baseMint:  solana.NewWallet().PublicKey(),
		quoteMint: solana.NewWallet().PublicKey(),
		treasury:  solana.NewWallet().PublicKey(),
	}
	f.engine = NewEngine(db, f.ledger, f.registry, f.sim,
		WithEmitter(f.events),
		WithNowFunc(f.clock.Now),
	)

	_, err = f.ledger.CreateMint(nil, f.baseMint, f.operator, 6)
	require.NoError(t, err)
	_, err = f.ledger.CreateMint(nil, f.quoteMint, f.issuer, 6)
	require.NoError(t, err)
	return f
}

func (f *fixture) params() InitializeParams {
	return InitializeParams{
		Operator:                  f.operator,
		BaseMint:                  f.baseMint,
		QuoteMint:                 f.quoteMint,
		Treasury:                  f.treasury,
		MinimumRaise:              200,
		TotalTokensForSale:        10,
		PerformancePool:           2,
		LaunchDurationSeconds:     86400,
		TeamSpendingAllowance:     1,
		PackageUnlockDelaySeconds: 60,
		Metadata:                  metadata.Metadata{Name: "Kick", Symbol: "KICK", URI: "https://example.org/kick.json"},
	}
}

func (f *fixture) initialize(mutate ...func(*InitializeParams)) solana.PublicKey {
	f.t.Helper()
	params := f.params()
	for _, m := range mutate {
		m(&params)
	}
	campaign, err := f.engine.InitializeCampaign(f.ctx, params)
	require.NoError(f.t, err)
	return solana.MustPublicKeyFromBase58(campaign.Address)
}

// newFunder opens the quote holding account of a new funder with balance
func (f *fixture) newFunder(balance uint64) solana.PublicKey {
	f.t.Helper()
	funder := solana.NewWallet().PublicKey()
	account, err := FunderAccount(funder, f.quoteMint)
	require.NoError(f.t, err)
	_, err = f.ledger.CreateHoldingAccount(nil, account, funder, f.quoteMint)
	require.NoError(f.t, err)
	if balance > 0 {
		require.NoError(f.t, f.ledger.MintTo(nil, f.quoteMint, account, f.issuer, balance))
	}
	return funder
}

func (f *fixture) funderBalance(funder solana.PublicKey) uint64 {
	f.t.Helper()
	account, err := FunderAccount(funder, f.quoteMint)
	require.NoError(f.t, err)
	balance, err := f.ledger.Balance(nil, account)
	require.NoError(f.t, err)
	return balance
}

func (f *fixture) observers(keys ...solana.PublicKey) []rollup.Member {
	members := make([]rollup.Member, 0, len(keys))
	for _, k := range keys {
		members = append(members, rollup.Member{Pubkey: k, Capabilities: rollup.ObserverCapabilities()})
	}
	return members
}

// privateRound drives a campaign to an open private round
func (f *fixture) privateRound(mutate ...func(*InitializeParams)) solana.PublicKey {
	f.t.Helper()
	campaign := f.initialize(mutate...)
	_, err := f.engine.StartPublicRound(f.ctx, campaign, f.operator)
	require.NoError(f.t, err)
	_, err = f.engine.StartPrivateRound(f.ctx, campaign, f.operator)
	require.NoError(f.t, err)
	return campaign
}

// activePermission grants the operator and one more member and confirms it
func (f *fixture) activePermission(campaign solana.PublicKey) {
	f.t.Helper()
	_, err := f.engine.GrantPrivatePermission(f.ctx, campaign, f.operator, f.observers(f.operator, solana.NewWallet().PublicKey()))
	require.NoError(f.t, err)
	view, err := f.engine.GetCampaign(f.ctx, campaign, f.operator)
	require.NoError(f.t, err)
	require.NoError(f.t, f.sim.ConfirmPermission(solana.MustPublicKeyFromBase58(view.PrivateState.Address)))
	record, err := f.engine.RefreshPermissionStatus(f.ctx, campaign)
	require.NoError(f.t, err)
	require.Equal(f.t, models.PermissionStatusActive, record.Status)
}

// delegated drives a campaign to a confirmed delegation
func (f *fixture) delegated(mutate ...func(*InitializeParams)) solana.PublicKey {
	f.t.Helper()
	campaign := f.privateRound(mutate...)
	f.activePermission(campaign)
	record, err := f.engine.DelegatePrivateState(f.ctx, campaign, f.operator, f.validator)
	require.NoError(f.t, err)
	require.NoError(f.t, f.sim.ConfirmDelegation(solana.MustPublicKeyFromBase58(record.Account)))
	record, err = f.engine.RefreshDelegationStatus(f.ctx, campaign)
	require.NoError(f.t, err)
	require.Equal(f.t, models.DelegationStatusDelegated, record.Status)
	return campaign
}

func (f *fixture) fundPrivate(campaign solana.PublicKey, funder solana.PublicKey, amount uint64, salt []byte) (*Receipt, error) {
	return f.engine.FundPrivate(f.ctx, PrivateFunding{
		Campaign:  campaign,
		Funder:    funder,
		Amount:    amount,
		Salt:      salt,
		Validator: f.validator,
	})
}

func (f *fixture) privateState(campaign solana.PublicKey) models.PrivateState {
	f.t.Helper()
	var state models.PrivateState
	require.NoError(f.t, f.db.Where("campaign_address = ?", campaign.String()).First(&state).Error)
	return state
}

func randomSalt(t *testing.T) []byte {
	t.Helper()
	salt := make([]byte, SaltLength)
	_, err := rand.Read(salt)
	require.NoError(t, err)
	return salt
}
