package custody

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"kickstarter/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return NewLedger(db), db
}

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func TestLedger_Mint(t *testing.T) {
	ledger, _ := setupLedger(t)
	mint := newKey()
	operator := newKey()
	campaign := newKey()

	_, err := ledger.CreateMint(nil, mint, operator, 6)
	require.NoError(t, err)

	_, err = ledger.CreateMint(nil, mint, operator, 6)
	assert.True(t, errors.Is(err, ErrMintExists))

	t.Run("Authority Transfer", func(t *testing.T) {
		err := ledger.SetMintAuthority(nil, mint, campaign, operator)
		assert.True(t, errors.Is(err, ErrOwnerMismatch))

		require.NoError(t, ledger.SetMintAuthority(nil, mint, operator, campaign))
		record, err := ledger.GetMint(nil, mint)
		require.NoError(t, err)
		assert.Equal(t, campaign.String(), record.MintAuthority)
		assert.Equal(t, campaign.String(), record.FreezeAuthority)
	})

	t.Run("Mint To Requires Authority", func(t *testing.T) {
		holder := newKey()
		_, err := ledger.CreateHoldingAccount(nil, holder, campaign, mint)
		require.NoError(t, err)

		err = ledger.MintTo(nil, mint, holder, operator, 10)
		assert.True(t, errors.Is(err, ErrOwnerMismatch))

		require.NoError(t, ledger.MintTo(nil, mint, holder, campaign, 10))
		balance, err := ledger.Balance(nil, holder)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), balance)

		record, err := ledger.GetMint(nil, mint)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), record.Supply)
	})

	t.Run("Supply Overflow", func(t *testing.T) {
		holder := newKey()
		_, err := ledger.CreateHoldingAccount(nil, holder, campaign, mint)
		require.NoError(t, err)
		require.NoError(t, ledger.MintTo(nil, mint, holder, campaign, MaxAmount-10))

		err = ledger.MintTo(nil, mint, holder, campaign, 1)
		assert.True(t, errors.Is(err, ErrOverflow))
		err = ledger.MintTo(nil, mint, holder, campaign, math.MaxUint64)
		assert.True(t, errors.Is(err, ErrOverflow))

		balance, err := ledger.Balance(nil, holder)
		require.NoError(t, err)
		assert.Equal(t, uint64(MaxAmount-10), balance)
		record, err := ledger.GetMint(nil, mint)
		require.NoError(t, err)
		assert.Equal(t, uint64(MaxAmount), record.Supply)
	})

	t.Run("Unknown Mint", func(t *testing.T) {
		_, err := ledger.GetMint(nil, newKey())
		assert.True(t, errors.Is(err, ErrMintNotFound))
	})
}

func TestLedger_Transfer(t *testing.T) {
	ledger, db := setupLedger(t)
	mint := newKey()
	authority := newKey()
	alice, bob := newKey(), newKey()
	aliceAccount, bobAccount := newKey(), newKey()

	_, err := ledger.CreateMint(nil, mint, authority, 6)
	require.NoError(t, err)
	_, err = ledger.CreateHoldingAccount(nil, aliceAccount, alice, mint)
	require.NoError(t, err)
	_, err = ledger.CreateHoldingAccount(nil, bobAccount, bob, mint)
	require.NoError(t, err)
	require.NoError(t, ledger.MintTo(nil, mint, aliceAccount, authority, 100))

	t.Run("Moves Balance", func(t *testing.T) {
		require.NoError(t, ledger.Transfer(nil, aliceAccount, bobAccount, alice, 40))
		a, _ := ledger.Balance(nil, aliceAccount)
		b, _ := ledger.Balance(nil, bobAccount)
		assert.Equal(t, uint64(60), a)
		assert.Equal(t, uint64(40), b)
	})

	t.Run("Owner Must Sign", func(t *testing.T) {
		err := ledger.Transfer(nil, aliceAccount, bobAccount, bob, 1)
		assert.True(t, errors.Is(err, ErrOwnerMismatch))
	})

	t.Run("Insufficient Funds", func(t *testing.T) {
		err := ledger.Transfer(nil, aliceAccount, bobAccount, alice, 61)
		assert.True(t, errors.Is(err, ErrInsufficientFunds))
		a, _ := ledger.Balance(nil, aliceAccount)
		assert.Equal(t, uint64(60), a)
	})

	t.Run("Mint Mismatch", func(t *testing.T) {
		otherMint := newKey()
		otherAccount := newKey()
		_, err := ledger.CreateMint(nil, otherMint, authority, 9)
		require.NoError(t, err)
		_, err = ledger.CreateHoldingAccount(nil, otherAccount, bob, otherMint)
		require.NoError(t, err)

		err = ledger.Transfer(nil, aliceAccount, otherAccount, alice, 1)
		assert.True(t, errors.Is(err, ErrMintMismatch))
	})

	t.Run("Balance Overflow", func(t *testing.T) {
		full := newKey()
		_, err := ledger.CreateHoldingAccount(nil, full, bob, mint)
		require.NoError(t, err)
		require.NoError(t, db.Model(&models.TokenAccount{}).
			Where("account_address = ?", full.String()).
			Update("balance", uint64(MaxAmount)).Error)

		err = ledger.Transfer(nil, aliceAccount, full, alice, 1)
		assert.True(t, errors.Is(err, ErrOverflow))
		a, _ := ledger.Balance(nil, aliceAccount)
		f, _ := ledger.Balance(nil, full)
		assert.Equal(t, uint64(60), a)
		assert.Equal(t, uint64(MaxAmount), f)
	})

	t.Run("Rolls Back With Transaction", func(t *testing.T) {
		rollback := errors.New("rollback")
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := ledger.Transfer(tx, aliceAccount, bobAccount, alice, 10); err != nil {
				return err
			}
			return rollback
		})
		require.ErrorIs(t, err, rollback)
		a, _ := ledger.Balance(nil, aliceAccount)
		assert.Equal(t, uint64(60), a)
	})

	t.Run("Existing Account Is Reused", func(t *testing.T) {
		again, err := ledger.CreateHoldingAccount(nil, aliceAccount, alice, mint)
		require.NoError(t, err)
		assert.Equal(t, uint64(60), again.Balance)

		_, err = ledger.CreateHoldingAccount(nil, aliceAccount, bob, mint)
		assert.True(t, errors.Is(err, ErrAccountExists))
	})
}
