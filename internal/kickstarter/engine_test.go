package kickstarter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUnits(t *testing.T) {
	f := newFixture(t)
	campaign := f.initialize()

	t.Run("Read Runs In One Transaction", func(t *testing.T) {
		err := f.engine.read(f.ctx, func(u *unit) error {
			_, inTx := u.tx.Statement.ConnPool.(gorm.TxCommitter)
			assert.True(t, inTx)
			assert.True(t, u.readOnly)
			assert.NotContains(t, u.forUpdate().Statement.Clauses, "FOR")

			c, err := u.loadCampaign(campaign)
			require.NoError(t, err)
			_, err = u.loadPrivateState(c)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("Writes Lock Rows", func(t *testing.T) {
		err := f.engine.atomically(f.ctx, func(u *unit) error {
			_, inTx := u.tx.Statement.ConnPool.(gorm.TxCommitter)
			assert.True(t, inTx)
			assert.False(t, u.readOnly)
			assert.Contains(t, u.forUpdate().Statement.Clauses, "FOR")
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Read Errors Surface", func(t *testing.T) {
		err := f.engine.read(f.ctx, func(u *unit) error {
			_, err := u.loadCampaign(f.operator)
			return err
		})
		assert.ErrorIs(t, err, ErrCampaignNotFound)
	})
}
