package metadata

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"kickstarter/internal/models"
	"kickstarter/pkg/solana/pda"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return NewRegistry(db)
}

func TestRegistry(t *testing.T) {
	registry := setupRegistry(t)
	mint := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()

	md := Metadata{Name: "Garden Token", Symbol: "GRDN", URI: "https://example.org/grdn.json"}
	record, err := registry.Register(nil, mint, authority, md)
	require.NoError(t, err)

	expected, err := pda.GetMetadataPDA(mint)
	require.NoError(t, err)
	assert.Equal(t, expected.Address.String(), record.Address)
	assert.Equal(t, authority.String(), record.UpdateAuthority)

	t.Run("Only Once", func(t *testing.T) {
		_, err := registry.Register(nil, mint, authority, md)
		assert.True(t, errors.Is(err, ErrAlreadyRegistered))
	})

	t.Run("Get", func(t *testing.T) {
		got, err := registry.Get(mint)
		require.NoError(t, err)
		assert.Equal(t, "GRDN", got.Symbol)

		_, err = registry.Get(solana.NewWallet().PublicKey())
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestMetadata_Validate(t *testing.T) {
	tests := []struct {
		name string
		md   Metadata
		ok   bool
	}{
		{"valid", Metadata{Name: "A", Symbol: "A"}, true},
		{"missing name", Metadata{Symbol: "A"}, false},
		{"blank symbol", Metadata{Name: "A", Symbol: "  "}, false},
		{"long name", Metadata{Name: strings.Repeat("n", MAX_NAME_LENGTH+1), Symbol: "A"}, false},
		{"long symbol", Metadata{Name: "A", Symbol: strings.Repeat("s", MAX_SYMBOL_LENGTH+1)}, false},
		{"long uri", Metadata{Name: "A", Symbol: "A", URI: strings.Repeat("u", MAX_URI_LENGTH+1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.md.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidMetadata))
			}
		})
	}
}
