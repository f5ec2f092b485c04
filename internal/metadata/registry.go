// Package metadata registers the descriptive fields of issued mints.
package metadata

import (
	"errors"
	"fmt"
	"strings"

	"kickstarter/internal/models"
	"kickstarter/pkg/solana/pda"

	"github.com/gagliardetto/solana-go"
	"gorm.io/gorm"
)

// Limits of the Metaplex data fields
const (
	MAX_NAME_LENGTH   = 32
	MAX_SYMBOL_LENGTH = 10
	MAX_URI_LENGTH    = 200
)

var (
	ErrAlreadyRegistered = errors.New("metadata already registered for mint")
	ErrNotFound          = errors.New("metadata not found")
	ErrInvalidMetadata   = errors.New("invalid metadata")
)

// Metadata are the fields written once when a mint is issued
type Metadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	URI         string `json:"uri"`
	Description string `json:"description"`
}

// Validate checks the field lengths accepted by the token metadata program
func (m Metadata) Validate() error {
	name := strings.TrimSpace(m.Name)
	symbol := strings.TrimSpace(m.Symbol)
	switch {
	case name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidMetadata)
	case symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidMetadata)
	case len(name) > MAX_NAME_LENGTH:
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidMetadata, MAX_NAME_LENGTH)
	case len(symbol) > MAX_SYMBOL_LENGTH:
		return fmt.Errorf("%w: symbol longer than %d bytes", ErrInvalidMetadata, MAX_SYMBOL_LENGTH)
	case len(m.URI) > MAX_URI_LENGTH:
		return fmt.Errorf("%w: uri longer than %d bytes", ErrInvalidMetadata, MAX_URI_LENGTH)
	}
	return nil
}

type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Register writes the metadata account of mint. A mint can be registered only
// once.
func (r *Registry) Register(tx *gorm.DB, mint solana.PublicKey, updateAuthority solana.PublicKey, md Metadata) (*models.TokenMetadata, error) {
	if err := md.Validate(); err != nil {
		return nil, err
	}
	db := tx
	if db == nil {
		db = r.db
	}

	metadataPDA, err := pda.GetMetadataPDA(mint)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := db.Model(&models.TokenMetadata{}).Where("mint = ?", mint.String()).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to look up metadata: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, mint)
	}

	record := &models.TokenMetadata{
		Address:         metadataPDA.Address.String(),
		Mint:            mint.String(),
		UpdateAuthority: updateAuthority.String(),
		Name:            strings.TrimSpace(md.Name),
		Symbol:          strings.TrimSpace(md.Symbol),
		URI:             md.URI,
		Description:     md.Description,
		IsMutable:       true,
	}
	if err := db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create metadata: %w", err)
	}
	return record, nil
}

// Get loads the metadata of mint
func (r *Registry) Get(mint solana.PublicKey) (*models.TokenMetadata, error) {
	var record models.TokenMetadata
	if err := r.db.Where("mint = ?", mint.String()).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, mint)
		}
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return &record, nil
}
