package middleware

import (
	"context"
	"fmt"
	"time"

	"kickstarter/internal/models"

	"github.com/gagliardetto/solana-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SignatureLedger is the SignatureStore backed by the consumed_signature
// table. The unique signature index makes Consume safe across processes.
type SignatureLedger struct {
	db *gorm.DB
}

func NewSignatureLedger(db *gorm.DB) *SignatureLedger {
	return &SignatureLedger{db: db}
}

func (l *SignatureLedger) Consume(ctx context.Context, signer solana.PublicKey, signature solana.Signature, signedAt time.Time) error {
	result := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ConsumedSignature{
		Signature: signature.String(),
		Signer:    signer.String(),
		SignedAt:  signedAt,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to record signature: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrReplayed, signature)
	}
	return nil
}

// Prune forgets signatures signed before the given time. Requests that old
// are refused by their timestamp anyway.
func (l *SignatureLedger) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := l.db.WithContext(ctx).Where("signed_at < ?", before).Delete(&models.ConsumedSignature{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune signatures: %w", result.Error)
	}
	return result.RowsAffected, nil
}
