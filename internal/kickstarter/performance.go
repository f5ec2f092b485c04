package kickstarter

import (
	"context"
	"errors"
	"fmt"

	"kickstarter/internal/models"

	"github.com/gagliardetto/solana-go"
	"gorm.io/gorm"
)

// PerformancePackageParams reserves Allocation base tokens of the performance
// pool, unlocked once the raise reaches Multiplier times the minimum raise.
type PerformancePackageParams struct {
	Index      uint8
	Multiplier uint8
	Allocation uint64
}

// ConfigurePerformancePackage configures one package slot before the public
// round starts. A slot is configured once and the allocations never exceed
// the performance pool.
func (e *Engine) ConfigurePerformancePackage(ctx context.Context, campaignAddr solana.PublicKey, operator solana.PublicKey, params PerformancePackageParams) (*models.PerformancePackage, error) {
	if params.Allocation == 0 || params.Multiplier == 0 {
		return nil, fmt.Errorf("%w: allocation and multiplier must be positive", ErrInvalidParameters)
	}
	if params.Index >= models.MaxPerformancePackages {
		return nil, fmt.Errorf("%w: package index %d, at most %d packages", ErrInvalidParameters, params.Index, models.MaxPerformancePackages)
	}

	var pkg *models.PerformancePackage
	_, err := e.transition(ctx, campaignAddr, operator, func(u *unit, c *models.Campaign) error {
		if err := requireStatus(c, models.CampaignStatusInitialized); err != nil {
			return err
		}

		var existing models.PerformancePackage
		err := u.tx.Where("campaign_address = ? AND package_index = ?", c.Address, params.Index).First(&existing).Error
		switch {
		case err == nil:
			return fmt.Errorf("%w: package %d of %s", ErrPackageConfigured, params.Index, c.Address)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to load performance package: %w", err)
		}

		configured := c.ConfiguredPerformance + params.Allocation
		if configured < c.ConfiguredPerformance || configured > c.PerformancePool {
			return fmt.Errorf("%w: %d configured, %d requested, pool %d", ErrPerformancePoolExceeded, c.ConfiguredPerformance, params.Allocation, c.PerformancePool)
		}

		pkg = &models.PerformancePackage{
			CampaignAddress: c.Address,
			PackageIndex:    params.Index,
			Multiplier:      params.Multiplier,
			Allocation:      params.Allocation,
		}
		if err := u.tx.Create(pkg).Error; err != nil {
			return fmt.Errorf("failed to save performance package: %w", err)
		}
		c.ConfiguredPerformance = configured

		u.emit(EventTypePerformancePackageConfigured, c, map[string]string{
			"index":      fmt.Sprintf("%d", params.Index),
			"multiplier": fmt.Sprintf("%d", params.Multiplier),
			"allocation": formatAmount(params.Allocation),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pkg, nil
}

// ListPerformancePackages returns the configured packages by index
func (e *Engine) ListPerformancePackages(ctx context.Context, campaignAddr solana.PublicKey) ([]models.PerformancePackage, error) {
	packages := make([]models.PerformancePackage, 0, models.MaxPerformancePackages)
	err := e.read(ctx, func(u *unit) error {
		campaign, err := u.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		return u.tx.Where("campaign_address = ?", campaign.Address).Order("package_index asc").Find(&packages).Error
	})
	if err != nil {
		return nil, err
	}
	return packages, nil
}
