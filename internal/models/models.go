package models

import "gorm.io/gorm"

// All lists every persisted model, in dependency order.
func All() []interface{} {
	return []interface{}{
		&TokenMint{},
		&TokenAccount{},
		&TokenMetadata{},
		&Campaign{},
		&PerformancePackage{},
		&PublicPosition{},
		&PrivateState{},
		&FunderPosition{},
		&PermissionRecord{},
		&PermissionMember{},
		&DelegationRecord{},
		&ConsumedSignature{},
	}
}

// AutoMigrate creates or updates the tables of every model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
