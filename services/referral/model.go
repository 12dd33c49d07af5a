package referral

import "time"

// ReferralActivation links a referred user to a code owner, once per
// activator ever. Future credited top-ups by the activator pay the owner.
type ReferralActivation struct {
	ID          string    `gorm:"column:id;primaryKey"`
	CodeOwnerID string    `gorm:"column:code_owner_id;index;not null"`
	ActivatorID string    `gorm:"column:activator_id;uniqueIndex;not null"`
	Code        string    `gorm:"column:code;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (ReferralActivation) TableName() string { return "referral_activations" }

// ReferralBonus records one bonus payout per credited top-up. The composite
// unique index mirrors the top-up credit guard: re-emitted credit events hit
// the constraint and become no-ops instead of duplicate payouts.
type ReferralBonus struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TopUpID     string    `gorm:"column:topup_id;uniqueIndex:idx_bonus_once;not null"`
	CodeOwnerID string    `gorm:"column:code_owner_id;uniqueIndex:idx_bonus_once;not null"`
	ActivatorID string    `gorm:"column:activator_id;uniqueIndex:idx_bonus_once;not null"`
	Amount      int64     `gorm:"column:amount;not null"`
	BonusAmount int64     `gorm:"column:bonus_amount;not null"`
	Credited    bool      `gorm:"column:credited;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (ReferralBonus) TableName() string { return "referral_bonuses" }
