package promo

import "time"

// PromoKind selects what an admin promo grants on activation.
type PromoKind string

const (
	KindBalance PromoKind = "BALANCE"
	KindDays    PromoKind = "DAYS"
)

type AdminPromo struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"uniqueIndex" json:"code"`
	Kind      PromoKind `json:"kind"`
	Amount    int64     `json:"amount"`
	Days      int       `json:"days"`
	Reusable  bool      `json:"reusable"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AdminPromo) TableName() string {
	return "admin_promos"
}

// AdminPromoActivation enforces one activation per user per promo through
// its composite unique index.
type AdminPromoActivation struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	PromoID   string    `gorm:"uniqueIndex:idx_promo_once" json:"promo_id"`
	UserID    string    `gorm:"uniqueIndex:idx_promo_once" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (AdminPromoActivation) TableName() string {
	return "admin_promo_activations"
}
