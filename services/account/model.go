package account

import "time"

// User is the wallet owner. TelegramID is the stable external identity and
// carries a unique index so first contact can never mint a duplicate row;
// ChatID is the conversation the notifier talks back to.
type User struct {
	ID         string    `gorm:"column:id;primaryKey"`
	TelegramID int64     `gorm:"column:telegram_id;uniqueIndex;not null"`
	ChatID     int64     `gorm:"column:chat_id;not null"`
	Balance    int64     `gorm:"column:balance;not null;default:0"`
	PromoCode  *string   `gorm:"column:promo_code;uniqueIndex"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (User) TableName() string { return "users" }
