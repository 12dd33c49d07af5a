package subscription

import "time"

// Subscription is a time-boxed access grant. EndDate is nil only for the
// unbounded free tier. The two notification flags make each expiry reminder
// fire at most once per period; extension resets them.
type Subscription struct {
	ID               string     `gorm:"column:id;primaryKey"`
	UserID           string     `gorm:"column:user_id;index;not null"`
	Type             string     `gorm:"column:type;not null"`
	StartDate        time.Time  `gorm:"column:start_date;not null"`
	EndDate          *time.Time `gorm:"column:end_date;index"`
	SubscriptionURL  *string    `gorm:"column:subscription_url"`
	SubscriptionURL2 *string    `gorm:"column:subscription_url2"`
	Notified3Days    bool       `gorm:"column:notified_3days;not null;default:false"`
	Notified1Day     bool       `gorm:"column:notified_1day;not null;default:false"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }
