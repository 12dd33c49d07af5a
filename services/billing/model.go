package billing

import (
	"time"

	"gorm.io/datatypes"
)

type TopUpStatus string

const (
	StatusPending TopUpStatus = "PENDING"
	StatusSuccess TopUpStatus = "SUCCESS"
	StatusFailed  TopUpStatus = "FAILED"
	StatusTimeout TopUpStatus = "TIMEOUT"
)

// TopUp is one wallet deposit attempt. OrderID is the external idempotency
// key handed to the payment provider; Credited is the at-most-once guard:
// it may only flip false->true together with status = SUCCESS, and the
// wallet increment rides on that same conditional write.
type TopUp struct {
	ID         string         `gorm:"column:id;primaryKey"`
	UserID     string         `gorm:"column:user_id;index;not null"`
	Amount     int64          `gorm:"column:amount;not null"`
	Status     TopUpStatus    `gorm:"column:status;index;not null"`
	OrderID    string         `gorm:"column:order_id;uniqueIndex;not null"`
	BillID     *string        `gorm:"column:bill_id"`
	PayURL     string         `gorm:"column:pay_url"`
	Credited   bool           `gorm:"column:credited;not null;default:false"`
	CreditedAt *time.Time     `gorm:"column:credited_at"`
	Metadata   datatypes.JSON `gorm:"column:metadata"`
	CreatedAt  time.Time      `gorm:"column:created_at;index"`
	UpdatedAt  time.Time      `gorm:"column:updated_at"`
}

func (TopUp) TableName() string { return "topups" }
