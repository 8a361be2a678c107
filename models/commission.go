package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Commission records a single earned commission amount. The earnings
// criterion sums these per user.
type Commission struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"` // ExternalUserID

	Amount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Source   string          `gorm:"type:varchar(64)" json:"source"` // e.g. "referral", "storefront"
	EarnedAt time.Time       `gorm:"index;not null" json:"earned_at"`

	Timestamps
}
