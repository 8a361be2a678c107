package models

import "time"

// TaxReturn records a filing event raised by the platform. Client counts,
// per-day filing counters and filing streaks aggregate over these rows.
type TaxReturn struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID   string `gorm:"index;not null" json:"user_id"` // preparer's ExternalUserID
	ClientID string `gorm:"index;not null" json:"client_id"`

	// FilingTimeMs is preparation duration in milliseconds, when the filing
	// service reports one.
	FilingTimeMs       *int64    `json:"filing_time_ms,omitempty"`
	DaysBeforeDeadline *int      `json:"days_before_deadline,omitempty"`
	FiledAt            time.Time `gorm:"index;not null" json:"filed_at"`

	Timestamps
}
