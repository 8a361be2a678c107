package models

import "time"

// Referral tracks one referred signup and whether it converted (the referred
// user became a paying client). Standing-query criteria aggregate over these
// rows for referral_count and conversion_rate.
type Referral struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ReferrerID string `gorm:"index;not null" json:"referrer_id"`       // ExternalUserID
	ReferredID string `gorm:"uniqueIndex;not null" json:"referred_id"` // ExternalUserID

	ReferralCodeUsed string     `json:"referral_code_used"`
	Converted        bool       `json:"converted" gorm:"default:false;index"`
	ConvertedAt      *time.Time `json:"converted_at,omitempty"`

	Timestamps
}
