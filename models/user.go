package models

import (
	"time"

	"gorm.io/gorm"
)

// TaxUser is a local snapshot of user data needed for achievement evaluation.
// Owned and managed solely by the engagement service. Populated via sync
// worker from the profile service's user table; the engine never writes it.
type TaxUser struct {
	ID             string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"` // the profile service's UUID
	Username       string  `gorm:"index;not null" json:"username"`
	Email          string  `json:"email,omitempty"`
	Role           RoleTag `gorm:"type:varchar(32);index;not null;default:'client'" json:"role"`

	// Profile fields consulted by profile_complete criteria
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Company    *string `json:"company,omitempty"`
	Bio        *string `json:"bio,omitempty"`
	PictureURL *string `json:"picture_url,omitempty"`

	// SignupAt is the account creation time at the profile service, not the
	// time this snapshot row was created.
	SignupAt  time.Time `json:"signup_at"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ProfileField returns the named profile field's value and whether the name
// is recognized. Unrecognized names count as empty, so a catalog typo shows
// up as permanently-incomplete progress instead of a runtime failure.
func (u *TaxUser) ProfileField(name string) (string, bool) {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	switch name {
	case "username":
		return u.Username, true
	case "email":
		return u.Email, true
	case "first_name":
		return deref(u.FirstName), true
	case "last_name":
		return deref(u.LastName), true
	case "phone":
		return deref(u.Phone), true
	case "company":
		return deref(u.Company), true
	case "bio":
		return deref(u.Bio), true
	case "picture_url":
		return deref(u.PictureURL), true
	default:
		return "", false
	}
}

// RemoteUser mirrors the JSON shape of the profile service's sync endpoint
// (read-only). Used by the sync worker to refresh TaxUser snapshots.
type RemoteUser struct {
	ID         string     `json:"id"`
	ExternalID string     `json:"external_id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	FirstName  *string    `json:"first_name,omitempty"`
	LastName   *string    `json:"last_name,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	Company    *string    `json:"company,omitempty"`
	Bio        *string    `json:"bio,omitempty"`
	PictureURL *string    `json:"profile_picture_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}
