package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RoleTag scopes an achievement to a class of platform users.
type RoleTag string

const (
	RolePreparer  RoleTag = "preparer"
	RoleAffiliate RoleTag = "affiliate"
	RoleClient    RoleTag = "client"
	RoleAdmin     RoleTag = "admin"
)

// RoleTags is stored as a jsonb array on the definition row.
type RoleTags []RoleTag

func (r *RoleTags) Scan(value any) error {
	if value == nil {
		*r = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported target_roles column type %T", value)
	}
}

func (r RoleTags) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Contains reports whether the role is in the set.
func (r RoleTags) Contains(role RoleTag) bool {
	for _, t := range r {
		if t == role {
			return true
		}
	}
	return false
}

// AchievementDefinition is a catalog row: a named, points-bearing goal with a
// role scope and a typed criteria spec. The engine treats these as immutable
// configuration; they are authored by the admin console.
type AchievementDefinition struct {
	ID          string       `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Slug        string       `gorm:"uniqueIndex;not null" json:"slug"` // stable external key, e.g. "first-fifty-clients"
	Title       string       `gorm:"not null" json:"title"`
	Description string       `json:"description"`
	IconURL     string       `gorm:"type:text" json:"icon_url"`
	Points      int64        `gorm:"not null;default:0" json:"points"`
	TargetRoles RoleTags     `gorm:"type:jsonb" json:"target_roles"`
	Criteria    CriteriaSpec `gorm:"type:jsonb" json:"criteria"`
	IsActive    bool         `gorm:"default:true;index" json:"is_active"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// AppliesTo reports whether this achievement is visible to the given role.
func (d *AchievementDefinition) AppliesTo(role RoleTag) bool {
	return d.TargetRoles.Contains(role)
}

// Validate enforces the catalog contract: non-empty identity, non-negative
// points, at least one target role, and valid criteria parameters. Malformed
// definitions are rejected here rather than silently skipped at evaluation.
func (d *AchievementDefinition) Validate() error {
	if d.Slug == "" {
		return errors.New("slug is required")
	}
	if d.Title == "" {
		return errors.New("title is required")
	}
	if d.Points < 0 {
		return fmt.Errorf("points must be non-negative, got %d", d.Points)
	}
	if len(d.TargetRoles) == 0 {
		return errors.New("at least one target role is required")
	}
	if err := d.Criteria.Validate(); err != nil {
		return fmt.Errorf("criteria %q: %w", d.Criteria.Type(), err)
	}
	return nil
}
