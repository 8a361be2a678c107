package models

import "time"

// UserStats tracks gamified progression for each user (denormalized for
// performance). Created lazily on first XP award or first login. TotalXP only
// grows; CurrentLevelXP is always < NextLevelXP after an award settles.
type UserStats struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // ExternalUserID

	// Core progression
	TotalXP        int64 `json:"total_xp" gorm:"default:0"`
	Level          int   `json:"level" gorm:"default:1"`
	CurrentLevelXP int64 `json:"current_level_xp" gorm:"default:0"`
	NextLevelXP    int64 `json:"next_level_xp" gorm:"default:100"`

	// Activity accumulators consulted by standing-query criteria
	DocumentsProcessed int64   `json:"documents_processed" gorm:"default:0"`
	LinksCreated       int64   `json:"links_created" gorm:"default:0"`
	MessagesSent       int64   `json:"messages_sent" gorm:"default:0"`
	MaterialsShared    int64   `json:"materials_shared" gorm:"default:0"`
	ClientSatisfaction float64 `json:"client_satisfaction" gorm:"default:0"` // 0..5, latest CRM rating

	// Daily login streak
	LoginStreak        int        `json:"login_streak" gorm:"default:0"`
	LongestLoginStreak int        `json:"longest_login_streak" gorm:"default:0"`
	LastLoginDate      *time.Time `json:"last_login_date,omitempty"`

	// Milestones
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// NewUserStats seeds a fresh stats row: level 1 with an empty 100 XP bucket.
func NewUserStats(userID string) *UserStats {
	return &UserStats{
		UserID:      userID,
		Level:       1,
		NextLevelXP: 100,
	}
}
