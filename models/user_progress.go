package models

import (
	"time"

	"gorm.io/gorm"
)

// UserAchievementProgress tracks one user's progress toward one achievement.
// Created lazily on first evaluation; never deleted. Once IsUnlocked flips to
// true it never resets, and the XP award for the achievement happens exactly
// once (enforced by a conditional update at the storage layer).
type UserAchievementProgress struct {
	ID            string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID        string `gorm:"uniqueIndex:idx_user_achievement;not null" json:"user_id"` // ExternalUserID
	AchievementID string `gorm:"uniqueIndex:idx_user_achievement;not null" json:"achievement_id"`

	Progress   int        `json:"progress" gorm:"default:0"` // 0..100
	IsUnlocked bool       `json:"is_unlocked" gorm:"default:false;index"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
