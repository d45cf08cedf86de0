package models

import (
	"gorm.io/gorm"
)

// Badge criteria types
const (
	BadgeCriteriaVisits       = "visits"
	BadgeCriteriaSpotsCreated = "spots_created"
	BadgeCriteriaLevel        = "level"
	BadgeCriteriaPointsEarned = "points_earned"
)

// Badge is a one-time unlock awarded when a user stat crosses CriteriaValue.
type Badge struct {
	gorm.Model
	Name          string `gorm:"size:128;uniqueIndex;not null"`
	Description   string
	CriteriaType  string `gorm:"size:32;not null"`
	CriteriaValue int64  `gorm:"not null"`
	Active        bool   `gorm:"not null"`
}

// UserBadge records an unlock. The unique key makes awarding idempotent.
type UserBadge struct {
	gorm.Model
	UserID  uint `gorm:"not null;uniqueIndex:idx_user_badge"`
	BadgeID uint `gorm:"not null;uniqueIndex:idx_user_badge"`
}
