package models

import (
	"gorm.io/gorm"
)

// User carries the gamification state plus denormalized activity counters.
// The counters are bumped inside the same transaction that creates the
// underlying row (visit, spot) so badge and quest evaluation can read them
// without scanning.
type User struct {
	gorm.Model
	Username     string `gorm:"size:64;uniqueIndex;not null"`
	XP           int    `gorm:"not null;default:0"`
	Level        int    `gorm:"not null;default:1"`
	Premium      bool   `gorm:"not null;default:false"`
	FriendCount  int    `gorm:"not null;default:0"`
	VisitCount   int    `gorm:"not null;default:0"`
	SpotsCreated int    `gorm:"not null;default:0"`
}
