package models

import (
	"time"

	"gorm.io/gorm"
)

// WeeklySpotPoints accumulates how many points each visitor earned at a spot
// during one contest week. The (spot, week, user) key is unique; the
// heartbeat path upserts into it and the contest scheduler reads the weekly
// leader from it. Rollover happens naturally as WeekStart advances.
type WeeklySpotPoints struct {
	gorm.Model
	SpotID    uint      `gorm:"not null;uniqueIndex:idx_weekly_spot_week_user"`
	WeekStart time.Time `gorm:"not null;uniqueIndex:idx_weekly_spot_week_user"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_weekly_spot_week_user"`
	Points    int64     `gorm:"not null;default:0"`
}
