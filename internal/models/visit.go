package models

import (
	"time"

	"gorm.io/gorm"
)

// Visit is one presence session at a spot. At most one visit per
// (user, spot) may be open (CheckOutTime IS NULL) at a time; the check-in
// path enforces this inside its transaction.
type Visit struct {
	gorm.Model
	SpotID          uint      `gorm:"index;not null"`
	UserID          uint      `gorm:"index;not null"`
	CheckInTime     time.Time `gorm:"not null"`
	LastHeartbeatAt time.Time `gorm:"index;not null"`
	CheckOutTime    *time.Time `gorm:"index"`

	// EarnedPoints is the gross cumulative earn for this session and
	// TaxPaid the cumulative owner cut withheld from it. Tax is collected
	// as a running difference against EarnedPoints, so both must advance
	// together.
	EarnedPoints int64 `gorm:"not null;default:0"`
	TaxPaid      int64 `gorm:"not null;default:0"`
}

// Open reports whether the visit is still receiving heartbeats.
func (v *Visit) Open() bool {
	return v.CheckOutTime == nil
}
