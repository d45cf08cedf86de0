package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseTaxRatePercent is the owner's cut of visitor earnings. It doubles
// while a tax boost is active.
const BaseTaxRatePercent = 5

// Spot is a claimable geofenced location. Ownership, shield and boost fields
// mutate only through the contest scheduler and the item shop.
type Spot struct {
	gorm.Model
	CreatorID         uint    `gorm:"index;not null"`
	Name              string  `gorm:"size:128;not null"`
	Latitude          float64 `gorm:"not null"`
	Longitude         float64 `gorm:"not null"`
	TotalPointsBudget int64   `gorm:"not null"`
	RemainingPoints   int64   `gorm:"not null"`
	RatePerMinute     int     `gorm:"not null"`
	Active            bool    `gorm:"not null;index"`
	Level             int     `gorm:"not null;default:1"`
	TotalActivity     int64   `gorm:"not null;default:0"`
	OwnerID           *uint   `gorm:"index"`
	LastOwnerChangeAt *time.Time
	ShieldExpiresAt   *time.Time
	TaxBoostExpiresAt *time.Time
	TaxRatePercent    int `gorm:"not null;default:5"`
}

// Shielded reports whether the spot is immune to ownership transfer at t.
func (s *Spot) Shielded(t time.Time) bool {
	return s.ShieldExpiresAt != nil && s.ShieldExpiresAt.After(t)
}

// EffectiveTaxRatePercent returns the owner's cut, doubled while a tax boost
// is running.
func (s *Spot) EffectiveTaxRatePercent(t time.Time) int {
	rate := s.TaxRatePercent
	if rate == 0 {
		rate = BaseTaxRatePercent
	}
	if s.TaxBoostExpiresAt != nil && s.TaxBoostExpiresAt.After(t) {
		rate *= 2
	}
	return rate
}
