package models

import (
	"gorm.io/gorm"
)

// Coupon kinds. Reward coupons are redeemed for a code; shield and tax boost
// coupons are game items applied to a spot the buyer owns.
const (
	CouponKindReward   = "reward"
	CouponKindShield   = "shield"
	CouponKindTaxBoost = "tax_boost"
)

// Coupon is a stock-limited purchasable. Stock follows the same guarded
// decrement pattern as wallet balances so the last unit goes to exactly one
// buyer.
type Coupon struct {
	gorm.Model
	Name        string `gorm:"size:128;not null"`
	Description string
	Kind        string `gorm:"size:16;not null;default:reward"`
	PricePoints int64  `gorm:"not null"`
	Stock       int    `gorm:"not null;default:0"`
	Active      bool   `gorm:"not null"`
}

// CouponRedemption records a successful redemption and the issued code.
type CouponRedemption struct {
	gorm.Model
	UserID   uint   `gorm:"index;not null"`
	CouponID uint   `gorm:"index;not null"`
	Code     string `gorm:"size:64;uniqueIndex;not null"`
}
