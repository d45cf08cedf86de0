// Package shop spends points: coupon redemptions and the game items
// (shield, tax boost) that owners apply to their spots. Stock and balance
// both use guarded decrements, so the last unit of anything resolves to
// exactly one winner, and the grant always commits together with the
// payment.
package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/ledger"
	"github.com/wnt/turfpoints/internal/logger"
	"github.com/wnt/turfpoints/internal/models"
	"github.com/wnt/turfpoints/internal/spots"
	"gorm.io/gorm"
)

var (
	// ErrCouponNotFound is returned when the coupon does not exist.
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrCouponInactive is returned when the coupon is disabled.
	ErrCouponInactive = errors.New("coupon is not active")

	// ErrOutOfStock is returned when the stock guard fails, including when
	// a concurrent redemption took the last unit.
	ErrOutOfStock = errors.New("coupon out of stock")

	// ErrNotOwner is returned when a game item targets a spot the buyer
	// does not own.
	ErrNotOwner = errors.New("not the spot owner")

	// ErrWrongCouponKind is returned when a reward coupon is passed to the
	// game item path or vice versa.
	ErrWrongCouponKind = errors.New("wrong coupon kind for this operation")
)

// ItemEffectDuration is how long a shield or tax boost lasts.
const ItemEffectDuration = 24 * time.Hour

// Service sells coupons and game items.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a new shop service
func NewService(db *gorm.DB, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.WithComponent(log, "shop"),
	}
}

// loadCoupon fetches a coupon and maps missing/inactive to business errors.
func (s *Service) loadCoupon(ctx context.Context, couponID uint) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.WithContext(ctx).First(&coupon, couponID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	if !coupon.Active {
		return nil, ErrCouponInactive
	}
	return &coupon, nil
}

// RedeemCoupon exchanges points for one unit of a reward coupon and returns
// the issued code. Stock decrement, debit, ledger entry and redemption row
// are one transaction: if any guard fails nothing is written.
func (s *Service) RedeemCoupon(ctx context.Context, userID, couponID uint) (string, error) {
	coupon, err := s.loadCoupon(ctx, couponID)
	if err != nil {
		return "", err
	}
	if coupon.Kind != models.CouponKindReward {
		return "", ErrWrongCouponKind
	}

	code := uuid.NewString()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Coupon{}).
			Where("id = ? AND stock > 0", couponID).
			Update("stock", gorm.Expr("stock - 1"))
		if res.Error != nil {
			return fmt.Errorf("failed to decrement stock: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrOutOfStock
		}

		if err := ledger.Debit(tx, userID, coupon.PricePoints, models.TxKindSpend, "Redeemed coupon: "+coupon.Name); err != nil {
			return err
		}

		redemption := models.CouponRedemption{UserID: userID, CouponID: couponID, Code: code}
		if err := tx.Create(&redemption).Error; err != nil {
			return fmt.Errorf("failed to record redemption: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	userLogger := logger.WithUser(s.logger, userID)
	userLogger.Info().
		Uint("coupon_id", couponID).
		Int64("price", coupon.PricePoints).
		Msg("Coupon redeemed")
	return code, nil
}

// BuyGameItem applies a shield or tax boost coupon to a spot the buyer
// owns. The effect lasts ItemEffectDuration from purchase.
func (s *Service) BuyGameItem(ctx context.Context, userID, couponID, spotID uint) error {
	coupon, err := s.loadCoupon(ctx, couponID)
	if err != nil {
		return err
	}

	var column string
	switch coupon.Kind {
	case models.CouponKindShield:
		column = "shield_expires_at"
	case models.CouponKindTaxBoost:
		column = "tax_boost_expires_at"
	default:
		return ErrWrongCouponKind
	}

	expiresAt := time.Now().UTC().Add(ItemEffectDuration)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var spot models.Spot
		err := tx.Where("id = ? AND active = ?", spotID, true).First(&spot).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return spots.ErrSpotNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load spot: %w", err)
		}
		if spot.OwnerID == nil || *spot.OwnerID != userID {
			return ErrNotOwner
		}

		if err := ledger.Debit(tx, userID, coupon.PricePoints, models.TxKindSpend, coupon.Name+" on "+spot.Name); err != nil {
			return err
		}

		// Guarded on ownership so losing the spot mid-purchase rolls the
		// payment back too.
		res := tx.Model(&models.Spot{}).
			Where("id = ? AND owner_id = ?", spotID, userID).
			Update(column, expiresAt)
		if res.Error != nil {
			return fmt.Errorf("failed to apply item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotOwner
		}
		return nil
	})
	if err != nil {
		return err
	}

	spotLogger := logger.WithSpot(logger.WithUser(s.logger, userID), spotID)
	spotLogger.Info().
		Str("item", coupon.Kind).
		Time("expires_at", expiresAt).
		Msg("Game item applied")
	return nil
}
