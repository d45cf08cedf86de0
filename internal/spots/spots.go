// Package spots handles spot creation and lookup. The territorial state on
// a spot (owner, shield, boost) is written elsewhere: the contest scheduler
// and the item shop.
package spots

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/accrual"
	"github.com/wnt/turfpoints/internal/ledger"
	"github.com/wnt/turfpoints/internal/logger"
	"github.com/wnt/turfpoints/internal/models"
	"gorm.io/gorm"
)

// ErrSpotNotFound is returned when a spot lookup misses.
var ErrSpotNotFound = errors.New("spot not found")

// CreationXP is the XP awarded for creating a spot.
const CreationXP = 25

// Service creates and reads spots.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a new spot service
func NewService(db *gorm.DB, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.WithComponent(log, "spots"),
	}
}

// Create opens a new spot funded from the creator's wallet. The debit of
// the full budget, the spot row, the creator's counters and XP, and the
// ledger entry commit as one unit; if the creator cannot afford the budget
// the whole operation is rejected with ledger.ErrInsufficientFunds.
func (s *Service) Create(ctx context.Context, creatorID uint, name string, lat, lng float64, budget int64, ratePerMinute int) (*models.Spot, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("spot budget must be positive, got %d", budget)
	}
	if ratePerMinute <= 0 {
		return nil, fmt.Errorf("spot rate must be positive, got %d", ratePerMinute)
	}

	spot := models.Spot{
		CreatorID:         creatorID,
		Name:              name,
		Latitude:          lat,
		Longitude:         lng,
		TotalPointsBudget: budget,
		RemainingPoints:   budget,
		RatePerMinute:     ratePerMinute,
		Active:            true,
		Level:             1,
		TaxRatePercent:    models.BaseTaxRatePercent,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ledger.Debit(tx, creatorID, budget, models.TxKindSpend, "Created spot "+name); err != nil {
			return err
		}
		if err := tx.Create(&spot).Error; err != nil {
			return fmt.Errorf("failed to create spot: %w", err)
		}
		var creator models.User
		if err := tx.First(&creator, creatorID).Error; err != nil {
			return fmt.Errorf("failed to load creator: %w", err)
		}
		level, xp, _ := accrual.ApplyXP(creator.Level, creator.XP, CreationXP)
		if err := tx.Model(&models.User{}).Where("id = ?", creatorID).
			Updates(map[string]interface{}{
				"spots_created": gorm.Expr("spots_created + 1"),
				"level":         level,
				"xp":            xp,
			}).Error; err != nil {
			return fmt.Errorf("failed to update creator: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	spotLogger := logger.WithSpot(logger.WithUser(s.logger, creatorID), spot.ID)
	spotLogger.Info().
		Int64("budget", budget).
		Int("rate_per_minute", ratePerMinute).
		Msg("Spot created")
	return &spot, nil
}

// Get returns one spot by ID.
func (s *Service) Get(ctx context.Context, spotID uint) (*models.Spot, error) {
	var spot models.Spot
	err := s.db.WithContext(ctx).First(&spot, spotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSpotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load spot: %w", err)
	}
	return &spot, nil
}
