// Package badges derives one-time badge unlocks from a user's aggregated
// stats. Evaluation is safe to call after any earning event: already-earned
// badges are filtered out up front and the unique (user, badge) key catches
// the rest.
package badges

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/logger"
	"github.com/wnt/turfpoints/internal/models"
	"github.com/wnt/turfpoints/internal/notify"
	"github.com/wnt/turfpoints/internal/utils"
	"gorm.io/gorm"
)

// Service evaluates badge unlocks.
type Service struct {
	db       *gorm.DB
	notifier notify.Notifier
	logger   zerolog.Logger
}

// NewService creates a new badge service
func NewService(db *gorm.DB, notifier notify.Notifier, log zerolog.Logger) *Service {
	return &Service{
		db:       db,
		notifier: notifier,
		logger:   logger.WithComponent(log, "badges"),
	}
}

// CheckUnlocks evaluates every active badge the user has not earned yet
// against current stats and records the ones now satisfied. Returns the
// newly unlocked badges.
func (s *Service) CheckUnlocks(ctx context.Context, userID uint) ([]models.Badge, error) {
	var definitions []models.Badge
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&definitions).Error; err != nil {
		return nil, fmt.Errorf("failed to load badge definitions: %w", err)
	}
	if len(definitions) == 0 {
		return nil, nil
	}

	var earned []models.UserBadge
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&earned).Error; err != nil {
		return nil, fmt.Errorf("failed to load earned badges: %w", err)
	}
	earnedIDs := make(map[uint]bool, len(earned))
	for _, ub := range earned {
		earnedIDs[ub.BadgeID] = true
	}

	candidates := utils.Filter(definitions, func(b models.Badge) bool {
		return !earnedIDs[b.ID]
	})
	if len(candidates) == 0 {
		return nil, nil
	}

	stats, err := s.loadStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	var unlocked []models.Badge
	for _, badge := range candidates {
		value, ok := stats[badge.CriteriaType]
		if !ok {
			s.logger.Warn().Str("criteria_type", badge.CriteriaType).
				Uint("badge_id", badge.ID).Msg("Unknown badge criteria type")
			continue
		}
		if value < badge.CriteriaValue {
			continue
		}

		ub := models.UserBadge{UserID: userID, BadgeID: badge.ID}
		if err := s.db.WithContext(ctx).Create(&ub).Error; err != nil {
			// A concurrent evaluation may have inserted the same unlock;
			// the unique key makes that harmless.
			s.logger.Debug().Err(err).Uint("badge_id", badge.ID).Msg("Badge insert skipped")
			continue
		}
		unlocked = append(unlocked, badge)

		s.notifier.Notify(ctx, userID, "Badge unlocked!", badge.Name)
		userLogger := logger.WithUser(s.logger, userID)
		userLogger.Info().
			Uint("badge_id", badge.ID).
			Str("badge", badge.Name).
			Msg("Badge unlocked")
	}
	return unlocked, nil
}

// loadStats aggregates the stat per criteria type that badge conditions
// evaluate against.
func (s *Service) loadStats(ctx context.Context, userID uint) (map[string]int64, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var visitCount int64
	if err := s.db.WithContext(ctx).Model(&models.Visit{}).
		Where("user_id = ?", userID).Count(&visitCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count visits: %w", err)
	}

	var earnedPoints *int64
	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND kind = ?", userID, models.TxKindEarn).
		Select("SUM(amount)").
		Scan(&earnedPoints).Error; err != nil {
		return nil, fmt.Errorf("failed to sum earned points: %w", err)
	}
	var totalEarned int64
	if earnedPoints != nil {
		totalEarned = *earnedPoints
	}

	return map[string]int64{
		models.BadgeCriteriaVisits:       visitCount,
		models.BadgeCriteriaSpotsCreated: int64(user.SpotsCreated),
		models.BadgeCriteriaLevel:        int64(user.Level),
		models.BadgeCriteriaPointsEarned: totalEarned,
	}, nil
}

// Earned lists the badges the user has already unlocked, newest first.
func (s *Service) Earned(ctx context.Context, userID uint) ([]models.Badge, error) {
	var rows []models.UserBadge
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load earned badges: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(rows))
	for _, ub := range rows {
		ids = append(ids, ub.BadgeID)
	}
	var badges []models.Badge
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("failed to load badge definitions: %w", err)
	}
	return badges, nil
}
