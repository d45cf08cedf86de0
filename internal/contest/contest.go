// Package contest runs the turf war: a periodic batch job that hands each
// spot to its weekly point leader. Ownership writes are conditional on the
// owner observed at decision time, so overlapping runs cannot transfer the
// same spot twice.
package contest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/accrual"
	"github.com/wnt/turfpoints/internal/logger"
	"github.com/wnt/turfpoints/internal/metrics"
	"github.com/wnt/turfpoints/internal/models"
	"github.com/wnt/turfpoints/internal/notify"
	"gorm.io/gorm"
)

// Scheduler decides spot ownership from weekly accumulated points.
type Scheduler struct {
	db       *gorm.DB
	notifier notify.Notifier
	logger   zerolog.Logger
}

// NewScheduler creates a new contest scheduler
func NewScheduler(db *gorm.DB, notifier notify.Notifier, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		db:       db,
		notifier: notifier,
		logger:   logger.WithComponent(log, "contest"),
	}
}

// RunOnce processes every active spot. Per-spot failures are logged and the
// run moves on; one broken spot must not starve the rest.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	metrics.ContestRuns.Inc()

	var spotIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.Spot{}).
		Where("active = ?", true).
		Pluck("id", &spotIDs).Error; err != nil {
		return fmt.Errorf("failed to list active spots: %w", err)
	}

	transfers := 0
	for _, spotID := range spotIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		transferred, err := s.processSpot(ctx, spotID)
		if err != nil {
			metrics.ContestSpotFailures.Inc()
			spotLogger := logger.WithSpot(s.logger, spotID)
			spotLogger.Error().Err(err).Msg("Failed to process spot, continuing")
			continue
		}
		if transferred {
			transfers++
		}
	}

	s.logger.Info().
		Int("spots", len(spotIDs)).
		Int("transfers", transfers).
		Dur("duration", time.Since(start)).
		Msg("Contest run completed")
	return nil
}

// processSpot resolves one spot's contest independently of all others.
// Returns true when ownership changed.
func (s *Scheduler) processSpot(ctx context.Context, spotID uint) (bool, error) {
	now := time.Now().UTC()

	var spot models.Spot
	if err := s.db.WithContext(ctx).First(&spot, spotID).Error; err != nil {
		return false, fmt.Errorf("failed to load spot: %w", err)
	}

	// Shielded spots cannot change hands
	if spot.Shielded(now) {
		return false, nil
	}

	leaderID, err := s.weeklyLeader(ctx, spotID, accrual.WeekStart(now))
	if err != nil {
		return false, err
	}
	if leaderID == 0 {
		// Nobody scored this week; the incumbent keeps the spot.
		return false, nil
	}
	if spot.OwnerID != nil && *spot.OwnerID == leaderID {
		return false, nil
	}

	// Conditional transfer keyed on the owner read at decision time. An
	// overlapping run that already moved the spot leaves zero rows here,
	// and skipping the notifications makes the repeat a harmless no-op.
	query := s.db.WithContext(ctx).Model(&models.Spot{})
	if spot.OwnerID == nil {
		query = query.Where("id = ? AND owner_id IS NULL", spotID)
	} else {
		query = query.Where("id = ? AND owner_id = ?", spotID, *spot.OwnerID)
	}
	res := query.Updates(map[string]interface{}{
		"owner_id":             leaderID,
		"last_owner_change_at": now,
	})
	if res.Error != nil {
		return false, fmt.Errorf("failed to transfer ownership: %w", res.Error)
	}
	spotLogger := logger.WithSpot(s.logger, spotID)
	if res.RowsAffected == 0 {
		spotLogger.Debug().Msg("Ownership changed under us, skipping")
		return false, nil
	}

	metrics.OwnershipTransfers.Inc()
	spotLogger.Info().
		Uint("new_owner", leaderID).
		Msg("Spot conquered")

	s.notifier.Notify(ctx, leaderID, "Spot conquered!",
		fmt.Sprintf("You are now the owner of %s", spot.Name))
	if spot.OwnerID != nil {
		s.notifier.Notify(ctx, *spot.OwnerID, "Spot lost",
			fmt.Sprintf("You lost ownership of %s", spot.Name))
	}
	return true, nil
}

// weeklyLeader returns the top scorer for the spot's current week, or 0 if
// nobody earned there this week.
func (s *Scheduler) weeklyLeader(ctx context.Context, spotID uint, weekStart time.Time) (uint, error) {
	var row models.WeeklySpotPoints
	err := s.db.WithContext(ctx).
		Where("spot_id = ? AND week_start = ? AND points > 0", spotID, weekStart).
		Order("points DESC, user_id ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find weekly leader: %w", err)
	}
	return row.UserID, nil
}
