// Package visits implements the check-in / heartbeat / check-out lifecycle.
// A heartbeat is the only path that converts presence into points: it runs
// the accrual math, moves the points between the spot budget, the visitor's
// wallet and the owner's tax cut, and records everything in one database
// transaction.
package visits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/accrual"
	"github.com/wnt/turfpoints/internal/ledger"
	"github.com/wnt/turfpoints/internal/logger"
	"github.com/wnt/turfpoints/internal/metrics"
	"github.com/wnt/turfpoints/internal/models"
	"github.com/wnt/turfpoints/internal/notify"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrSpotNotFound is returned when the spot is missing or inactive.
	ErrSpotNotFound = errors.New("spot not found")

	// ErrTooFar is returned when the check-in position is outside the
	// spot's tolerance radius.
	ErrTooFar = errors.New("too far from spot")

	// ErrInvalidSession is returned when a heartbeat hits a missing or
	// closed visit, or a visit whose spot has gone inactive.
	ErrInvalidSession = errors.New("invalid visit session")
)

// HeartbeatResult reports what one accrual tick produced. Duplicate ticks
// (heartbeats arriving faster than the configured interval) succeed with
// zero accrual.
type HeartbeatResult struct {
	EarnedPoints int64
	EarnedXP     int
	TaxPaid      int64
	Level        int
	LeveledUp    bool
	Duplicate    bool
}

// Service is the visit state machine.
type Service struct {
	db                *gorm.DB
	notifier          notify.Notifier
	logger            zerolog.Logger
	heartbeatInterval time.Duration
	staleAfter        time.Duration
}

// NewService creates a new visit service
func NewService(db *gorm.DB, notifier notify.Notifier, heartbeatInterval, staleAfter time.Duration, log zerolog.Logger) *Service {
	return &Service{
		db:                db,
		notifier:          notifier,
		logger:            logger.WithComponent(log, "visits"),
		heartbeatInterval: heartbeatInterval,
		staleAfter:        staleAfter,
	}
}

// StaleAfter returns the configured staleness window.
func (s *Service) StaleAfter() time.Duration {
	return s.staleAfter
}

// CheckIn opens a visit for a user at a spot. The caller's position must be
// within the tolerance radius. If the user already has an open visit at this
// spot, that visit is returned instead of opening a second one.
func (s *Service) CheckIn(ctx context.Context, userID, spotID uint, lat, lng float64) (*models.Visit, error) {
	var spot models.Spot
	err := s.db.WithContext(ctx).Where("id = ? AND active = ?", spotID, true).First(&spot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSpotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load spot: %w", err)
	}

	distance := accrual.Haversine(lat, lng, spot.Latitude, spot.Longitude)
	if distance > accrual.CheckInToleranceMeters {
		return nil, fmt.Errorf("%w: %.0fm away", ErrTooFar, distance)
	}

	now := time.Now().UTC()
	var visit models.Visit
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND spot_id = ? AND check_out_time IS NULL", userID, spotID).
			First(&visit).Error
		if err == nil {
			// Already checked in; hand the open session back.
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up open visit: %w", err)
		}

		visit = models.Visit{
			SpotID:          spotID,
			UserID:          userID,
			CheckInTime:     now,
			LastHeartbeatAt: now,
		}
		if err := tx.Create(&visit).Error; err != nil {
			return fmt.Errorf("failed to create visit: %w", err)
		}

		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("visit_count", gorm.Expr("visit_count + 1")).Error; err != nil {
			return fmt.Errorf("failed to bump visit count: %w", err)
		}
		metrics.OpenVisits.Inc()
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent check-in won the unique open-visit index. Hand its
		// session back instead of failing.
		err = s.db.WithContext(ctx).
			Where("user_id = ? AND spot_id = ? AND check_out_time IS NULL", userID, spotID).
			First(&visit).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load concurrent visit: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	visitLogger := logger.WithSpot(logger.WithUser(s.logger, userID), spotID)
	visitLogger.Info().
		Uint("visit_id", visit.ID).
		Float64("distance_m", distance).
		Msg("Checked in")
	return &visit, nil
}

// Heartbeat runs one accrual tick for an open visit. The visitor's share,
// the owner's tax cut, the spot budget decrement, the weekly contest
// points, XP/level updates and the ledger entries all commit together or
// not at all. Level-ups are reported back to the caller and announced after
// commit.
func (s *Service) Heartbeat(ctx context.Context, visitID uint) (*HeartbeatResult, error) {
	now := time.Now().UTC()
	result := &HeartbeatResult{}
	var visitUserID uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var visit models.Visit
		err := tx.First(&visit, visitID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidSession
		}
		if err != nil {
			return fmt.Errorf("failed to load visit: %w", err)
		}
		if !visit.Open() {
			return ErrInvalidSession
		}
		visitUserID = visit.UserID

		var spot models.Spot
		err = tx.First(&spot, visit.SpotID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidSession
		}
		if err != nil {
			return fmt.Errorf("failed to load spot: %w", err)
		}
		if !spot.Active {
			return ErrInvalidSession
		}

		// Replayed or early heartbeats keep the session alive but accrue
		// nothing, so a client cannot over-credit by sending faster than
		// the interval.
		if now.Sub(visit.LastHeartbeatAt) < s.heartbeatInterval {
			result.Duplicate = true
			return s.touchVisit(tx, &visit, now, 0, 0)
		}

		earned, err := s.drawFromBudget(tx, &spot, accrual.TickPoints(spot.RatePerMinute, s.heartbeatInterval))
		if err != nil {
			return err
		}
		if earned == 0 {
			// Budget exhausted: the visit stays open but earns nothing.
			return s.touchVisit(tx, &visit, now, 0, 0)
		}

		// Owner tax, collected as a running difference over the visit's
		// cumulative earnings. Never more than this tick's gross.
		var taxCut int64
		if spot.OwnerID != nil && *spot.OwnerID != visit.UserID {
			taxCut = accrual.TaxDelta(visit.EarnedPoints+earned, visit.TaxPaid, spot.EffectiveTaxRatePercent(now))
			if taxCut > earned {
				taxCut = earned
			}
		}

		visitorShare := earned - taxCut
		if visitorShare > 0 {
			if err := ledger.Credit(tx, visit.UserID, visitorShare, models.TxKindEarn, "Farmed at "+spot.Name); err != nil {
				return err
			}
		}
		if taxCut > 0 {
			if err := ledger.Credit(tx, *spot.OwnerID, taxCut, models.TxKindEarn, "Tax from "+spot.Name); err != nil {
				return err
			}
		}

		if err := s.addWeeklyPoints(tx, spot.ID, visit.UserID, accrual.WeekStart(now), earned); err != nil {
			return err
		}

		xp := accrual.TickXP(earned)
		level, leveledUp, err := s.awardXP(tx, visit.UserID, xp)
		if err != nil {
			return err
		}

		if err := s.touchVisit(tx, &visit, now, earned, taxCut); err != nil {
			return err
		}

		result.EarnedPoints = earned
		result.EarnedXP = xp
		result.TaxPaid = taxCut
		result.Level = level
		result.LeveledUp = leveledUp
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			metrics.RecordHeartbeat("rejected")
		}
		return nil, err
	}

	if result.Duplicate {
		metrics.RecordHeartbeat("duplicate")
		return result, nil
	}

	metrics.RecordHeartbeat("accrued")
	metrics.PointsEarned.Add(float64(result.EarnedPoints))
	metrics.TaxCollected.Add(float64(result.TaxPaid))

	if result.LeveledUp {
		s.notifier.Notify(ctx, visitUserID, "Level up!",
			fmt.Sprintf("You reached level %d", result.Level))
	}

	return result, nil
}

// touchVisit advances the heartbeat clock and the session totals. The
// update is guarded on the visit still being open so a heartbeat racing the
// staleness sweep loses cleanly.
func (s *Service) touchVisit(tx *gorm.DB, visit *models.Visit, now time.Time, earned, taxCut int64) error {
	res := tx.Model(&models.Visit{}).
		Where("id = ? AND check_out_time IS NULL", visit.ID).
		Updates(map[string]interface{}{
			"last_heartbeat_at": now,
			"earned_points":     gorm.Expr("earned_points + ?", earned),
			"tax_paid":          gorm.Expr("tax_paid + ?", taxCut),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update visit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidSession
	}
	return nil
}

// drawFromBudget takes up to tick points out of the spot's remaining budget
// with a guarded decrement, clamping the last tick to whatever is left.
// Returns 0 once the budget is exhausted. Activity and spot level advance
// only on ticks that actually accrue.
func (s *Service) drawFromBudget(tx *gorm.DB, spot *models.Spot, tick int64) (int64, error) {
	for attempt := 0; attempt < 3; attempt++ {
		res := tx.Model(&models.Spot{}).
			Where("id = ? AND remaining_points >= ?", spot.ID, tick).
			Updates(map[string]interface{}{
				"remaining_points": gorm.Expr("remaining_points - ?", tick),
				"total_activity":   gorm.Expr("total_activity + 1"),
			})
		if res.Error != nil {
			return 0, fmt.Errorf("failed to draw from spot budget: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return tick, s.bumpSpotLevel(tx, spot.ID)
		}

		// Not enough budget for a full tick: re-read and clamp.
		var fresh models.Spot
		if err := tx.First(&fresh, spot.ID).Error; err != nil {
			return 0, fmt.Errorf("failed to reload spot: %w", err)
		}
		if fresh.RemainingPoints <= 0 {
			return 0, nil
		}
		tick = fresh.RemainingPoints
	}
	return 0, nil
}

// bumpSpotLevel levels the spot up if its activity crossed the threshold.
func (s *Service) bumpSpotLevel(tx *gorm.DB, spotID uint) error {
	var fresh models.Spot
	if err := tx.First(&fresh, spotID).Error; err != nil {
		return fmt.Errorf("failed to reload spot: %w", err)
	}
	newLevel := accrual.SpotLevel(fresh.Level, fresh.TotalActivity)
	if newLevel == fresh.Level {
		return nil
	}
	if err := tx.Model(&models.Spot{}).Where("id = ?", spotID).
		Update("level", newLevel).Error; err != nil {
		return fmt.Errorf("failed to level up spot: %w", err)
	}
	return nil
}

// addWeeklyPoints upserts into the (spot, week, user) accumulator the
// contest scheduler reads.
func (s *Service) addWeeklyPoints(tx *gorm.DB, spotID, userID uint, weekStart time.Time, points int64) error {
	row := models.WeeklySpotPoints{
		SpotID:    spotID,
		WeekStart: weekStart,
		UserID:    userID,
		Points:    points,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "spot_id"}, {Name: "week_start"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"points":     gorm.Expr("weekly_spot_points.points + excluded.points"),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to accumulate weekly points: %w", err)
	}
	return nil
}

// awardXP applies a tick's XP to the user, carrying level-ups forward.
func (s *Service) awardXP(tx *gorm.DB, userID uint, xp int) (int, bool, error) {
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		return 0, false, fmt.Errorf("failed to load user: %w", err)
	}
	level, newXP, leveledUp := accrual.ApplyXP(user.Level, user.XP, xp)
	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"level": level, "xp": newXP}).Error; err != nil {
		return 0, false, fmt.Errorf("failed to award XP: %w", err)
	}
	return level, leveledUp, nil
}

// Checkout closes a visit. It is idempotent: closing an already-closed
// visit, or one owned by someone else, is a no-op.
func (s *Service) Checkout(ctx context.Context, visitID, userID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Visit{}).
		Where("id = ? AND user_id = ? AND check_out_time IS NULL", visitID, userID).
		Update("check_out_time", time.Now().UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to check out: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.OpenVisits.Dec()
		visitLogger := logger.WithVisit(logger.WithUser(s.logger, userID), visitID)
		visitLogger.Info().Msg("Checked out")
	}
	return nil
}

// CloseStale force-closes every open visit whose last heartbeat is older
// than the staleness window. Returns the number of visits closed.
func (s *Service) CloseStale(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.staleAfter)
	res := s.db.WithContext(ctx).Model(&models.Visit{}).
		Where("check_out_time IS NULL AND last_heartbeat_at < ?", cutoff).
		Update("check_out_time", now)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to close stale visits: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.StaleVisitsClosed.Add(float64(res.RowsAffected))
		metrics.OpenVisits.Sub(float64(res.RowsAffected))
		s.logger.Info().Int64("closed", res.RowsAffected).Msg("Closed stale visits")
	}
	return res.RowsAffected, nil
}
