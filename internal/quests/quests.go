// Package quests tracks quest progress and finalizes reward claims. A claim
// flips the user-quest to its terminal claimed status and credits the wallet
// in one transaction, so a crash can neither under-pay nor allow a double
// claim.
package quests

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/ledger"
	"github.com/wnt/turfpoints/internal/logger"
	"github.com/wnt/turfpoints/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrQuestNotFound is returned when the quest is missing or inactive.
	ErrQuestNotFound = errors.New("quest not found")

	// ErrNotEligible is returned when progress has not reached the quest's
	// condition value.
	ErrNotEligible = errors.New("quest condition not met")

	// ErrAlreadyClaimed is returned when the reward was claimed before.
	ErrAlreadyClaimed = errors.New("quest reward already claimed")
)

// Service evaluates and claims quests.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a new quest service
func NewService(db *gorm.DB, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.WithComponent(log, "quests"),
	}
}

// EvaluateProgress recomputes the user's progress on every active quest.
// Visit-count progress is recomputed from the visits table rather than
// trusting increments, so a missed bump heals on the next evaluation.
// Friend-count and premium progress read the user row, which external
// collaborators maintain.
func (s *Service) EvaluateProgress(ctx context.Context, userID uint) ([]models.UserQuest, error) {
	var quests []models.Quest
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&quests).Error; err != nil {
		return nil, fmt.Errorf("failed to load quests: %w", err)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d not found", userID)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var visitCount int64
	if err := s.db.WithContext(ctx).Model(&models.Visit{}).
		Where("user_id = ?", userID).Count(&visitCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count visits: %w", err)
	}

	updated := make([]models.UserQuest, 0, len(quests))
	for _, quest := range quests {
		var progress int
		switch quest.ConditionType {
		case models.QuestConditionVisitCount:
			progress = int(visitCount)
		case models.QuestConditionFriendCount:
			progress = user.FriendCount
		case models.QuestConditionPremiumStatus:
			if user.Premium {
				progress = 1
			}
		default:
			s.logger.Warn().Str("condition_type", quest.ConditionType).
				Uint("quest_id", quest.ID).Msg("Unknown quest condition type")
			continue
		}

		uq, err := s.upsertProgress(ctx, userID, quest, progress)
		if err != nil {
			return nil, err
		}
		updated = append(updated, *uq)
	}
	return updated, nil
}

// upsertProgress stores recomputed progress without ever touching a claimed
// quest.
func (s *Service) upsertProgress(ctx context.Context, userID uint, quest models.Quest, progress int) (*models.UserQuest, error) {
	status := models.QuestStatusInProgress
	if progress >= quest.ConditionValue {
		status = models.QuestStatusCompleted
	}

	var uq models.UserQuest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND quest_id = ?", userID, quest.ID).First(&uq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			uq = models.UserQuest{UserID: userID, QuestID: quest.ID, Progress: progress, Status: status}
			return tx.Create(&uq).Error
		}
		if err != nil {
			return fmt.Errorf("failed to load user quest: %w", err)
		}
		if uq.Status == models.QuestStatusClaimed {
			return nil
		}
		uq.Progress = progress
		uq.Status = status
		return tx.Model(&models.UserQuest{}).
			Where("id = ? AND status <> ?", uq.ID, models.QuestStatusClaimed).
			Updates(map[string]interface{}{"progress": progress, "status": status}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update quest progress: %w", err)
	}
	return &uq, nil
}

// ClaimReward pays out a completed quest exactly once. The status flip is a
// guarded update keyed on the quest not being claimed yet; the wallet credit
// and ledger entry ride in the same transaction.
func (s *Service) ClaimReward(ctx context.Context, userID, questID uint) (int64, error) {
	var quest models.Quest
	err := s.db.WithContext(ctx).Where("id = ? AND active = ?", questID, true).First(&quest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrQuestNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load quest: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var uq models.UserQuest
		err := tx.Where("user_id = ? AND quest_id = ?", userID, questID).First(&uq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotEligible
		}
		if err != nil {
			return fmt.Errorf("failed to load user quest: %w", err)
		}
		if uq.Status == models.QuestStatusClaimed {
			return ErrAlreadyClaimed
		}
		if uq.Progress < quest.ConditionValue {
			return ErrNotEligible
		}

		// Guarded flip: a concurrent claim that already won leaves zero
		// rows for this update.
		res := tx.Model(&models.UserQuest{}).
			Where("id = ? AND status <> ?", uq.ID, models.QuestStatusClaimed).
			Update("status", models.QuestStatusClaimed)
		if res.Error != nil {
			return fmt.Errorf("failed to claim quest: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}

		return ledger.Credit(tx, userID, quest.RewardPoints, models.TxKindEarn, "Quest reward: "+quest.Name)
	})
	if err != nil {
		return 0, err
	}

	userLogger := logger.WithUser(s.logger, userID)
	userLogger.Info().
		Uint("quest_id", questID).
		Int64("reward", quest.RewardPoints).
		Msg("Quest reward claimed")
	return quest.RewardPoints, nil
}
