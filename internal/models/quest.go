package models

import (
	"gorm.io/gorm"
)

// Quest condition types
const (
	QuestConditionVisitCount    = "visit_count"
	QuestConditionFriendCount   = "friend_count"
	QuestConditionPremiumStatus = "premium_status"
)

// UserQuest statuses
const (
	QuestStatusInProgress = "in_progress"
	QuestStatusCompleted  = "completed"
	QuestStatusClaimed    = "claimed"
)

// Quest is a reward definition: reach ConditionValue on ConditionType and
// claim RewardPoints.
type Quest struct {
	gorm.Model
	Name           string `gorm:"size:128;not null"`
	Description    string
	ConditionType  string `gorm:"size:32;not null"`
	ConditionValue int    `gorm:"not null"`
	RewardPoints   int64  `gorm:"not null"`
	Active         bool   `gorm:"not null"`
}

// UserQuest tracks one user's progress against a quest. The claimed status
// is terminal and may be entered exactly once.
type UserQuest struct {
	gorm.Model
	UserID   uint   `gorm:"not null;uniqueIndex:idx_user_quest"`
	QuestID  uint   `gorm:"not null;uniqueIndex:idx_user_quest"`
	Progress int    `gorm:"not null;default:0"`
	Status   string `gorm:"size:16;not null;default:in_progress"`
}
