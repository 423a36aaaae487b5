package models

import (
	"time"

	"github.com/quest-engine/internal/types"
)

// UserQuest is the per-(wallet, quest) progress record. Exactly one row
// exists per pair; rows are created lazily on first evaluation and never
// deleted.
type UserQuest struct {
	ID           int64             `json:"id"`
	UserWallet   string            `json:"userWallet"`
	QuestID      int64             `json:"questId"`
	Status       types.QuestStatus `json:"status"`
	ProgressData ProgressData      `json:"progressData"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	ClaimedAt    *time.Time        `json:"claimedAt,omitempty"`
	LastUpdated  time.Time         `json:"lastUpdated"`
}

// ProgressData holds evaluation progress and settlement receipts. Progress
// and target are reported even when the requirement is not met so the UI can
// render completion percentages.
type ProgressData struct {
	Progress               float64 `json:"progress"`
	Target                 float64 `json:"target"`
	Completion             bool    `json:"completion"`
	CompletionPercent      float64 `json:"completionPercent"`
	LastCompletedPeriodKey string  `json:"lastCompletedPeriodKey,omitempty"`
	LastClaimedPeriodKey   string  `json:"lastClaimedPeriodKey,omitempty"`
	BadgeTxHash            string  `json:"badgeTxHash,omitempty"`
	BadgeTokenID           string  `json:"badgeTokenId,omitempty"`
}

// CompletionPercentFor computes the clamped completion ratio for a
// progress/target pair. Target is clamped to at least 1 before division.
func CompletionPercentFor(progress, target float64) float64 {
	if target < 1 {
		target = 1
	}
	percent := progress / target * 100
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	return percent
}
