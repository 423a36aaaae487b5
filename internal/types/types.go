// Package types provides common type definitions for the quest engine system.
package types

// QuestType represents the reset cadence and category of a quest.
type QuestType string

const (
	// QuestOnboarding represents a one-time onboarding quest
	QuestOnboarding QuestType = "ONBOARDING"
	// QuestDaily represents a quest that resets every UTC calendar day
	QuestDaily QuestType = "DAILY"
	// QuestWeekly represents a quest that resets every week
	QuestWeekly QuestType = "WEEKLY"
	// QuestSeasonal represents a quest bound to a season
	QuestSeasonal QuestType = "SEASONAL"
	// QuestAchievement represents a one-time achievement quest
	QuestAchievement QuestType = "ACHIEVEMENT"
)

// QuestStatus represents the per-user progress state of a quest.
type QuestStatus string

const (
	// StatusInProgress represents a quest the user has started but not completed
	StatusInProgress QuestStatus = "IN_PROGRESS"
	// StatusCompleted represents a quest whose requirement is currently met
	StatusCompleted QuestStatus = "COMPLETED"
	// StatusClaimed represents a quest whose reward has been settled
	StatusClaimed QuestStatus = "CLAIMED"
	// StatusExpired represents a quest that can no longer be completed.
	// Reserved: nothing in the engine writes this state today.
	StatusExpired QuestStatus = "EXPIRED"
)

// Terminal reports whether a sweep must not change the status for the
// current period. Progress fields are still refreshed for terminal rows.
func (s QuestStatus) Terminal() bool {
	return s == StatusClaimed || s == StatusExpired
}

// TransferDirection filters HBAR transfers relative to the evaluated wallet.
type TransferDirection string

const (
	// DirectionIn matches transfers with a positive amount (wallet is recipient)
	DirectionIn TransferDirection = "IN"
	// DirectionOut matches transfers with a negative amount (wallet is sender)
	DirectionOut TransferDirection = "OUT"
	// DirectionBoth matches any nonzero transfer
	DirectionBoth TransferDirection = "BOTH"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Well-known service error codes surfaced by the claim path. The messages
// attached to these codes are user-facing and must stay stable.
const (
	CodeUserQuestNotFound    = "USER_QUEST_NOT_FOUND"
	CodeQuestNotCompleted    = "QUEST_NOT_COMPLETED"
	CodeAlreadyClaimedPeriod = "ALREADY_CLAIMED_PERIOD"
	CodeChainNotConfigured   = "CHAIN_NOT_CONFIGURED"
	CodeStatusConflict       = "STATUS_CONFLICT"
)

// ErrUserQuestNotFound is returned when no progress row exists for (wallet, quest).
func ErrUserQuestNotFound(wallet string, questID int64) *ServiceError {
	return &ServiceError{
		Code:    CodeUserQuestNotFound,
		Message: "user quest not found",
		Details: map[string]interface{}{"wallet": wallet, "questId": questID},
	}
}

// ErrQuestNotCompleted is returned when a claim targets a row that is not COMPLETED.
func ErrQuestNotCompleted(status QuestStatus) *ServiceError {
	return &ServiceError{
		Code:    CodeQuestNotCompleted,
		Message: "quest is not in COMPLETED status",
		Details: map[string]interface{}{"status": string(status)},
	}
}

// ErrAlreadyClaimedPeriod is returned when a recurring quest was already
// settled within the current reset period.
func ErrAlreadyClaimedPeriod(periodKey string) *ServiceError {
	return &ServiceError{
		Code:    CodeAlreadyClaimedPeriod,
		Message: "quest already claimed for this period",
		Details: map[string]interface{}{"periodKey": periodKey},
	}
}
