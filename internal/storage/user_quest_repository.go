package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/types"
)

// UserQuestRepository handles per-(wallet, quest) progress rows.
type UserQuestRepository struct {
	db *PostgresDB
}

// NewUserQuestRepository creates a new user quest repository
func NewUserQuestRepository(db *PostgresDB) *UserQuestRepository {
	return &UserQuestRepository{db: db}
}

const userQuestColumns = `id, user_wallet, quest_id, status, progress_data,
	completed_at, claimed_at, last_updated`

// SweepUpdate is the outcome of one evaluation applied to a progress row.
type SweepUpdate struct {
	Met       bool
	Progress  float64
	Target    float64
	PeriodKey string
}

// ApplySweepResult writes one evaluation outcome as a single atomic upsert.
// Progress fields are always refreshed; status only ever moves forward here
// (IN_PROGRESS to COMPLETED). Rows already CLAIMED or EXPIRED keep their
// status so a concurrent claim is never clobbered by a sweep.
func (r *UserQuestRepository) ApplySweepResult(ctx context.Context, wallet string, questID int64, update SweepUpdate) error {
	status := types.StatusInProgress
	if update.Met {
		status = types.StatusCompleted
	}

	patch := map[string]any{
		"progress":          update.Progress,
		"target":            update.Target,
		"completion":        update.Met,
		"completionPercent": models.CompletionPercentFor(update.Progress, update.Target),
	}
	if update.Met && update.PeriodKey != "" {
		patch["lastCompletedPeriodKey"] = update.PeriodKey
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal progress patch: %w", err)
	}

	now := time.Now().UTC()
	var completedAt *time.Time
	if update.Met {
		completedAt = &now
	}

	query := `
		INSERT INTO user_quests (user_wallet, quest_id, status, progress_data, completed_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_wallet, quest_id) DO UPDATE SET
			status = CASE
				WHEN user_quests.status IN ('CLAIMED', 'EXPIRED') THEN user_quests.status
				ELSE EXCLUDED.status
			END,
			progress_data = user_quests.progress_data || EXCLUDED.progress_data,
			completed_at = CASE
				WHEN EXCLUDED.completed_at IS NOT NULL AND user_quests.completed_at IS NULL THEN EXCLUDED.completed_at
				ELSE user_quests.completed_at
			END,
			last_updated = EXCLUDED.last_updated
	`

	_, err = r.db.Pool().Exec(ctx, query, wallet, questID, status, patchJSON, completedAt, now)
	if err != nil {
		return fmt.Errorf("failed to apply sweep result: %w", err)
	}
	return nil
}

// ClaimReceipt carries the on-chain settlement artifacts recorded at claim.
type ClaimReceipt struct {
	PeriodKey string
	TxHash    string
	TokenID   string
}

// MarkClaimed transitions a row from COMPLETED to CLAIMED. The status filter
// makes this a compare-and-set: if a concurrent claim or sweep already moved
// the row, zero rows match and a STATUS_CONFLICT error is returned.
func (r *UserQuestRepository) MarkClaimed(ctx context.Context, wallet string, questID int64, receipt ClaimReceipt) error {
	patch := map[string]any{
		"badgeTxHash": receipt.TxHash,
	}
	if receipt.TokenID != "" {
		patch["badgeTokenId"] = receipt.TokenID
	}
	if receipt.PeriodKey != "" {
		patch["lastClaimedPeriodKey"] = receipt.PeriodKey
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal claim patch: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE user_quests
		SET status = 'CLAIMED',
			progress_data = progress_data || $3::jsonb,
			claimed_at = $4,
			last_updated = $4
		WHERE user_wallet = $1 AND quest_id = $2 AND status = 'COMPLETED'
	`

	result, err := r.db.Pool().Exec(ctx, query, wallet, questID, patchJSON, now)
	if err != nil {
		return fmt.Errorf("failed to mark claimed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &types.ServiceError{
			Code:    types.CodeStatusConflict,
			Message: "quest status changed during claim, please retry",
			Details: map[string]interface{}{"wallet": wallet, "questId": questID},
		}
	}
	return nil
}

// ReopenForPeriod moves a repeatable quest's row from CLAIMED back to
// IN_PROGRESS once a new period begins, clearing the completion flag so the
// sweep re-evaluates from scratch. The period filter makes the call
// idempotent: a row claimed in the current period is left alone, so the
// replay guard still holds.
func (r *UserQuestRepository) ReopenForPeriod(ctx context.Context, wallet string, questID int64, currentPeriodKey string) error {
	now := time.Now().UTC()
	query := `
		UPDATE user_quests
		SET status = 'IN_PROGRESS',
			progress_data = progress_data || '{"completion": false, "completionPercent": 0, "progress": 0}'::jsonb,
			completed_at = NULL,
			last_updated = $4
		WHERE user_wallet = $1 AND quest_id = $2 AND status = 'CLAIMED'
			AND progress_data->>'lastClaimedPeriodKey' IS DISTINCT FROM $3
	`
	if _, err := r.db.Pool().Exec(ctx, query, wallet, questID, currentPeriodKey, now); err != nil {
		return fmt.Errorf("failed to reopen user quest: %w", err)
	}
	return nil
}

// Get retrieves a single progress row, or nil when it does not exist.
func (r *UserQuestRepository) Get(ctx context.Context, wallet string, questID int64) (*models.UserQuest, error) {
	query := `SELECT ` + userQuestColumns + ` FROM user_quests WHERE user_wallet = $1 AND quest_id = $2`

	userQuest, err := scanUserQuest(r.db.Pool().QueryRow(ctx, query, wallet, questID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user quest: %w", err)
	}
	return userQuest, nil
}

// ListByWallet returns all progress rows for a wallet ordered by quest id.
func (r *UserQuestRepository) ListByWallet(ctx context.Context, wallet string) ([]*models.UserQuest, error) {
	query := `SELECT ` + userQuestColumns + ` FROM user_quests WHERE user_wallet = $1 ORDER BY quest_id`

	rows, err := r.db.Pool().Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to list user quests: %w", err)
	}
	defer rows.Close()

	var userQuests []*models.UserQuest
	for rows.Next() {
		userQuest, err := scanUserQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user quest: %w", err)
		}
		userQuests = append(userQuests, userQuest)
	}
	return userQuests, rows.Err()
}

func scanUserQuest(row pgx.Row) (*models.UserQuest, error) {
	var userQuest models.UserQuest
	var progressData []byte

	err := row.Scan(
		&userQuest.ID,
		&userQuest.UserWallet,
		&userQuest.QuestID,
		&userQuest.Status,
		&progressData,
		&userQuest.CompletedAt,
		&userQuest.ClaimedAt,
		&userQuest.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if len(progressData) > 0 {
		if err := json.Unmarshal(progressData, &userQuest.ProgressData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress data: %w", err)
		}
	}
	return &userQuest, nil
}
