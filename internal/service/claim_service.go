// Package service implements the quest engine's application services: claim
// settlement, quest and season management, and leaderboard reads.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/quest-engine/internal/chain"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/mirror"
	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/period"
	"github.com/quest-engine/internal/storage"
	"github.com/quest-engine/internal/types"
)

// Repository interfaces for dependency injection

// UserQuestStore provides progress row reads and the claim transition.
type UserQuestStore interface {
	Get(ctx context.Context, wallet string, questID int64) (*models.UserQuest, error)
	MarkClaimed(ctx context.Context, wallet string, questID int64, receipt storage.ClaimReceipt) error
}

// QuestStore provides quest definition reads.
type QuestStore interface {
	GetByID(ctx context.Context, id int64) (*models.Quest, error)
}

// UserStore provides user aggregate writes.
type UserStore interface {
	Upsert(ctx context.Context, wallet string) (*models.User, error)
	CreditXP(ctx context.Context, wallet string, amount int64, seasonID *int64) (*models.User, error)
}

// SeasonStore provides the active season lookup.
type SeasonStore interface {
	GetActive(ctx context.Context) (*models.Season, error)
}

// BadgeMinter is the on-chain settlement dependency.
type BadgeMinter interface {
	MintBadge(ctx context.Context, to string, questID int64) (*chain.MintReceipt, error)
}

// ClaimService settles completed quests: it checks the claim preconditions,
// mints the badge on-chain, and only after confirmed chain success records
// the claim and credits XP. A chain failure leaves the database untouched so
// the claim can be retried.
type ClaimService struct {
	userQuests UserQuestStore
	quests     QuestStore
	users      UserStore
	seasons    SeasonStore
	minter     BadgeMinter
	logger     *logging.Logger
}

// NewClaimService creates a claim service.
func NewClaimService(
	userQuests UserQuestStore,
	quests QuestStore,
	users UserStore,
	seasons SeasonStore,
	minter BadgeMinter,
	logger *logging.Logger,
) *ClaimService {
	return &ClaimService{
		userQuests: userQuests,
		quests:     quests,
		users:      users,
		seasons:    seasons,
		minter:     minter,
		logger:     logger.WithField("component", "claim_service"),
	}
}

// ClaimResult is the settlement outcome returned to the caller.
type ClaimResult struct {
	QuestID      int64        `json:"questId"`
	Wallet       string       `json:"wallet"`
	XPAwarded    int64        `json:"xpAwarded"`
	BadgeTxHash  string       `json:"badgeTxHash"`
	BadgeTokenID string       `json:"badgeTokenId,omitempty"`
	User         *models.User `json:"user"`
}

// Claim settles a completed quest for a wallet. Preconditions are checked in
// a fixed order so callers get stable error codes: missing row, then status,
// then the per-period replay guard.
func (s *ClaimService) Claim(ctx context.Context, wallet string, questID int64) (*ClaimResult, error) {
	wallet = mirror.NormalizeWallet(wallet)
	now := time.Now().UTC()

	quest, err := s.quests.GetByID(ctx, questID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quest: %w", err)
	}
	if quest == nil {
		return nil, types.ErrUserQuestNotFound(wallet, questID)
	}

	userQuest, err := s.userQuests.Get(ctx, wallet, questID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user quest: %w", err)
	}
	if userQuest == nil {
		return nil, types.ErrUserQuestNotFound(wallet, questID)
	}
	if userQuest.Status != types.StatusCompleted {
		return nil, types.ErrQuestNotCompleted(userQuest.Status)
	}

	periodKey := period.Key(quest.Type, now)
	if periodKey != "" && userQuest.ProgressData.LastClaimedPeriodKey == periodKey {
		return nil, types.ErrAlreadyClaimedPeriod(periodKey)
	}

	if s.minter == nil {
		return nil, &types.ServiceError{
			Code:    types.CodeChainNotConfigured,
			Message: "badge contract is not configured",
		}
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"wallet":   wallet,
		"quest_id": questID,
	})
	logger.Info("Minting badge for claim")

	mintReceipt, err := s.minter.MintBadge(ctx, wallet, questID)
	if err != nil {
		logger.WithError(err).Error("Badge mint failed, claim left retryable")
		return nil, err
	}

	receipt := storage.ClaimReceipt{
		PeriodKey: periodKey,
		TxHash:    mintReceipt.TxHash,
		TokenID:   mintReceipt.TokenID,
	}
	if err := s.userQuests.MarkClaimed(ctx, wallet, questID, receipt); err != nil {
		// The badge is minted but the row moved under us. Surface the
		// conflict; the mint is idempotent from the user's perspective.
		logger.WithError(err).Error("Failed to record claim after successful mint")
		return nil, err
	}

	var seasonID *int64
	if season, err := s.seasons.GetActive(ctx); err != nil {
		logger.WithError(err).Error("Failed to load active season, crediting lifetime XP only")
	} else if season != nil {
		seasonID = &season.ID
	}

	user, err := s.users.CreditXP(ctx, wallet, quest.Reward.XP, seasonID)
	if err != nil {
		// Claim is recorded; XP credit is the only casualty. Log loudly.
		logger.WithError(err).Error("Failed to credit XP for claimed quest")
		return nil, fmt.Errorf("claim recorded but xp credit failed: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"tx_hash":  mintReceipt.TxHash,
		"token_id": mintReceipt.TokenID,
		"xp":       quest.Reward.XP,
	}).Info("Claim settled")

	return &ClaimResult{
		QuestID:      questID,
		Wallet:       wallet,
		XPAwarded:    quest.Reward.XP,
		BadgeTxHash:  mintReceipt.TxHash,
		BadgeTokenID: mintReceipt.TokenID,
		User:         user,
	}, nil
}
