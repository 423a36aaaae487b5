package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/quest-engine/internal/chain"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/period"
	"github.com/quest-engine/internal/storage"
	"github.com/quest-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const claimWallet = "0xabcdef0123456789abcdef0123456789abcdef01"

type fakeUserQuestStore struct {
	rows        map[int64]*models.UserQuest
	claimed     []storage.ClaimReceipt
	markErr     error
	markedCalls int
}

func (f *fakeUserQuestStore) Get(ctx context.Context, wallet string, questID int64) (*models.UserQuest, error) {
	return f.rows[questID], nil
}

func (f *fakeUserQuestStore) MarkClaimed(ctx context.Context, wallet string, questID int64, receipt storage.ClaimReceipt) error {
	f.markedCalls++
	if f.markErr != nil {
		return f.markErr
	}
	f.claimed = append(f.claimed, receipt)
	return nil
}

type fakeQuestStore struct {
	quests map[int64]*models.Quest
}

func (f *fakeQuestStore) GetByID(ctx context.Context, id int64) (*models.Quest, error) {
	return f.quests[id], nil
}

type fakeUserStore struct {
	credited     []int64
	creditSeason *int64
	xp           *big.Int
}

func (f *fakeUserStore) Upsert(ctx context.Context, wallet string) (*models.User, error) {
	return &models.User{Wallet: wallet, XP: big.NewInt(0), Level: 1}, nil
}

func (f *fakeUserStore) CreditXP(ctx context.Context, wallet string, amount int64, seasonID *int64) (*models.User, error) {
	f.credited = append(f.credited, amount)
	f.creditSeason = seasonID
	if f.xp == nil {
		f.xp = big.NewInt(0)
	}
	f.xp.Add(f.xp, big.NewInt(amount))
	return &models.User{
		Wallet: wallet,
		XP:     new(big.Int).Set(f.xp),
		Level:  models.LevelForXP(f.xp),
	}, nil
}

type fakeSeasonStore struct {
	active *models.Season
}

func (f *fakeSeasonStore) GetActive(ctx context.Context) (*models.Season, error) {
	return f.active, nil
}

type fakeMinter struct {
	receipt *chain.MintReceipt
	err     error
	calls   int
}

func (f *fakeMinter) MintBadge(ctx context.Context, to string, questID int64) (*chain.MintReceipt, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.receipt, nil
}

func completedRow(questID int64) *models.UserQuest {
	now := time.Now().UTC()
	return &models.UserQuest{
		UserWallet:  claimWallet,
		QuestID:     questID,
		Status:      types.StatusCompleted,
		CompletedAt: &now,
		ProgressData: models.ProgressData{
			Progress:          1,
			Target:            1,
			Completion:        true,
			CompletionPercent: 100,
		},
	}
}

func testQuest(id int64, questType types.QuestType, xp int64) *models.Quest {
	return &models.Quest{
		ID:       id,
		Type:     questType,
		Title:    "test quest",
		Reward:   models.Reward{XP: xp},
		IsActive: true,
	}
}

func newClaimFixture(quest *models.Quest, row *models.UserQuest) (*ClaimService, *fakeUserQuestStore, *fakeUserStore, *fakeMinter) {
	userQuests := &fakeUserQuestStore{rows: map[int64]*models.UserQuest{}}
	if row != nil {
		userQuests.rows[row.QuestID] = row
	}
	quests := &fakeQuestStore{quests: map[int64]*models.Quest{quest.ID: quest}}
	users := &fakeUserStore{}
	minter := &fakeMinter{receipt: &chain.MintReceipt{TxHash: "0xfeed", TokenID: "42"}}
	logger := logging.NewLogger(logging.LevelFatal, logging.FormatText)

	svc := NewClaimService(userQuests, quests, users, &fakeSeasonStore{}, minter, logger)
	return svc, userQuests, users, minter
}

func TestClaimSettlesCompletedQuest(t *testing.T) {
	quest := testQuest(1, types.QuestAchievement, 500)
	svc, userQuests, users, minter := newClaimFixture(quest, completedRow(1))

	result, err := svc.Claim(context.Background(), claimWallet, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, minter.calls)
	assert.Equal(t, int64(500), result.XPAwarded)
	assert.Equal(t, "0xfeed", result.BadgeTxHash)
	assert.Equal(t, "42", result.BadgeTokenID)

	require.Len(t, userQuests.claimed, 1)
	assert.Equal(t, "0xfeed", userQuests.claimed[0].TxHash)
	assert.Equal(t, "", userQuests.claimed[0].PeriodKey, "achievement quests carry no period key")

	require.Len(t, users.credited, 1)
	assert.Equal(t, int64(500), users.credited[0])
}

func TestClaimLevelsUpAcrossThresholds(t *testing.T) {
	quest := testQuest(1, types.QuestAchievement, 2500)
	svc, _, _, _ := newClaimFixture(quest, completedRow(1))

	result, err := svc.Claim(context.Background(), claimWallet, 1)
	require.NoError(t, err)

	assert.Equal(t, "2500", result.User.XP.String())
	assert.Equal(t, int64(3), result.User.Level)
}

func TestClaimUnknownQuestRejected(t *testing.T) {
	quest := testQuest(1, types.QuestAchievement, 100)
	svc, _, _, minter := newClaimFixture(quest, nil)

	_, err := svc.Claim(context.Background(), claimWallet, 99)

	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.CodeUserQuestNotFound, svcErr.Code)
	assert.Equal(t, 0, minter.calls)
}

func TestClaimWithoutProgressRowRejected(t *testing.T) {
	quest := testQuest(1, types.QuestAchievement, 100)
	svc, _, _, minter := newClaimFixture(quest, nil)

	_, err := svc.Claim(context.Background(), claimWallet, 1)

	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.CodeUserQuestNotFound, svcErr.Code)
	assert.Equal(t, 0, minter.calls)
}

func TestClaimInProgressQuestRejected(t *testing.T) {
	quest := testQuest(1, types.QuestDaily, 100)
	row := completedRow(1)
	row.Status = types.StatusInProgress
	svc, userQuests, users, minter := newClaimFixture(quest, row)

	_, err := svc.Claim(context.Background(), claimWallet, 1)

	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.CodeQuestNotCompleted, svcErr.Code)
	assert.Equal(t, 0, minter.calls)
	assert.Equal(t, 0, userQuests.markedCalls)
	assert.Empty(t, users.credited)
}

func TestClaimReplaySamePeriodRejectedWithoutChainCall(t *testing.T) {
	quest := testQuest(1, types.QuestDaily, 100)
	row := completedRow(1)
	row.ProgressData.LastClaimedPeriodKey = period.Key(types.QuestDaily, time.Now().UTC())
	svc, userQuests, _, minter := newClaimFixture(quest, row)

	_, err := svc.Claim(context.Background(), claimWallet, 1)

	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.CodeAlreadyClaimedPeriod, svcErr.Code)
	assert.Equal(t, 0, minter.calls, "replay guard must fire before any chain call")
	assert.Equal(t, 0, userQuests.markedCalls)
}

func TestClaimPreviousPeriodKeyAllowsReclaim(t *testing.T) {
	quest := testQuest(1, types.QuestDaily, 100)
	row := completedRow(1)
	row.ProgressData.LastClaimedPeriodKey = "daily:2020-01-01"
	svc, userQuests, _, minter := newClaimFixture(quest, row)

	_, err := svc.Claim(context.Background(), claimWallet, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, minter.calls)
	require.Len(t, userQuests.claimed, 1)
	assert.Equal(t, period.Key(types.QuestDaily, time.Now().UTC()), userQuests.claimed[0].PeriodKey)
}

func TestClaimMintFailureLeavesDatabaseUntouched(t *testing.T) {
	quest := testQuest(1, types.QuestAchievement, 100)
	svc, userQuests, users, minter := newClaimFixture(quest, completedRow(1))
	minter.err = errors.New("transaction reverted")

	_, err := svc.Claim(context.Background(), claimWallet, 1)

	require.Error(t, err)
	assert.Equal(t, 0, userQuests.markedCalls, "no DB write after a failed mint")
	assert.Empty(t, users.credited)
}

func TestClaimStatusConflictAfterMintSurfaced(t *testing.T) {
	quest := testQuest(1, types.QuestAchievement, 100)
	svc, userQuests, users, _ := newClaimFixture(quest, completedRow(1))
	userQuests.markErr = &types.ServiceError{Code: types.CodeStatusConflict, Message: "conflict"}

	_, err := svc.Claim(context.Background(), claimWallet, 1)

	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, types.CodeStatusConflict, svcErr.Code)
	assert.Empty(t, users.credited, "xp is only credited after the claim is recorded")
}

func TestClaimCreditsSeasonWhenActive(t *testing.T) {
	quest := testQuest(1, types.QuestAchievement, 100)
	userQuests := &fakeUserQuestStore{rows: map[int64]*models.UserQuest{1: completedRow(1)}}
	quests := &fakeQuestStore{quests: map[int64]*models.Quest{1: quest}}
	users := &fakeUserStore{}
	minter := &fakeMinter{receipt: &chain.MintReceipt{TxHash: "0xfeed"}}
	seasons := &fakeSeasonStore{active: &models.Season{ID: 7, Slug: "genesis", IsActive: true}}
	logger := logging.NewLogger(logging.LevelFatal, logging.FormatText)

	svc := NewClaimService(userQuests, quests, users, seasons, minter, logger)
	_, err := svc.Claim(context.Background(), claimWallet, 1)
	require.NoError(t, err)

	require.NotNil(t, users.creditSeason)
	assert.Equal(t, int64(7), *users.creditSeason)
}
